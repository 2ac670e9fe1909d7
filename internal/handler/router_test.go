package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/chatman/internal/chat"
	"github.com/hitoshi/chatman/internal/middleware"
	"github.com/hitoshi/chatman/internal/model"
)

// stubVerifier はテスト用のTokenVerifier実装。
type stubVerifier struct {
	userID string
}

func (s *stubVerifier) Verify(ctx context.Context, rawToken string) (*model.Identity, error) {
	if rawToken == "valid-token" {
		return &model.Identity{UserID: s.userID}, nil
	}
	return nil, model.NewUnauthenticatedError()
}

// stubPinger はテスト用のPinger実装。
type stubPinger struct {
	err error
}

func (s *stubPinger) PingContext(ctx context.Context) error {
	return s.err
}

func newTestRouter(t *testing.T, pinger Pinger) http.Handler {
	t.Helper()
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 20))
	t.Cleanup(rl.Stop)

	sessionService := &mockSessionService{
		listFn: func(ctx context.Context, userID string) ([]*model.Session, error) {
			return []*model.Session{testSession("s1", "A")}, nil
		},
	}

	return NewRouter(&RouterDeps{
		Verifier:          &stubVerifier{userID: "u1"},
		AuthExcludedPaths: []string{"/health", "/metrics"},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		SessionService:    sessionService,
		Coordinator:       &mockCoordinator{},
		DB:                pinger,
	})
}

// ヘルスチェックが未認証で200を返すことを検証
func TestRouter_Health_Unauthenticated(t *testing.T) {
	router := newTestRouter(t, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

// DB接続不能時にヘルスチェックが503を返すことを検証
func TestRouter_Health_DBDown(t *testing.T) {
	router := newTestRouter(t, &stubPinger{err: errors.New("connection refused")})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}

// トークンなしのAPIアクセスが401になることを検証
func TestRouter_API_RequiresAuth(t *testing.T) {
	router := newTestRouter(t, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}

	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Code != model.ErrCodeUnauthenticated {
		t.Errorf("Code = %q, want %q", body.Code, model.ErrCodeUnauthenticated)
	}
}

// 有効トークンでの一覧取得がミドルウェアチェーンを通過することを検証
func TestRouter_API_AuthenticatedFlow(t *testing.T) {
	router := newTestRouter(t, &stubPinger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var body []sessionResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(body) != 1 || body[0].ID != "s1" {
		t.Errorf("unexpected response: %+v", body)
	}
}

// OPTIONSプリフライトが認証なしで204になることを検証
func TestRouter_Preflight(t *testing.T) {
	router := newTestRouter(t, &stubPinger{})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/sessions", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "http://localhost:3000")
	}
}

// パニックが500に変換されることを検証（リカバリーミドルウェア経由）
func TestRouter_PanicRecovery(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 20))
	t.Cleanup(rl.Stop)

	sessionService := &mockSessionService{
		listFn: func(ctx context.Context, userID string) ([]*model.Session, error) {
			panic("boom")
		},
	}
	router := NewRouter(&RouterDeps{
		Verifier:          &stubVerifier{userID: "u1"},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		SessionService:    sessionService,
		Coordinator:       &mockCoordinator{},
		DB:                &stubPinger{},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

// ルーター経由のストリーミングエンドポイントがSSEを配信することを検証
func TestRouter_StreamEndpoint(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.NewRateLimiterConfig(120, 20))
	t.Cleanup(rl.Stop)

	coordinator := &mockCoordinator{
		sendStreamFn: func(ctx context.Context, sessionID, userID, content string) (<-chan chat.StreamEvent, error) {
			return streamEvents(
				chat.StreamEvent{Chunk: "hello"},
				chat.StreamEvent{Done: true},
			), nil
		},
	}
	router := NewRouter(&RouterDeps{
		Verifier:          &stubVerifier{userID: "u1"},
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		SessionService:    &mockSessionService{},
		Coordinator:       coordinator,
		DB:                &stubPinger{},
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/s1/messages/stream",
		strings.NewReader(`{"content":"Hi"}`))
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d, body: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}
	if !strings.Contains(rec.Body.String(), "data: hello") {
		t.Errorf("expected chunk in stream, got:\n%s", rec.Body.String())
	}
}
