// Package handler はAPIエンドポイントのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/chatman/internal/middleware"
	"github.com/hitoshi/chatman/internal/model"
)

// SessionServiceInterface はセッションハンドラーが必要とするサービスインターフェース。
type SessionServiceInterface interface {
	// CreateSession は新しいセッションを作成する。空白タイトルにはデフォルトを適用する。
	CreateSession(ctx context.Context, userID, title string) (*model.Session, error)
	// ListSessions はユーザーのセッション一覧を更新日時降順で返す。
	ListSessions(ctx context.Context, userID string) ([]*model.Session, error)
	// GetSession はセッションを全メッセージ付きで返す。
	GetSession(ctx context.Context, sessionID, userID string) (*model.Session, []*model.Message, error)
	// RenameSession はセッションのタイトルを変更する。
	RenameSession(ctx context.Context, sessionID, userID, newTitle string) (*model.Session, error)
	// DeleteSession はセッションと配下の全メッセージを削除する。
	DeleteSession(ctx context.Context, sessionID, userID string) error
	// GetHistory はセッションの全メッセージを時系列順で返す。
	GetHistory(ctx context.Context, sessionID, userID string) ([]*model.Message, error)
}

// SessionHandler はセッション管理のHTTPハンドラー。
type SessionHandler struct {
	service SessionServiceInterface
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(service SessionServiceInterface) *SessionHandler {
	return &SessionHandler{
		service: service,
	}
}

// sessionResponse はセッションサマリーのAPIレスポンス。
type sessionResponse struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// sessionDetailResponse はメッセージを含むセッションのAPIレスポンス。
type sessionDetailResponse struct {
	sessionResponse
	Messages []messageResponse `json:"messages"`
}

// messageResponse はメッセージのAPIレスポンス。
type messageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// sessionTitleRequest はセッション作成・リネームリクエストのボディ。
type sessionTitleRequest struct {
	Title string `json:"title"`
}

// Create は新しいセッションを作成する。
// POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	// ボディは省略可（タイトルなし = デフォルトタイトル）
	var req sessionTitleRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteErrorResponse(w, model.NewValidationError("invalid request body"))
			return
		}
	}

	session, err := h.service.CreateSession(r.Context(), identity.UserID, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// List はユーザーのセッション一覧を取得する。
// GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		responses = append(responses, toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Get はセッションを全メッセージ付きで取得する。
// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	session, messages, err := h.service.GetSession(r.Context(), sessionID, identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	detail := sessionDetailResponse{
		sessionResponse: toSessionResponse(session),
		Messages:        make([]messageResponse, 0, len(messages)),
	}
	for _, msg := range messages {
		detail.Messages = append(detail.Messages, toMessageResponse(msg))
	}
	writeJSON(w, http.StatusOK, detail)
}

// Rename はセッションのタイトルを変更する。
// PUT /api/v1/sessions/:id
func (h *SessionHandler) Rename(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	var req sessionTitleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, model.NewValidationError("invalid request body"))
		return
	}

	session, err := h.service.RenameSession(r.Context(), sessionID, identity.UserID, req.Title)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Delete はセッションと配下の全メッセージを削除する。
// DELETE /api/v1/sessions/:id
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	if err := h.service.DeleteSession(r.Context(), sessionID, identity.UserID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// History はセッションの全メッセージを時系列順で取得する。
// GET /api/v1/sessions/:id/history
func (h *SessionHandler) History(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	messages, err := h.service.GetHistory(r.Context(), sessionID, identity.UserID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]messageResponse, 0, len(messages))
	for _, msg := range messages {
		responses = append(responses, toMessageResponse(msg))
	}
	writeJSON(w, http.StatusOK, responses)
}

// --- ヘルパー関数 ---

// toSessionResponse はmodel.SessionからAPIレスポンスに変換する。
func toSessionResponse(session *model.Session) sessionResponse {
	return sessionResponse{
		ID:        session.ID,
		Title:     session.Title,
		CreatedAt: session.CreatedAt,
		UpdatedAt: session.UpdatedAt,
	}
}

// toMessageResponse はmodel.MessageからAPIレスポンスに変換する。
func toMessageResponse(msg *model.Message) messageResponse {
	return messageResponse{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}

// writeJSON はJSONレスポンスを書き込む。書き込み失敗はログのみに記録する。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to write response", slog.String("error", err.Error()))
	}
}

// handleServiceError はサービス層から返されたエラーをHTTPレスポンスに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}
