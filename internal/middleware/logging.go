package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// identityLogRecord は認証ミドルウェアが検証済みユーザーIDを書き戻すための
// リクエスト単位の記録領域。ロギングミドルウェアは認証より外側に位置し、
// コンテキスト値は内側にしか伝播しないため、ログへの反映にはこの経路を使う。
type identityLogRecord struct {
	mu     sync.Mutex
	userID string
}

func (rec *identityLogRecord) set(userID string) {
	rec.mu.Lock()
	rec.userID = userID
	rec.mu.Unlock()
}

func (rec *identityLogRecord) get() string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.userID
}

// identityLogContextKey はidentityLogRecordをコンテキストに格納するためのキー。
var identityLogContextKey = contextKey("identity_log")

// recordIdentityForLog はコンテキストに記録領域があれば検証済みユーザーIDを書き込む。
func recordIdentityForLog(ctx context.Context, userID string) {
	if rec, ok := ctx.Value(identityLogContextKey).(*identityLogRecord); ok {
		rec.set(userID)
	}
}

// statusRecorder はhttp.ResponseWriterをラップし、ステータスコードを記録する。
// SSE配信で必要になるため、元のResponseWriterがFlusherを実装する場合は
// Flushも委譲する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

// WriteHeader はステータスコードを記録してから委譲する。
func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

// Write はデータを書き込む。WriteHeaderが未呼び出しの場合は200を記録する。
func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// Flush はバッファ済みデータをクライアントへ送出する。
func (sr *statusRecorder) Flush() {
	if flusher, ok := sr.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

// NewLoggingMiddleware はリクエストのJSON構造化ログを出力するミドルウェアを返す。
// ログにはmethod、path、status、duration_ms、user_id（認証済みの場合）を含む。
func NewLoggingMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			rec := &statusRecorder{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			idRec := &identityLogRecord{}
			ctx := context.WithValue(r.Context(), identityLogContextKey, idRec)

			next.ServeHTTP(rec, r.WithContext(ctx))

			duration := time.Since(start)
			durationMs := float64(duration.Nanoseconds()) / float64(time.Millisecond)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", durationMs),
			}

			// 認証ミドルウェアが書き戻した検証済みIDがあれば追加
			if userID := idRec.get(); userID != "" {
				attrs = append(attrs, slog.String("user_id", userID))
			}

			// slogのログレベルをステータスコードに応じて変更
			level := slog.LevelInfo
			if rec.statusCode >= 500 {
				level = slog.LevelError
			} else if rec.statusCode >= 400 {
				level = slog.LevelWarn
			}

			// slog.Attr をany スライスに変換
			args := make([]any, len(attrs))
			for i, attr := range attrs {
				args[i] = attr
			}

			logger.Log(r.Context(), level, "http_request", args...)
		})
	}
}
