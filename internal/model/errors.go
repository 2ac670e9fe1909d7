package model

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// APIError は統一エラーフォーマットを表す。
// 機械可読なコード、HTTP相当ステータス、発生時刻、トレースIDを含む。
type APIError struct {
	Code      string    // エラーコード
	Message   string    // エラーメッセージ
	Status    int       // HTTP相当ステータスコード
	Timestamp time.Time // 発生時刻（UTC）
	TraceID   string    // エラーごとに採番されるトレースID
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated = "UNAUTHENTICATED"
	ErrCodeKeyUnavailable  = "KEY_UNAVAILABLE"
	ErrCodeSessionNotFound = "SESSION_NOT_FOUND"
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeRateLimit       = "RATE_LIMIT_EXCEEDED"
	ErrCodeUpstream        = "UPSTREAM_ERROR"
	ErrCodeStorage         = "STORAGE_ERROR"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// newAPIError はタイムスタンプとトレースIDを採番してAPIErrorを生成する。
func newAPIError(code, message string, status int) *APIError {
	return &APIError{
		Code:      code,
		Message:   message,
		Status:    status,
		Timestamp: time.Now().UTC(),
		TraceID:   uuid.New().String(),
	}
}

// NewUnauthenticatedError は認証失敗エラーを生成する。
// トークンの欠落・不正・期限切れ・署名不一致のすべてで同一のコードを返す。
func NewUnauthenticatedError() *APIError {
	return newAPIError(ErrCodeUnauthenticated, "authentication required", http.StatusUnauthorized)
}

// NewKeyUnavailableError は検証鍵が取得できない場合のエラーを生成する。
func NewKeyUnavailableError() *APIError {
	return newAPIError(ErrCodeKeyUnavailable, "verification key unavailable", http.StatusServiceUnavailable)
}

// NewSessionNotFoundError はセッション未検出エラーを生成する。
// 他ユーザーが所有するセッションの存在も非存在と区別せずこのエラーで返し、
// 存在の漏洩を防ぐ。
func NewSessionNotFoundError(sessionID string) *APIError {
	return newAPIError(ErrCodeSessionNotFound,
		fmt.Sprintf("session not found: %s", sessionID), http.StatusNotFound)
}

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return newAPIError(ErrCodeValidation, reason, http.StatusBadRequest)
}

// NewEmptyContentError はメッセージ本文が空の場合のエラーを生成する。
// ストア境界で同期・ストリーミング両系統に対して一律に適用される。
func NewEmptyContentError() *APIError {
	return NewValidationError("message content must not be empty")
}

// NewRateLimitError はレート制限超過エラーを生成する。
func NewRateLimitError() *APIError {
	return newAPIError(ErrCodeRateLimit, "too many requests, please retry later", http.StatusTooManyRequests)
}

// NewUpstreamError は補完エンジン呼び出し失敗エラーを生成する。
func NewUpstreamError() *APIError {
	return newAPIError(ErrCodeUpstream, "completion engine request failed", http.StatusBadGateway)
}

// NewStorageError は永続化失敗エラーを生成する。
func NewStorageError() *APIError {
	return newAPIError(ErrCodeStorage, "storage operation failed", http.StatusInternalServerError)
}

// NewInternalError は内部エラーを生成する。詳細はログにのみ記録する。
func NewInternalError() *APIError {
	return newAPIError(ErrCodeInternal, "internal server error", http.StatusInternalServerError)
}
