package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/chatman/internal/chat"
	"github.com/hitoshi/chatman/internal/middleware"
	"github.com/hitoshi/chatman/internal/model"
)

// CoordinatorInterface はメッセージハンドラーが必要とする調停サービスインターフェース。
type CoordinatorInterface interface {
	// SendMessage は同期ターンを実行し、アシスタント応答を返す。
	SendMessage(ctx context.Context, sessionID, userID, content string) (*model.Message, error)
	// SendMessageStream はストリーミングターンを開始し、イベントチャネルを返す。
	SendMessageStream(ctx context.Context, sessionID, userID, content string) (<-chan chat.StreamEvent, error)
}

// MessageHandler はメッセージ送信のHTTPハンドラー。
type MessageHandler struct {
	coordinator CoordinatorInterface
}

// NewMessageHandler はMessageHandlerを生成する。
func NewMessageHandler(coordinator CoordinatorInterface) *MessageHandler {
	return &MessageHandler{
		coordinator: coordinator,
	}
}

// messageSendRequest はメッセージ送信リクエストのボディ。
type messageSendRequest struct {
	Content string `json:"content"`
}

// Send は同期ターンを実行し、アシスタント応答を返す。
// POST /api/v1/sessions/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	var req messageSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, model.NewValidationError("invalid request body"))
		return
	}

	reply, err := h.coordinator.SendMessage(r.Context(), sessionID, identity.UserID, req.Content)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toMessageResponse(reply))
}

// SendStream はストリーミングターンを実行し、応答をSSEで配信する。
// 各チャンクを1つのdataイベントとして送出し、上流障害時はerrorイベントを
// 送出してからストリームを閉じる。
// POST /api/v1/sessions/:id/messages/stream
func (h *MessageHandler) SendStream(w http.ResponseWriter, r *http.Request) {
	identity, err := middleware.IdentityFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, model.NewUnauthenticatedError())
		return
	}

	sessionID := chi.URLParam(r, "id")

	var req messageSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteErrorResponse(w, model.NewValidationError("invalid request body"))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		slog.Error("response writer does not support streaming")
		middleware.WriteInternalServerError(w)
		return
	}

	events, err := h.coordinator.SendMessageStream(r.Context(), sessionID, identity.UserID, req.Content)
	if err != nil {
		// ストリーム開始前の失敗は通常のエラーレスポンスで返せる
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		switch {
		case event.Err != nil:
			writeSSEError(w, event.Err)
			flusher.Flush()
			return
		case event.Done:
			// チャネルクローズと併せてストリーム終端
			return
		default:
			if err := writeSSEChunk(w, event.Chunk); err != nil {
				slog.Warn("stream write failed, client likely disconnected",
					slog.String("session_id", sessionID),
					slog.String("error", err.Error()),
				)
				return
			}
			flusher.Flush()
		}
	}
}

// writeSSEChunk はチャンクを1つのdataイベントとして書き込む。
// チャンク内の改行はSSEの複数data行として表現する。
func writeSSEChunk(w http.ResponseWriter, chunk string) error {
	for _, line := range strings.Split(chunk, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEError は構造化エラーボディを持つerrorイベントを書き込む。
func writeSSEError(w http.ResponseWriter, streamErr error) {
	apiErr, ok := streamErr.(*model.APIError)
	if !ok {
		apiErr = model.NewInternalError()
	}

	body, err := json.Marshal(middleware.ErrorResponseBody{
		Timestamp: apiErr.Timestamp,
		Status:    apiErr.Status,
		Code:      apiErr.Code,
		Message:   apiErr.Message,
		TraceID:   apiErr.TraceID,
	})
	if err != nil {
		slog.Error("failed to marshal stream error", slog.String("error", err.Error()))
		return
	}

	if _, err := fmt.Fprintf(w, "event: error\ndata: %s\n\n", body); err != nil {
		slog.Error("failed to write stream error event", slog.String("error", err.Error()))
	}
}
