package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// SessionService はセッションメタデータのCRUDと履歴取得を提供する。
// すべての操作は認証済みユーザーIDをスコープとし、他ユーザーのセッションは
// 存在しないものとして扱う。
type SessionService struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
}

// NewSessionService はSessionServiceを生成する。
func NewSessionService(sessions repository.SessionRepository, messages repository.MessageRepository) *SessionService {
	return &SessionService{sessions: sessions, messages: messages}
}

// CreateSession は新しいセッションを作成する。
// タイトルが空白のみの場合はデフォルトタイトルを使用する。
func (s *SessionService) CreateSession(ctx context.Context, userID, title string) (*model.Session, error) {
	if strings.TrimSpace(title) == "" {
		title = model.DefaultSessionTitle
	}

	now := time.Now().UTC()
	session := &model.Session{
		ID:        uuid.New().String(),
		UserID:    userID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storageError("create session", err)
	}

	return session, nil
}

// ListSessions はユーザーのセッション一覧を更新日時降順で返す。
// メッセージは含まない。
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]*model.Session, error) {
	sessions, err := s.sessions.ListByUserID(ctx, userID)
	if err != nil {
		return nil, storageError("list sessions", err)
	}
	return sessions, nil
}

// GetSession は指定セッションを全メッセージ付きで返す。
// 存在しない、または他ユーザー所有の場合はSESSION_NOT_FOUNDを返す。
func (s *SessionService) GetSession(ctx context.Context, sessionID, userID string) (*model.Session, []*model.Message, error) {
	session, err := s.authorize(ctx, sessionID, userID)
	if err != nil {
		return nil, nil, err
	}

	messages, err := s.messages.ListBySessionAsc(ctx, sessionID)
	if err != nil {
		return nil, nil, storageError("load session messages", err)
	}

	return session, messages, nil
}

// RenameSession はセッションのタイトルを変更する。
// 新タイトルが空白のみの場合はタイトルを維持するが、updated_atは常に更新される。
func (s *SessionService) RenameSession(ctx context.Context, sessionID, userID, newTitle string) (*model.Session, error) {
	session, err := s.authorize(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(newTitle)
	if title == "" {
		title = session.Title
	}

	renamed, err := s.sessions.Rename(ctx, sessionID, title)
	if err != nil {
		return nil, storageError("rename session", err)
	}
	if renamed == nil {
		// 認可チェックと更新の間に削除された場合
		return nil, model.NewSessionNotFoundError(sessionID)
	}

	return renamed, nil
}

// DeleteSession はセッションと配下の全メッセージを削除する。
func (s *SessionService) DeleteSession(ctx context.Context, sessionID, userID string) error {
	if _, err := s.authorize(ctx, sessionID, userID); err != nil {
		return err
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return storageError("delete session", err)
	}

	return nil
}

// GetHistory はセッションの全メッセージを時系列順で返す。
func (s *SessionService) GetHistory(ctx context.Context, sessionID, userID string) ([]*model.Message, error) {
	if _, err := s.authorize(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	messages, err := s.messages.ListBySessionAsc(ctx, sessionID)
	if err != nil {
		return nil, storageError("load session history", err)
	}

	return messages, nil
}

// authorize は指定ユーザーが所有するセッションを取得する。
// 非存在と他ユーザー所有を区別せずSESSION_NOT_FOUNDを返す。
func (s *SessionService) authorize(ctx context.Context, sessionID, userID string) (*model.Session, error) {
	session, err := s.sessions.FindByIDAndUserID(ctx, sessionID, userID)
	if err != nil {
		return nil, storageError("find session", err)
	}
	if session == nil {
		return nil, model.NewSessionNotFoundError(sessionID)
	}
	return session, nil
}

// storageError は永続化失敗をログに記録してSTORAGE_ERRORへ写像する。
// 既にAPIError（バリデーション等）の場合はそのまま伝播する。
func storageError(op string, err error) error {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	slog.Error("storage operation failed",
		slog.String("op", op),
		slog.String("error", err.Error()),
	)
	return model.NewStorageError()
}
