package chat

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// --- モック ---

type mockSessionRepo struct {
	createFn          func(ctx context.Context, session *model.Session) error
	findByIDAndUserFn func(ctx context.Context, id, userID string) (*model.Session, error)
	listByUserIDFn    func(ctx context.Context, userID string) ([]*model.Session, error)
	renameFn          func(ctx context.Context, id, title string) (*model.Session, error)
	deleteFn          func(ctx context.Context, id string) error
}

func (m *mockSessionRepo) Create(ctx context.Context, session *model.Session) error {
	if m.createFn != nil {
		return m.createFn(ctx, session)
	}
	return nil
}

func (m *mockSessionRepo) FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Session, error) {
	if m.findByIDAndUserFn != nil {
		return m.findByIDAndUserFn(ctx, id, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Session, error) {
	if m.listByUserIDFn != nil {
		return m.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockSessionRepo) Rename(ctx context.Context, id, title string) (*model.Session, error) {
	if m.renameFn != nil {
		return m.renameFn(ctx, id, title)
	}
	return nil, nil
}

func (m *mockSessionRepo) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return nil
}

var _ repository.SessionRepository = (*mockSessionRepo)(nil)

// memMessageRepo はインメモリのMessageRepository実装。
// 実装同様に挿入時採番と永続化境界のバリデーションを行う。
// appendedチャネルを設定すると追記のたびに通知される（非同期保存の観測用）。
type memMessageRepo struct {
	mu       sync.Mutex
	seq      int
	msgs     []*model.Message
	appendFn func(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error)
	appended chan *model.Message
}

func (m *memMessageRepo) Append(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error) {
	if m.appendFn != nil {
		return m.appendFn(ctx, sessionID, role, content)
	}
	if !role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("invalid message role: %q", role))
	}
	if strings.TrimSpace(content) == "" {
		return nil, model.NewEmptyContentError()
	}

	m.mu.Lock()
	m.seq++
	msg := &model.Message{
		ID:        fmt.Sprintf("msg-%d", m.seq),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Unix(int64(m.seq), 0),
	}
	m.msgs = append(m.msgs, msg)
	m.mu.Unlock()

	if m.appended != nil {
		m.appended <- msg
	}
	return msg, nil
}

func (m *memMessageRepo) ListBySessionAsc(ctx context.Context, sessionID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*model.Message
	for _, msg := range m.msgs {
		if msg.SessionID == sessionID {
			result = append(result, msg)
		}
	}
	return result, nil
}

func (m *memMessageRepo) ListRecentDesc(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	asc, err := m.ListBySessionAsc(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var result []*model.Message
	for i := len(asc) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, asc[i])
	}
	return result, nil
}

var _ repository.MessageRepository = (*memMessageRepo)(nil)

// stubCompleter はテスト用のCompleter実装。
type stubCompleter struct {
	completeFn       func(ctx context.Context, window []Turn) (string, error)
	completeStreamFn func(ctx context.Context, window []Turn, onChunk func(chunk string) error) error
}

func (s *stubCompleter) Complete(ctx context.Context, window []Turn) (string, error) {
	if s.completeFn != nil {
		return s.completeFn(ctx, window)
	}
	return "stub response", nil
}

func (s *stubCompleter) CompleteStream(ctx context.Context, window []Turn, onChunk func(chunk string) error) error {
	if s.completeStreamFn != nil {
		return s.completeStreamFn(ctx, window, onChunk)
	}
	return nil
}

var _ Completer = (*stubCompleter)(nil)

// ownedSessionRepo はセッションsessionID/userUserIDのみ存在するmockSessionRepoを返す。
func ownedSessionRepo(sessionID, userID string) *mockSessionRepo {
	return &mockSessionRepo{
		findByIDAndUserFn: func(ctx context.Context, id, uid string) (*model.Session, error) {
			if id == sessionID && uid == userID {
				return &model.Session{ID: id, UserID: uid, Title: "Trip planning"}, nil
			}
			return nil, nil
		},
	}
}
