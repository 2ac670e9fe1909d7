package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/hitoshi/chatman/internal/model"
)

// PostgresMessageRepo はPostgreSQLを使用したメッセージリポジトリ。
type PostgresMessageRepo struct {
	db *sql.DB
}

// NewPostgresMessageRepo はPostgresMessageRepoを生成する。
func NewPostgresMessageRepo(db *sql.DB) *PostgresMessageRepo {
	return &PostgresMessageRepo{db: db}
}

// Append はメッセージを追記する。IDとタイムスタンプは挿入時に採番される。
// メッセージ挿入と所属セッションのupdated_at更新を同一トランザクションで行う。
// タイムスタンプはDB側のnow()で採番されるため、セッション内で単調非減少となる。
func (r *PostgresMessageRepo) Append(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error) {
	// 永続化境界での検証: ロールは2値enum、本文は空白のみを許さない
	if !role.Valid() {
		return nil, model.NewValidationError(fmt.Sprintf("invalid message role: %q", role))
	}
	if strings.TrimSpace(content) == "" {
		return nil, model.NewEmptyContentError()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	msg := &model.Message{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}

	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (id, session_id, role, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at`,
		msg.ID, msg.SessionID, string(msg.Role), msg.Content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to append message: %w", err)
	}

	// メッセージ追加もセッションの更新とみなす
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = now() WHERE id = $1`,
		sessionID,
	); err != nil {
		return nil, fmt.Errorf("failed to touch session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit message append: %w", err)
	}

	return msg, nil
}

// ListBySessionAsc はセッションの全メッセージを挿入順昇順で返す。
// created_atはトランザクション開始時刻で衝突しうるため、挿入時採番のseqを
// タイブレーカーに使う。
func (r *PostgresMessageRepo) ListBySessionAsc(ctx context.Context, sessionID string) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY created_at ASC, seq ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// ListRecentDesc はセッションの直近limit件のメッセージを挿入順降順で返す。
func (r *PostgresMessageRepo) ListRecentDesc(ctx context.Context, sessionID string, limit int) ([]*model.Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, created_at
		 FROM messages
		 WHERE session_id = $1
		 ORDER BY created_at DESC, seq DESC
		 LIMIT $2`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}
	defer rows.Close()

	return scanMessages(rows)
}

// scanMessages は行セットをMessageスライスに変換する。
func scanMessages(rows *sql.Rows) ([]*model.Message, error) {
	var messages []*model.Message
	for rows.Next() {
		msg := &model.Message{}
		var role string
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msg.Role = model.Role(role)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return messages, nil
}

// compile-time interface check
var _ MessageRepository = (*PostgresMessageRepo)(nil)
