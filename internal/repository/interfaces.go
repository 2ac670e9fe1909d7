// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/chatman/internal/model"
)

// SessionRepository はチャットセッションの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。IDとタイムスタンプは呼び出し前に設定済みであること。
	Create(ctx context.Context, session *model.Session) error

	// FindByIDAndUserID は指定IDかつ指定ユーザーが所有するセッションを取得する。
	// 見つからない場合はnilを返す。他ユーザー所有のセッションも「見つからない」として扱う。
	FindByIDAndUserID(ctx context.Context, id, userID string) (*model.Session, error)

	// ListByUserID はユーザーのセッション一覧をupdated_at降順で返す。
	// メッセージは含まない（サマリビュー）。
	ListByUserID(ctx context.Context, userID string) ([]*model.Session, error)

	// Rename はセッションのタイトルを更新する。
	// updated_atは常に現在時刻へ更新される。更新後のセッションを返す。
	Rename(ctx context.Context, id, title string) (*model.Session, error)

	// Delete は指定IDのセッションを削除する。
	// 配下のメッセージはFK制約によりカスケード削除される。
	Delete(ctx context.Context, id string) error
}

// MessageRepository はメッセージの永続化インターフェース。
// メッセージは追記専用で、更新は許されない。
type MessageRepository interface {
	// Append はメッセージを追記する。IDとタイムスタンプは挿入時に採番され、
	// 同一トランザクションで所属セッションのupdated_atを更新する。
	// 本文が空白のみの場合はValidationErrorを返す。
	Append(ctx context.Context, sessionID string, role model.Role, content string) (*model.Message, error)

	// ListBySessionAsc はセッションの全メッセージを挿入日時昇順で返す。
	ListBySessionAsc(ctx context.Context, sessionID string) ([]*model.Message, error)

	// ListRecentDesc はセッションの直近limit件のメッセージを挿入日時降順で返す。
	// 時系列順が必要な場合は呼び出し側で反転すること。
	ListRecentDesc(ctx context.Context, sessionID string, limit int) ([]*model.Message, error)
}
