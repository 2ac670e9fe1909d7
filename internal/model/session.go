// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultSessionTitle はタイトル未指定時に使用されるセッションタイトル。
const DefaultSessionTitle = "New Chat"

// Session はユーザーが所有するチャットセッションを表す。
// メッセージの順序付きコンテナであり、削除時は配下のメッセージも
// カスケード削除される。
type Session struct {
	ID        string    // セッションID（UUID）
	UserID    string    // 所有ユーザーID。全ての認可判定はこのフィールドを経由する
	Title     string    // タイトル。空の場合はDefaultSessionTitleが設定される
	CreatedAt time.Time // 作成日時（イミュータブル）
	UpdatedAt time.Time // 更新日時。メッセージ追加を含む全ての変更で更新される
}

// Role はメッセージの発話者種別を表す2値enum。
// 文字列比較ではなく型付き定数で扱い、永続化境界で検証する。
type Role string

const (
	// RoleUser はユーザー発話を示す。
	RoleUser Role = "user"
	// RoleAssistant はアシスタント応答を示す。
	RoleAssistant Role = "assistant"
)

// Valid はRoleが定義済みの値であるかを返す。
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message はセッション内の1発話を表す。永続化後はイミュータブルで、
// 追記かセッション削除によるカスケード削除のみが許される。
// CreatedAtは挿入時にストアが採番するため、セッション内で単調非減少となる。
type Message struct {
	ID        string    // メッセージID（UUID）
	SessionID string    // 所属セッションID。認可には使用しない（Session.UserIDを経由する）
	Role      Role      // 発話者種別
	Content   string    // 本文（長さ制限なし）
	CreatedAt time.Time // 挿入日時（イミュータブル）
}

// Identity は検証済みトークンから導出されるリクエスト単位の認証情報。
// 永続化されず、全ての認可判定の唯一の入力となる。
type Identity struct {
	UserID string // 認証済みユーザーID
}
