// Package chat はセッション管理・コンテキストウィンドウ構築・
// 補完エンジン呼び出しのオーケストレーションを提供する。
package chat

import (
	"context"

	"github.com/hitoshi/chatman/internal/model"
)

// Turn はコンテキストウィンドウ内の1発話を表す値。
// リクエストごとに構築されて値渡しされ、共有可変状態を持たない。
type Turn struct {
	Role    model.Role
	Content string
}

// Completer は外部の補完エンジンへの契約。
// ウィンドウは時系列順で、末尾が今回のユーザー発話となる。
// モデル選択やプロバイダーの詳細はこのインターフェースの背後に隠蔽される。
type Completer interface {
	// Complete はウィンドウ全体を入力として応答テキストを同期生成する。
	Complete(ctx context.Context, window []Turn) (string, error)

	// CompleteStream は応答を部分チャンク単位で生成し、到着順にonChunkへ渡す。
	// onChunkがエラーを返した場合は生成を速やかに中断してそのエラーを返す。
	// 全チャンク送出後はnilを返す。失敗は必ずエラーとして報告される。
	CompleteStream(ctx context.Context, window []Turn, onChunk func(chunk string) error) error
}
