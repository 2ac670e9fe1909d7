package chat

import (
	"context"
	"fmt"

	"github.com/hitoshi/chatman/internal/model"
	"github.com/hitoshi/chatman/internal/repository"
)

// DefaultWindowSize はコンテキストウィンドウに含める直近メッセージ数のデフォルト値。
const DefaultWindowSize = 10

// ContextWindowBuilder は補完エンジンへ渡す直近メッセージのウィンドウを構築する。
// ウィンドウは毎ターン永続ストアから再構築される値であり、リクエスト間で
// 共有されない。同一プロセス上の並行ターンが互いのコンテキストを
// 汚染することはない。
type ContextWindowBuilder struct {
	messages repository.MessageRepository
	size     int
}

// NewContextWindowBuilder はContextWindowBuilderを生成する。
// sizeが0以下の場合はDefaultWindowSizeを使用する。
func NewContextWindowBuilder(messages repository.MessageRepository, size int) *ContextWindowBuilder {
	if size <= 0 {
		size = DefaultWindowSize
	}
	return &ContextWindowBuilder{messages: messages, size: size}
}

// Build はセッションの直近size件のメッセージから時系列順のウィンドウを構築する。
// ストレージ層は新しい順で返すため、ここで時系列順に反転する。
// ロールはuserのみユーザー発話、それ以外はアシスタント発話として写像する。
// ユーザー発話の保存後に呼ばれるため、ウィンドウ末尾は常に今回の発話となる。
func (b *ContextWindowBuilder) Build(ctx context.Context, sessionID string) ([]Turn, error) {
	recent, err := b.messages.ListRecentDesc(ctx, sessionID, b.size)
	if err != nil {
		return nil, fmt.Errorf("failed to load recent messages: %w", err)
	}

	window := make([]Turn, len(recent))
	for i, msg := range recent {
		role := model.RoleAssistant
		if msg.Role == model.RoleUser {
			role = model.RoleUser
		}
		// 新しい順 -> 時系列順
		window[len(recent)-1-i] = Turn{Role: role, Content: msg.Content}
	}

	return window, nil
}
