package chat

import (
	"context"
	"testing"

	"github.com/hitoshi/chatman/internal/model"
)

// ウィンドウが時系列順に構築されることを検証
// （ストレージ層の新しい順をビルダーが反転する）
func TestContextWindowBuilder_Build_ChronologicalOrder(t *testing.T) {
	repo := &memMessageRepo{}
	for _, content := range []string{"first", "second", "third"} {
		if _, err := repo.Append(context.Background(), "s1", model.RoleUser, content); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	builder := NewContextWindowBuilder(repo, 10)
	window, err := builder.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []string{"first", "second", "third"}
	if len(window) != len(want) {
		t.Fatalf("window length = %d, want %d", len(window), len(want))
	}
	for i, content := range want {
		if window[i].Content != content {
			t.Errorf("window[%d].Content = %q, want %q", i, window[i].Content, content)
		}
	}
}

// ウィンドウが直近size件に制限されることを検証
func TestContextWindowBuilder_Build_BoundedToSize(t *testing.T) {
	repo := &memMessageRepo{}
	for i := 0; i < 15; i++ {
		if _, err := repo.Append(context.Background(), "s1", model.RoleUser, "m"); err != nil {
			t.Fatalf("failed to seed message: %v", err)
		}
	}

	builder := NewContextWindowBuilder(repo, 10)
	window, err := builder.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(window) != 10 {
		t.Errorf("window length = %d, want 10", len(window))
	}
}

// ロール写像を検証: userはユーザー発話、それ以外はアシスタント発話
func TestContextWindowBuilder_Build_RoleMapping(t *testing.T) {
	repo := &memMessageRepo{}
	if _, err := repo.Append(context.Background(), "s1", model.RoleUser, "question"); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}
	if _, err := repo.Append(context.Background(), "s1", model.RoleAssistant, "answer"); err != nil {
		t.Fatalf("failed to seed message: %v", err)
	}

	builder := NewContextWindowBuilder(repo, 10)
	window, err := builder.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if window[0].Role != model.RoleUser {
		t.Errorf("window[0].Role = %q, want %q", window[0].Role, model.RoleUser)
	}
	if window[1].Role != model.RoleAssistant {
		t.Errorf("window[1].Role = %q, want %q", window[1].Role, model.RoleAssistant)
	}
}

// 履歴が空のセッションでは空ウィンドウが返ることを検証
func TestContextWindowBuilder_Build_EmptyHistory(t *testing.T) {
	builder := NewContextWindowBuilder(&memMessageRepo{}, 10)

	window, err := builder.Build(context.Background(), "s1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(window) != 0 {
		t.Errorf("window length = %d, want 0", len(window))
	}
}

// sizeが0以下の場合はデフォルト値が使われることを検証
func TestNewContextWindowBuilder_NonPositiveSize_UsesDefault(t *testing.T) {
	builder := NewContextWindowBuilder(&memMessageRepo{}, 0)
	if builder.size != DefaultWindowSize {
		t.Errorf("size = %d, want %d", builder.size, DefaultWindowSize)
	}
}
