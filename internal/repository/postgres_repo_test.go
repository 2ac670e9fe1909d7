package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/chatman/internal/model"
)

// PostgresSessionRepoはSessionRepositoryインターフェースを満たすことを検証
func TestPostgresSessionRepo_ImplementsInterface(t *testing.T) {
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
}

// PostgresMessageRepoはMessageRepositoryインターフェースを満たすことを検証
func TestPostgresMessageRepo_ImplementsInterface(t *testing.T) {
	var _ MessageRepository = (*PostgresMessageRepo)(nil)
}

// NewPostgresSessionRepoが正しく初期化されることを検証
func TestNewPostgresSessionRepo_Initializes(t *testing.T) {
	repo := NewPostgresSessionRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// NewPostgresMessageRepoが正しく初期化されることを検証
func TestNewPostgresMessageRepo_Initializes(t *testing.T) {
	repo := NewPostgresMessageRepo(nil)
	if repo == nil {
		t.Fatal("expected non-nil repo")
	}
}

// Appendが空白のみの本文をDB接続なしで拒否することを検証
// （検証は永続化境界で行われ、トランザクション開始前に失敗する）
func TestPostgresMessageRepo_Append_BlankContent_ReturnsValidationError(t *testing.T) {
	repo := NewPostgresMessageRepo(nil)

	_, err := repo.Append(context.Background(), "session-1", model.RoleUser, "   ")
	if err == nil {
		t.Fatal("expected validation error for blank content")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
}

// Appendが未定義ロールをDB接続なしで拒否することを検証
func TestPostgresMessageRepo_Append_InvalidRole_ReturnsValidationError(t *testing.T) {
	repo := NewPostgresMessageRepo(nil)

	_, err := repo.Append(context.Background(), "session-1", model.Role("system"), "hello")
	if err == nil {
		t.Fatal("expected validation error for invalid role")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.Code != model.ErrCodeValidation {
		t.Errorf("Code = %q, want %q", apiErr.Code, model.ErrCodeValidation)
	}
}
