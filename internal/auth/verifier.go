package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v4"
	"github.com/hitoshi/chatman/internal/model"
)

// TokenVerifier はベアラートークンの検証インターフェース。
// middleware.NewAuthMiddlewareが必要とする部分集合として定義する。
type TokenVerifier interface {
	// Verify はトークンを検証し、認証済みアイデンティティを返す。
	// 失敗時はAPIError（UNAUTHENTICATEDまたはKEY_UNAVAILABLE）を返す。
	Verify(ctx context.Context, rawToken string) (*model.Identity, error)
}

// Verifier はRS256署名のJWTアクセストークンを検証する。
// 検証鍵はKeyCacheから取得する。
type Verifier struct {
	keys *KeyCache
}

// NewVerifier はVerifierを生成する。
func NewVerifier(keys *KeyCache) *Verifier {
	return &Verifier{keys: keys}
}

// Verify はトークンの署名と有効期限を検証し、ユーザーIDを抽出する。
// ユーザーIDはsub、userId、user_idクレームの優先順で読み取る。
func (v *Verifier) Verify(ctx context.Context, rawToken string) (*model.Identity, error) {
	key, err := v.keys.Get(ctx)
	if err != nil {
		slog.Error("verification key unavailable", slog.String("error", err.Error()))
		return nil, model.NewKeyUnavailableError()
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(rawToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return key, nil
	})
	if err != nil {
		slog.Info("JWT validation failed", slog.String("error", err.Error()))
		return nil, model.NewUnauthenticatedError()
	}

	userID := extractUserID(claims)
	if userID == "" {
		slog.Warn("JWT claims do not contain a user identifier")
		return nil, model.NewUnauthenticatedError()
	}

	return &model.Identity{UserID: userID}, nil
}

// extractUserID はクレームからユーザーIDを優先順で抽出する。
// sub -> userId -> user_id の順に試し、いずれも無ければ空文字を返す。
func extractUserID(claims jwt.MapClaims) string {
	for _, name := range []string{"sub", "userId", "user_id"} {
		if v, ok := claims[name].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// compile-time interface check
var _ TokenVerifier = (*Verifier)(nil)
