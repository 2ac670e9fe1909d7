// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/chatman/internal/auth"
	"github.com/hitoshi/chatman/internal/model"
)

// accessTokenCookieName はAuthorizationヘッダー不在時のフォールバック先Cookie名。
const accessTokenCookieName = "access_token"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに認証済みIDを格納するためのキー。
var identityContextKey = contextKey("identity")

// NewAuthMiddleware はBearerトークンを検証するミドルウェアを返す。
// トークンはAuthorizationヘッダーを優先し、欠落時はaccess_token Cookieに
// フォールバックする。OPTIONSリクエストと除外パスは未認証のまま通過させる。
// 検証成功時は認証済みユーザーIDをリクエストコンテキストに注入し、
// 失敗時は統一フォーマットのエラーレスポンスを返す。
func NewAuthMiddleware(verifier auth.TokenVerifier, excludedPaths []string) func(next http.Handler) http.Handler {
	excluded := make(map[string]bool, len(excludedPaths))
	for _, path := range excludedPaths {
		excluded[path] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// プリフライトと除外パスは認証をスキップ
			if r.Method == http.MethodOptions || excluded[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractToken(r)
			if !ok {
				writeAuthError(w, r, model.NewUnauthenticatedError())
				return
			}

			identity, err := verifier.Verify(r.Context(), token)
			if err != nil {
				apiErr, castOK := err.(*model.APIError)
				if !castOK {
					apiErr = model.NewUnauthenticatedError()
				}
				writeAuthError(w, r, apiErr)
				return
			}

			recordIdentityForLog(r.Context(), identity.UserID)
			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// extractToken はリクエストから生トークンを取り出す。
// "Bearer "プレフィックス付きのAuthorizationヘッダーを優先し、
// 欠落時のみaccess_token Cookieへフォールバックする。
// ヘッダーが存在するがBearer形式でない場合はフォールバックしない。
func extractToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header != "" {
		token, found := strings.CutPrefix(header, "Bearer ")
		if !found || token == "" {
			return "", false
		}
		return token, true
	}

	cookie, err := r.Cookie(accessTokenCookieName)
	if err != nil || cookie.Value == "" {
		return "", false
	}
	return cookie.Value, true
}

// writeAuthError は認証エラーレスポンスを書き込む。
// Originヘッダーが存在する場合、エラーレスポンスにもCORSヘッダーを付与する
// （ブラウザがエラー本文を読めるようにするため）。
func writeAuthError(w http.ResponseWriter, r *http.Request, apiErr *model.APIError) {
	if origin := r.Header.Get("Origin"); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	WriteErrorResponse(w, apiErr)
}

// IdentityFromContext はリクエストコンテキストから認証済みIDを取得する。
// 認証ミドルウェアを通過したリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.Identity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.Identity)
	if !ok || identity == nil || identity.UserID == "" {
		return nil, fmt.Errorf("identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストに認証済みIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
