// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/auth"
	"github.com/hitoshi/guildgate/internal/model"
)

// sessionCookiePrefix はテナントセッションCookie名のプレフィックス。
// Cookie名にスラッグを含めることで、同一ブラウザで複数テナントに
// 同時ログインしてもセッションが混線しない。
const sessionCookiePrefix = "tenant_session_"

// SessionCookieName は指定スラッグのセッションCookie名を返す。
func SessionCookieName(slug string) string {
	return sessionCookiePrefix + slug
}

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var (
	sessionClaimsContextKey = contextKey("session_claims")
	sessionUserContextKey   = contextKey("session_user")
)

// TokenVerifier はセッショントークンの検証に必要なインターフェース。
// auth.TokenCodecの部分集合として定義する。
type TokenVerifier interface {
	Verify(token string) (*model.SessionClaims, error)
}

// SessionUserFinder はセッション検証時のユーザー再取得に必要なインターフェース。
// repository.UserRepositoryの部分集合として定義する。
type SessionUserFinder interface {
	FindByIDWithTenant(ctx context.Context, id string) (*model.User, error)
}

// SessionMetrics はセッション検証結果のメトリクス記録インターフェース。
type SessionMetrics interface {
	RecordSessionVerify(result string)
}

// NewTenantSessionMiddleware はテナントスコープのセッション検証ミドルウェアを返す。
//
// Cookieのトークンを検証し、ユーザーとテナントをDBから再取得して
// リクエストコンテキストに注入する。トークンのクレームは発行時点の
// スナップショットであるため、テナントの無効化やユーザーの削除を
// 反映できるようDBの現在値で必ず裏取りする。
//
// 検証失敗はすべて「未認証」として扱い、テナントのランディングページへ
// リダイレクトする。DBエラーを含め、500をユーザーに返すことはない。
func NewTenantSessionMiddleware(verifier TokenVerifier, userFinder SessionUserFinder, metrics SessionMetrics) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			slug := chi.URLParam(r, "slug")

			cookie, err := r.Cookie(SessionCookieName(slug))
			if err != nil || cookie.Value == "" {
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}

			claims, err := verifier.Verify(cookie.Value)
			if err != nil {
				if errors.Is(err, auth.ErrTokenExpired) {
					rejectSession(w, r, slug, metrics, "expired", string(model.ReasonSessionExpired))
					return
				}
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}

			// 別テナント向けに発行されたトークンの使い回しを拒否する。
			if claims.TenantSlug != slug {
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}

			user, err := userFinder.FindByIDWithTenant(r.Context(), claims.UserID)
			if err != nil {
				slog.Error("failed to load session user",
					slog.String("tenant_slug", slug),
					slog.String("error", err.Error()),
				)
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}
			if user == nil || user.Tenant == nil {
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}
			if user.TenantID != claims.TenantID || user.Tenant.Slug != slug {
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}
			if !user.Tenant.IsActive {
				rejectSession(w, r, slug, metrics, "invalid", "")
				return
			}

			if metrics != nil {
				metrics.RecordSessionVerify("ok")
			}

			ctx := context.WithValue(r.Context(), sessionClaimsContextKey, claims)
			ctx = context.WithValue(ctx, sessionUserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// rejectSession は未認証リダイレクトを発行し、検証結果を記録する。
func rejectSession(w http.ResponseWriter, r *http.Request, slug string, metrics SessionMetrics, result, reason string) {
	if metrics != nil {
		metrics.RecordSessionVerify(result)
	}
	target := "/p/" + slug
	if reason != "" {
		target += "?error=" + reason
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// ClaimsFromContext はリクエストコンテキストからセッションクレームを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func ClaimsFromContext(ctx context.Context) (*model.SessionClaims, bool) {
	claims, ok := ctx.Value(sessionClaimsContextKey).(*model.SessionClaims)
	return claims, ok
}

// UserFromContext はリクエストコンテキストから認証済みユーザーを取得する。
func UserFromContext(ctx context.Context) (*model.User, bool) {
	user, ok := ctx.Value(sessionUserContextKey).(*model.User)
	return user, ok
}

// ContextWithSession はコンテキストにセッション情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithSession(ctx context.Context, claims *model.SessionClaims, user *model.User) context.Context {
	ctx = context.WithValue(ctx, sessionClaimsContextKey, claims)
	return context.WithValue(ctx, sessionUserContextKey, user)
}
