// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/auth"
	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Authorize はテナントのOAuth認可リダイレクトURLを生成する。
	Authorize(ctx context.Context, slug string) (string, error)
	// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
	HandleCallback(ctx context.Context, slug, code string) (*auth.LoginResult, *auth.LoginError)
	// Logout はログアウトイベントを監査記録する。
	Logout(ctx context.Context, tenantID, tenantSlug, userID string)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	BaseURL       string
	CookieDomain  string // 空の場合はホスト限定Cookie
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はテナントごとのDiscord OAuthフローのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// Authorize はDiscord OAuthフローを開始する。
// GET /auth/discord/{slug}
//
// テナントが存在しない場合は404、無効化されている場合は403を返し、
// プロバイダーへのリダイレクトは発行しない。
func (h *AuthHandler) Authorize(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	url, err := h.service.Authorize(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	http.Redirect(w, r, url, http.StatusFound)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/discord/{slug}/callback?code=xxx&state=yyy
//
// 成功時はセッションCookieを設定してダッシュボードへリダイレクトする。
// 失敗時はローカル状態を一切変更せず、理由コード付きでテナントの
// ランディングページへリダイレクトする。
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	query := r.URL.Query()

	// ユーザーが認可画面で拒否した場合、Discordはerrorパラメータを付与する。
	if query.Get("error") != "" {
		h.redirectWithReason(w, r, slug, model.ReasonAccessDenied)
		return
	}

	code := query.Get("code")
	if code == "" {
		h.redirectWithReason(w, r, slug, model.ReasonNoCode)
		return
	}

	// stateにはフロー開始時のスラッグが入っている。別テナントの
	// コールバックとの混線を検出する。
	if state := query.Get("state"); state != "" && state != slug {
		slog.Warn("oauth state mismatch",
			slog.String("tenant_slug", slug),
			slog.String("state", state),
		)
		h.redirectWithReason(w, r, slug, model.ReasonAccessDenied)
		return
	}

	result, lerr := h.service.HandleCallback(r.Context(), slug, code)
	if lerr != nil {
		h.redirectWithReason(w, r, slug, lerr.Reason)
		return
	}

	// セッションCookieはテナントのパス配下にスコープする。
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName(slug),
		Value:    result.Token,
		Path:     "/p/" + slug,
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL+"/p/"+slug+"/dashboard", http.StatusFound)
}

// Logout はセッションCookieを破棄し、ランディングページへリダイレクトする。
// GET /p/{slug}/logout
//
// トークンはサーバー側に保存されないため、破棄はCookieのクリアで完結する。
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		h.service.Logout(r.Context(), claims.TenantID, claims.TenantSlug, claims.UserID)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName(slug),
		Value:    "",
		Path:     "/p/" + slug,
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, h.config.BaseURL+"/p/"+slug, http.StatusFound)
}

// redirectWithReason は理由コード付きでランディングページへリダイレクトする。
// 診断の詳細はサーバーログにのみ残り、リダイレクトURLには粗い理由コード
// だけが載る。
func (h *AuthHandler) redirectWithReason(w http.ResponseWriter, r *http.Request, slug string, reason model.LoginReason) {
	http.Redirect(w, r, h.config.BaseURL+"/p/"+slug+"?error="+string(reason), http.StatusFound)
}
