package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
)

// LandingTenantFinder は公開ランディングページが必要とするテナント参照インターフェース。
type LandingTenantFinder interface {
	GetBySlug(ctx context.Context, slug string) (*model.Tenant, error)
}

// DashboardHandler はテナントポータル（公開ランディングと
// セッション保護されたダッシュボード）のHTTPハンドラー。
type DashboardHandler struct {
	tenants LandingTenantFinder
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(tenants LandingTenantFinder) *DashboardHandler {
	return &DashboardHandler{tenants: tenants}
}

// landingResponse は公開ランディングページのレスポンス。
// 未ログインの訪問者に見せてよい情報だけを含む。
type landingResponse struct {
	Name           string               `json:"name"`
	Slug           string               `json:"slug"`
	Logo           string               `json:"logo,omitempty"`
	Favicon        string               `json:"favicon,omitempty"`
	PrimaryColor   string               `json:"primaryColor,omitempty"`
	SecondaryColor string               `json:"secondaryColor,omitempty"`
	CustomCSS      string               `json:"customCss,omitempty"`
	Features       model.TenantFeatures `json:"features"`
	LoginURL       string               `json:"loginUrl"`
	IsActive       bool                 `json:"isActive"`
	LoginError     string               `json:"loginError,omitempty"`
}

type dashboardUserResponse struct {
	ID        string     `json:"id"`
	DiscordID string     `json:"discordId"`
	Username  string     `json:"username"`
	Avatar    string     `json:"avatar,omitempty"`
	Role      model.Role `json:"role"`
	IsAdmin   bool       `json:"isAdmin"`
}

type dashboardResponse struct {
	User      dashboardUserResponse `json:"user"`
	Tenant    landingResponse       `json:"tenant"`
	ExpiresAt time.Time             `json:"expiresAt"`
}

func toLandingResponse(t *model.Tenant, loginError string) landingResponse {
	return landingResponse{
		Name:           t.Name,
		Slug:           t.Slug,
		Logo:           t.Logo,
		Favicon:        t.Favicon,
		PrimaryColor:   t.PrimaryColor,
		SecondaryColor: t.SecondaryColor,
		CustomCSS:      t.CustomCSS,
		Features:       t.Features,
		LoginURL:       "/auth/discord/" + t.Slug,
		IsActive:       t.IsActive,
		LoginError:     loginError,
	}
}

// Landing は公開ランディングページを返す。
// ログイン失敗後のリダイレクト先でもあり、?error= が付いている場合は
// 理由コードをそのままエコーする。
// GET /p/{slug}
func (h *DashboardHandler) Landing(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")
	tenant, err := h.tenants.GetBySlug(r.Context(), slug)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toLandingResponse(tenant, r.URL.Query().Get("error")))
}

// Dashboard はログイン済みユーザーのダッシュボードを返す。
// セッションミドルウェアの背後に配置されるため、
// コンテキストには検証済みのクレームとユーザーが必ず存在する。
// GET /p/{slug}/dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	user, userOK := middleware.UserFromContext(r.Context())
	if !ok || !userOK || user.Tenant == nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSONResponse(w, http.StatusOK, dashboardResponse{
		User: dashboardUserResponse{
			ID:        user.ID,
			DiscordID: user.DiscordID,
			Username:  user.Username,
			Avatar:    user.Avatar,
			Role:      user.Role,
			IsAdmin:   user.IsAdmin,
		},
		Tenant:    toLandingResponse(user.Tenant, ""),
		ExpiresAt: claims.ExpiresAt,
	})
}
