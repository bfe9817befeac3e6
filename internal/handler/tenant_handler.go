package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/tenant"
)

// TenantServiceInterface はテナントハンドラーが必要とするサービスインターフェース。
type TenantServiceInterface interface {
	List(ctx context.Context) ([]*model.Tenant, error)
	Get(ctx context.Context, id string) (*model.Tenant, error)
	Create(ctx context.Context, actor string, input tenant.CreateInput) (*model.Tenant, error)
	Update(ctx context.Context, actor, id string, input tenant.UpdateInput) (*model.Tenant, error)
	Delete(ctx context.Context, actor, id string) error
}

// TenantHandler はコンソールのテナント管理APIのHTTPハンドラー。
// すべてのエンドポイントはSuperAdminミドルウェアの背後に配置される。
type TenantHandler struct {
	service TenantServiceInterface
}

// NewTenantHandler はTenantHandlerを生成する。
func NewTenantHandler(service TenantServiceInterface) *TenantHandler {
	return &TenantHandler{service: service}
}

// tenantResponse はテナント情報のAPIレスポンス。
// 秘匿フィールド（クライアントシークレット、ボットトークン）は含まない。
type tenantResponse struct {
	ID                   string               `json:"id"`
	Name                 string               `json:"name"`
	Slug                 string               `json:"slug"`
	Subdomain            string               `json:"subdomain"`
	CustomDomain         string               `json:"customDomain,omitempty"`
	Logo                 string               `json:"logo,omitempty"`
	Favicon              string               `json:"favicon,omitempty"`
	PrimaryColor         string               `json:"primaryColor,omitempty"`
	SecondaryColor       string               `json:"secondaryColor,omitempty"`
	CustomCSS            string               `json:"customCss,omitempty"`
	Features             model.TenantFeatures `json:"features"`
	DiscordGuildID       string               `json:"discordGuildId"`
	DiscordClientID      string               `json:"discordClientId"`
	DiscordWebhookURL    string               `json:"discordWebhookUrl,omitempty"`
	DiscordAdminChannel  string               `json:"discordAdminChannel,omitempty"`
	DiscordRoleAdmin     string               `json:"discordRoleAdmin,omitempty"`
	DiscordRoleEvaluator string               `json:"discordRoleEvaluator,omitempty"`
	DiscordRolePlayer    string               `json:"discordRolePlayer,omitempty"`
	IsActive             bool                 `json:"isActive"`
	UserCount            int                  `json:"userCount"`
	CreatedAt            time.Time            `json:"createdAt"`
	UpdatedAt            time.Time            `json:"updatedAt"`
}

// toTenantResponse はモデルをAPIレスポンスに変換する。
func toTenantResponse(t *model.Tenant) tenantResponse {
	return tenantResponse{
		ID:                   t.ID,
		Name:                 t.Name,
		Slug:                 t.Slug,
		Subdomain:            t.Subdomain,
		CustomDomain:         t.CustomDomain,
		Logo:                 t.Logo,
		Favicon:              t.Favicon,
		PrimaryColor:         t.PrimaryColor,
		SecondaryColor:       t.SecondaryColor,
		CustomCSS:            t.CustomCSS,
		Features:             t.Features,
		DiscordGuildID:       t.DiscordGuildID,
		DiscordClientID:      t.DiscordClientID,
		DiscordWebhookURL:    t.DiscordWebhookURL,
		DiscordAdminChannel:  t.DiscordAdminChannel,
		DiscordRoleAdmin:     t.DiscordRoleAdmin,
		DiscordRoleEvaluator: t.DiscordRoleEvaluator,
		DiscordRolePlayer:    t.DiscordRolePlayer,
		IsActive:             t.IsActive,
		UserCount:            t.UserCount,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// createTenantRequest はテナント作成リクエストのボディ。
type createTenantRequest struct {
	Name                string `json:"name"`
	Slug                string `json:"slug"`
	DiscordGuildID      string `json:"discordGuildId"`
	DiscordClientID     string `json:"discordClientId"`
	DiscordClientSecret string `json:"discordClientSecret"`
	DiscordBotToken     string `json:"discordBotToken"`
}

// updateTenantRequest はテナント更新リクエストのボディ。
// 省略されたフィールドは変更されない。
type updateTenantRequest struct {
	Name                 *string               `json:"name"`
	Logo                 *string               `json:"logo"`
	Favicon              *string               `json:"favicon"`
	PrimaryColor         *string               `json:"primaryColor"`
	SecondaryColor       *string               `json:"secondaryColor"`
	CustomCSS            *string               `json:"customCss"`
	CustomDomain         *string               `json:"customDomain"`
	Features             *model.TenantFeatures `json:"features"`
	DiscordGuildID       *string               `json:"discordGuildId"`
	DiscordClientID      *string               `json:"discordClientId"`
	DiscordClientSecret  *string               `json:"discordClientSecret"`
	DiscordBotToken      *string               `json:"discordBotToken"`
	DiscordWebhookURL    *string               `json:"discordWebhookUrl"`
	DiscordAdminChannel  *string               `json:"discordAdminChannel"`
	DiscordRoleAdmin     *string               `json:"discordRoleAdmin"`
	DiscordRoleEvaluator *string               `json:"discordRoleEvaluator"`
	DiscordRolePlayer    *string               `json:"discordRolePlayer"`
	IsActive             *bool                 `json:"isActive"`
}

// List はテナント一覧を返す。
// GET /api/tenants
func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]tenantResponse, len(tenants))
	for i, t := range tenants {
		responses[i] = toTenantResponse(t)
	}
	writeJSONResponse(w, http.StatusOK, responses)
}

// Get はテナント詳細を返す。
// GET /api/tenants/{id}
func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, toTenantResponse(t))
}

// Create はテナントを作成する。
// POST /api/tenants
func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディの解析に失敗しました"))
		return
	}

	t, err := h.service.Create(r.Context(), middleware.ActorFromContext(r.Context()), tenant.CreateInput{
		Name:                req.Name,
		Slug:                req.Slug,
		DiscordGuildID:      req.DiscordGuildID,
		DiscordClientID:     req.DiscordClientID,
		DiscordClientSecret: req.DiscordClientSecret,
		DiscordBotToken:     req.DiscordBotToken,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, toTenantResponse(t))
}

// Update はテナント設定を部分更新する。
// PUT /api/tenants/{id}
func (h *TenantHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewInvalidInputError("リクエストボディの解析に失敗しました"))
		return
	}

	t, err := h.service.Update(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id"), tenant.UpdateInput{
		Name:                 req.Name,
		Logo:                 req.Logo,
		Favicon:              req.Favicon,
		PrimaryColor:         req.PrimaryColor,
		SecondaryColor:       req.SecondaryColor,
		CustomCSS:            req.CustomCSS,
		CustomDomain:         req.CustomDomain,
		Features:             req.Features,
		DiscordGuildID:       req.DiscordGuildID,
		DiscordClientID:      req.DiscordClientID,
		DiscordClientSecret:  req.DiscordClientSecret,
		DiscordBotToken:      req.DiscordBotToken,
		DiscordWebhookURL:    req.DiscordWebhookURL,
		DiscordAdminChannel:  req.DiscordAdminChannel,
		DiscordRoleAdmin:     req.DiscordRoleAdmin,
		DiscordRoleEvaluator: req.DiscordRoleEvaluator,
		DiscordRolePlayer:    req.DiscordRolePlayer,
		IsActive:             req.IsActive,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, toTenantResponse(t))
}

// Delete はテナントを削除する。
// DELETE /api/tenants/{id}
func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), middleware.ActorFromContext(r.Context()), chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
