package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/guildgate/internal/middleware"
	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/tenant"
)

type mockTenantService struct {
	tenants    []*model.Tenant
	tenant     *model.Tenant
	err        error
	lastActor  string
	lastID     string
	lastCreate tenant.CreateInput
	lastUpdate tenant.UpdateInput
}

func (m *mockTenantService) List(_ context.Context) ([]*model.Tenant, error) {
	return m.tenants, m.err
}

func (m *mockTenantService) Get(_ context.Context, id string) (*model.Tenant, error) {
	m.lastID = id
	return m.tenant, m.err
}

func (m *mockTenantService) Create(_ context.Context, actor string, input tenant.CreateInput) (*model.Tenant, error) {
	m.lastActor = actor
	m.lastCreate = input
	return m.tenant, m.err
}

func (m *mockTenantService) Update(_ context.Context, actor, id string, input tenant.UpdateInput) (*model.Tenant, error) {
	m.lastActor = actor
	m.lastID = id
	m.lastUpdate = input
	return m.tenant, m.err
}

func (m *mockTenantService) Delete(_ context.Context, actor, id string) error {
	m.lastActor = actor
	m.lastID = id
	return m.err
}

func consoleTenant() *model.Tenant {
	return &model.Tenant{
		ID:               "tenant-1",
		Name:             "Acme Guild",
		Slug:             "acme",
		Subdomain:        "acme",
		Features:         model.DefaultTenantFeatures(),
		DiscordGuildID:   "400000000000000001",
		DiscordClientID:  "500000000000000001",
		DiscordRoleAdmin: "111111111111111111",
		IsActive:         true,
		UserCount:        3,
		CreatedAt:        time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:        time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func newTenantTestRouter(service *mockTenantService) http.Handler {
	h := NewTenantHandler(service)

	r := chi.NewRouter()
	// 本番では /api 配下でスーパー管理者ミドルウェアがactorを注入する
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.ContextWithActor(req.Context(), "console-abcd1234")))
		})
	})
	r.Get("/api/tenants", h.List)
	r.Post("/api/tenants", h.Create)
	r.Get("/api/tenants/{id}", h.Get)
	r.Put("/api/tenants/{id}", h.Update)
	r.Delete("/api/tenants/{id}", h.Delete)
	return r
}

func TestTenantHandler_List(t *testing.T) {
	service := &mockTenantService{tenants: []*model.Tenant{consoleTenant()}}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var got []tenantResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Slug != "acme" || got[0].UserCount != 3 {
		t.Errorf("unexpected response: %+v", got[0])
	}
}

func TestTenantHandler_Get(t *testing.T) {
	service := &mockTenantService{tenant: consoleTenant()}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/tenant-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if service.lastID != "tenant-1" {
		t.Errorf("id = %q, want tenant-1", service.lastID)
	}
}

func TestTenantHandler_Get_NotFound(t *testing.T) {
	service := &mockTenantService{err: model.NewTenantNotFoundError("ghost")}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants/ghost", nil))

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body apiErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != model.ErrCodeTenantNotFound {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeTenantNotFound)
	}
}

func TestTenantHandler_Create(t *testing.T) {
	service := &mockTenantService{tenant: consoleTenant()}
	router := newTenantTestRouter(service)

	body := `{
		"name": "Acme Guild",
		"slug": "acme",
		"discordGuildId": "400000000000000001",
		"discordClientId": "500000000000000001",
		"discordClientSecret": "super-secret-value",
		"discordBotToken": "bot-token-value"
	}`

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tenants", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusCreated)
	}
	if service.lastActor != "console-abcd1234" {
		t.Errorf("actor = %q, want console-abcd1234", service.lastActor)
	}
	if service.lastCreate.DiscordClientSecret != "super-secret-value" {
		t.Errorf("client secret not forwarded to service")
	}

	// レスポンスのどこにも秘匿情報が現れないこと
	raw := rec.Body.String()
	if strings.Contains(raw, "super-secret-value") || strings.Contains(raw, "bot-token-value") {
		t.Errorf("response leaks secrets: %s", raw)
	}
}

func TestTenantHandler_Create_InvalidJSON(t *testing.T) {
	service := &mockTenantService{tenant: consoleTenant()}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tenants", strings.NewReader("{not json")))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestTenantHandler_Create_SlugTaken(t *testing.T) {
	service := &mockTenantService{err: model.NewSlugTakenError("acme")}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tenants", strings.NewReader(`{"slug":"acme"}`)))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestTenantHandler_Update_PartialFields(t *testing.T) {
	service := &mockTenantService{tenant: consoleTenant()}
	router := newTenantTestRouter(service)

	body := `{"name": "New Name", "isActive": false}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/api/tenants/tenant-1", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if service.lastUpdate.Name == nil || *service.lastUpdate.Name != "New Name" {
		t.Error("name not forwarded")
	}
	if service.lastUpdate.IsActive == nil || *service.lastUpdate.IsActive != false {
		t.Error("isActive not forwarded")
	}
	if service.lastUpdate.Logo != nil {
		t.Error("omitted field should stay nil")
	}
}

func TestTenantHandler_Delete(t *testing.T) {
	service := &mockTenantService{}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tenants/tenant-1", nil))

	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNoContent)
	}
	if service.lastID != "tenant-1" {
		t.Errorf("id = %q, want tenant-1", service.lastID)
	}
}

func TestTenantHandler_Delete_HasUsers(t *testing.T) {
	service := &mockTenantService{err: model.NewTenantHasUsersError()}
	router := newTenantTestRouter(service)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/tenants/tenant-1", nil))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}
