package tenant

import (
	"context"
	"errors"
	"testing"

	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/security"
)

// --- Service テスト用モック ---

// mockTenantRepo はテスト用のTenantRepositoryモック。
type mockTenantRepo struct {
	tenants     map[string]*model.Tenant
	userCounts  map[string]int
	createCalls int
	updateCalls int
	deleteCalls int
}

func newMockTenantRepo(tenants ...*model.Tenant) *mockTenantRepo {
	m := &mockTenantRepo{
		tenants:    make(map[string]*model.Tenant),
		userCounts: make(map[string]int),
	}
	for _, t := range tenants {
		m.tenants[t.ID] = t
	}
	return m
}

func (m *mockTenantRepo) FindBySlug(_ context.Context, slug string) (*model.Tenant, error) {
	for _, t := range m.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (m *mockTenantRepo) FindByID(_ context.Context, id string) (*model.Tenant, error) {
	return m.tenants[id], nil
}

func (m *mockTenantRepo) List(_ context.Context) ([]*model.Tenant, error) {
	var result []*model.Tenant
	for _, t := range m.tenants {
		result = append(result, t)
	}
	return result, nil
}

func (m *mockTenantRepo) Create(_ context.Context, tenant *model.Tenant) error {
	m.createCalls++
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *mockTenantRepo) Update(_ context.Context, tenant *model.Tenant) error {
	m.updateCalls++
	m.tenants[tenant.ID] = tenant
	return nil
}

func (m *mockTenantRepo) DeleteByID(_ context.Context, id string) error {
	m.deleteCalls++
	delete(m.tenants, id)
	return nil
}

func (m *mockTenantRepo) CountUsers(_ context.Context, tenantID string) (int, error) {
	return m.userCounts[tenantID], nil
}

// mockAudit はテスト用のAuditRecorderモック。
type mockAudit struct {
	created int
	updated int
	deleted int
}

func (m *mockAudit) RecordTenantCreated(_ context.Context, actor string, tenant *model.Tenant) {
	m.created++
}

func (m *mockAudit) RecordTenantUpdated(_ context.Context, actor string, tenant *model.Tenant) {
	m.updated++
}

func (m *mockAudit) RecordTenantDeleted(_ context.Context, actor string, tenant *model.Tenant) {
	m.deleted++
}

func validCreateInput() CreateInput {
	return CreateInput{
		Name:                "Acme Guild",
		Slug:                "acme",
		DiscordGuildID:      "400000000000000001",
		DiscordClientID:     "500000000000000001",
		DiscordClientSecret: "super-secret-value",
	}
}

// newTestService はテスト用のServiceを組み立てる。
// auditは界面型で受ける。*mockAudit型のnilを渡すと非nilの
// インターフェース値になり、nilレシーバー呼び出しで落ちるため。
func newTestService(repo *mockTenantRepo, audit AuditRecorder) *Service {
	return NewService(repo, security.NewURLGuard(), security.NewTextSanitizer(), audit)
}

// --- Create ---

func TestService_Create(t *testing.T) {
	repo := newMockTenantRepo()
	audit := &mockAudit{}
	svc := newTestService(repo, audit)

	tenant, err := svc.Create(context.Background(), "console", validCreateInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if tenant.ID == "" {
		t.Error("ID should be generated")
	}
	if tenant.Slug != "acme" {
		t.Errorf("Slug = %q, want %q", tenant.Slug, "acme")
	}
	if tenant.Subdomain != "acme" {
		t.Errorf("Subdomain = %q, want slug-synced %q", tenant.Subdomain, "acme")
	}
	if !tenant.IsActive {
		t.Error("IsActive = false, want true (作成直後から有効)")
	}
	if tenant.Features != model.DefaultTenantFeatures() {
		t.Errorf("Features = %+v, want defaults", tenant.Features)
	}
	// 返却値は編集済み射影。
	if tenant.DiscordClientSecret != "" {
		t.Error("DiscordClientSecret should be redacted in response")
	}
	// 保存値には秘匿フィールドが残る。
	if repo.tenants[tenant.ID].DiscordClientSecret != "super-secret-value" {
		t.Error("stored tenant should keep client secret")
	}
	if audit.created != 1 {
		t.Errorf("audit created = %d, want 1", audit.created)
	}
}

func TestService_Create_SlugNormalized(t *testing.T) {
	svc := newTestService(newMockTenantRepo(), nil)

	input := validCreateInput()
	input.Slug = "  ACME  "
	tenant, err := svc.Create(context.Background(), "console", input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tenant.Slug != "acme" {
		t.Errorf("Slug = %q, want normalized %q", tenant.Slug, "acme")
	}
}

func TestService_Create_NameSanitized(t *testing.T) {
	svc := newTestService(newMockTenantRepo(), nil)

	input := validCreateInput()
	input.Name = `<script>alert(1)</script>Acme Guild`
	tenant, err := svc.Create(context.Background(), "console", input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if tenant.Name != "Acme Guild" {
		t.Errorf("Name = %q, want sanitized %q", tenant.Name, "Acme Guild")
	}
}

func TestService_Create_SlugTaken(t *testing.T) {
	existing := &model.Tenant{ID: "t1", Slug: "acme", Name: "Existing"}
	svc := newTestService(newMockTenantRepo(existing), nil)

	_, err := svc.Create(context.Background(), "console", validCreateInput())
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeSlugTaken {
		t.Fatalf("err = %v, want SLUG_TAKEN", err)
	}
}

func TestService_Create_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *CreateInput)
	}{
		{"名前が短すぎる", func(in *CreateInput) { in.Name = "A" }},
		{"名前がタグのみ", func(in *CreateInput) { in.Name = "<b></b>" }},
		{"スラッグに大文字記号", func(in *CreateInput) { in.Slug = "Acme_Guild!" }},
		{"スラッグが短すぎる", func(in *CreateInput) { in.Slug = "a" }},
		{"ギルドIDが数値でない", func(in *CreateInput) { in.DiscordGuildID = "not-a-snowflake" }},
		{"ギルドIDが短すぎる", func(in *CreateInput) { in.DiscordGuildID = "12345" }},
		{"クライアントIDが不正", func(in *CreateInput) { in.DiscordClientID = "abc" }},
		{"シークレットが短すぎる", func(in *CreateInput) { in.DiscordClientSecret = "short" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockTenantRepo()
			svc := newTestService(repo, nil)

			input := validCreateInput()
			tt.mutate(&input)

			_, err := svc.Create(context.Background(), "console", input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
				t.Fatalf("err = %v, want INVALID_INPUT", err)
			}
			if repo.createCalls != 0 {
				t.Errorf("createCalls = %d, want 0", repo.createCalls)
			}
		})
	}
}

// --- Update ---

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func storedTenant() *model.Tenant {
	return &model.Tenant{
		ID:                  "tenant-uuid-1",
		Name:                "Acme Guild",
		Slug:                "acme",
		Subdomain:           "acme",
		DiscordGuildID:      "400000000000000001",
		DiscordClientID:     "500000000000000001",
		DiscordClientSecret: "super-secret-value",
		Features:            model.DefaultTenantFeatures(),
		IsActive:            true,
	}
}

func TestService_Update_PartialFields(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	audit := &mockAudit{}
	svc := newTestService(repo, audit)

	updated, err := svc.Update(context.Background(), "console", "tenant-uuid-1", UpdateInput{
		Name:         strPtr("Acme Reborn"),
		PrimaryColor: strPtr("#FF5500"),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if updated.Name != "Acme Reborn" {
		t.Errorf("Name = %q, want %q", updated.Name, "Acme Reborn")
	}
	if updated.PrimaryColor != "#FF5500" {
		t.Errorf("PrimaryColor = %q, want %q", updated.PrimaryColor, "#FF5500")
	}
	// 未指定のフィールドは変更されない。
	if updated.Slug != "acme" {
		t.Errorf("Slug = %q, want unchanged %q", updated.Slug, "acme")
	}
	if repo.tenants["tenant-uuid-1"].DiscordClientSecret != "super-secret-value" {
		t.Error("client secret should remain unchanged")
	}
	if audit.updated != 1 {
		t.Errorf("audit updated = %d, want 1", audit.updated)
	}
}

func TestService_Update_RoleMapping(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	_, err := svc.Update(context.Background(), "console", "tenant-uuid-1", UpdateInput{
		DiscordRoleAdmin:     strPtr("111111111111111111"),
		DiscordRoleEvaluator: strPtr("222222222222222222"),
		DiscordRolePlayer:    strPtr(""),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	stored := repo.tenants["tenant-uuid-1"]
	if stored.DiscordRoleAdmin != "111111111111111111" {
		t.Errorf("DiscordRoleAdmin = %q", stored.DiscordRoleAdmin)
	}
	// 空文字列でEvaluator/Playerのtierを未設定に戻せる。
	if stored.DiscordRolePlayer != "" {
		t.Errorf("DiscordRolePlayer = %q, want empty", stored.DiscordRolePlayer)
	}
}

func TestService_Update_Deactivate(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	updated, err := svc.Update(context.Background(), "console", "tenant-uuid-1", UpdateInput{
		IsActive: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.IsActive {
		t.Error("IsActive = true, want false")
	}
}

func TestService_Update_NotFound(t *testing.T) {
	svc := newTestService(newMockTenantRepo(), nil)

	_, err := svc.Update(context.Background(), "console", "missing", UpdateInput{Name: strPtr("X Y")})
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTenantNotFound {
		t.Fatalf("err = %v, want TENANT_NOT_FOUND", err)
	}
}

func TestService_Update_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		input UpdateInput
	}{
		{"不正なカラー形式", UpdateInput{PrimaryColor: strPtr("red")}},
		{"不正なロールID", UpdateInput{DiscordRoleAdmin: strPtr("abc")}},
		{"WebhookがプライベートIP", UpdateInput{DiscordWebhookURL: strPtr("http://169.254.169.254/hook")}},
		{"Webhookがlocalhost", UpdateInput{DiscordWebhookURL: strPtr("http://localhost/hook")}},
		{"Webhookのスキーム不正", UpdateInput{DiscordWebhookURL: strPtr("ftp://example.com/hook")}},
		{"ロゴURLが不正", UpdateInput{Logo: strPtr("javascript:alert(1)")}},
		{"ギルドIDが不正", UpdateInput{DiscordGuildID: strPtr("xyz")}},
		{"シークレットが短い", UpdateInput{DiscordClientSecret: strPtr("short")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMockTenantRepo(storedTenant())
			svc := newTestService(repo, nil)

			_, err := svc.Update(context.Background(), "console", "tenant-uuid-1", tt.input)
			var apiErr *model.APIError
			if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidInput {
				t.Fatalf("err = %v, want INVALID_INPUT", err)
			}
			if repo.updateCalls != 0 {
				t.Errorf("updateCalls = %d, want 0", repo.updateCalls)
			}
		})
	}
}

func TestService_Update_WebhookURLAllowed(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	_, err := svc.Update(context.Background(), "console", "tenant-uuid-1", UpdateInput{
		DiscordWebhookURL: strPtr("https://discord.com/api/webhooks/123/token"),
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if repo.tenants["tenant-uuid-1"].DiscordWebhookURL != "https://discord.com/api/webhooks/123/token" {
		t.Error("webhook URL should be stored")
	}
}

// --- Delete ---

func TestService_Delete(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	audit := &mockAudit{}
	svc := newTestService(repo, audit)

	if err := svc.Delete(context.Background(), "console", "tenant-uuid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if repo.deleteCalls != 1 {
		t.Errorf("deleteCalls = %d, want 1", repo.deleteCalls)
	}
	if audit.deleted != 1 {
		t.Errorf("audit deleted = %d, want 1", audit.deleted)
	}
}

func TestService_Delete_BlockedWhenUsersExist(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	repo.userCounts["tenant-uuid-1"] = 3
	svc := newTestService(repo, nil)

	err := svc.Delete(context.Background(), "console", "tenant-uuid-1")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTenantHasUsers {
		t.Fatalf("err = %v, want TENANT_HAS_USERS", err)
	}
	if repo.deleteCalls != 0 {
		t.Errorf("deleteCalls = %d, want 0", repo.deleteCalls)
	}
}

func TestService_Delete_NotFound(t *testing.T) {
	svc := newTestService(newMockTenantRepo(), nil)

	err := svc.Delete(context.Background(), "console", "missing")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeTenantNotFound {
		t.Fatalf("err = %v, want TENANT_NOT_FOUND", err)
	}
}

// --- 取得系 ---

func TestService_Get_Redacted(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	tenant, err := svc.Get(context.Background(), "tenant-uuid-1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if tenant.DiscordClientSecret != "" || tenant.DiscordBotToken != "" {
		t.Error("secret fields should be redacted")
	}
}

func TestService_List_Redacted(t *testing.T) {
	stored := storedTenant()
	stored.DiscordBotToken = "bot-token-value"
	repo := newMockTenantRepo(stored)
	svc := newTestService(repo, nil)

	tenants, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(tenants) != 1 {
		t.Fatalf("len = %d, want 1", len(tenants))
	}
	if tenants[0].DiscordClientSecret != "" || tenants[0].DiscordBotToken != "" {
		t.Error("secret fields should be redacted")
	}
	// 編集は返却用コピーに対して行われ、保存値は変更されない。
	if stored.DiscordBotToken != "bot-token-value" {
		t.Error("stored tenant must not be mutated by redaction")
	}
}

func TestService_GetBySlug(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	tenant, err := svc.GetBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("GetBySlug failed: %v", err)
	}
	if tenant.Slug != "acme" {
		t.Errorf("Slug = %q, want %q", tenant.Slug, "acme")
	}
	if tenant.DiscordClientSecret != "" {
		t.Error("secret fields should be redacted")
	}

	if _, err := svc.GetBySlug(context.Background(), "missing"); err == nil {
		t.Error("GetBySlug for missing slug should fail")
	}
}

// --- 監査レコーダー未設定 ---

// 監査レコーダーなしでも書き込み系の操作がパニックせず完走すること。
func TestService_WriteOperationsWithoutAudit(t *testing.T) {
	repo := newMockTenantRepo(storedTenant())
	svc := newTestService(repo, nil)

	input := validCreateInput()
	input.Slug = "globex"
	created, err := svc.Create(context.Background(), "console", input)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if created == nil {
		t.Fatal("Create returned nil tenant")
	}

	name := "Renamed Guild"
	if _, err := svc.Update(context.Background(), "console", "tenant-uuid-1", UpdateInput{Name: &name}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	if err := svc.Delete(context.Background(), "console", "tenant-uuid-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
}
