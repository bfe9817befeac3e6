package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hitoshi/guildgate/internal/model"
)

// PostgresTenantRepo はPostgreSQLを使用したテナントリポジトリ。
type PostgresTenantRepo struct {
	db *sql.DB
}

// NewPostgresTenantRepo はPostgresTenantRepoを生成する。
func NewPostgresTenantRepo(db *sql.DB) *PostgresTenantRepo {
	return &PostgresTenantRepo{db: db}
}

// tenantColumns は秘匿フィールドを含む全カラムのSELECTリスト。
const tenantColumns = `id, name, slug, subdomain, custom_domain,
	logo, favicon, primary_color, secondary_color, custom_css, features,
	discord_guild_id, discord_client_id, discord_client_secret,
	discord_bot_token, discord_webhook_url, discord_admin_channel,
	discord_role_admin, discord_role_evaluator, discord_role_player,
	is_active, created_at, updated_at`

// scanTenant は1行をTenantにスキャンする。
func scanTenant(row interface{ Scan(...any) error }) (*model.Tenant, error) {
	t := &model.Tenant{}
	var features string
	err := row.Scan(
		&t.ID, &t.Name, &t.Slug, &t.Subdomain, &t.CustomDomain,
		&t.Logo, &t.Favicon, &t.PrimaryColor, &t.SecondaryColor, &t.CustomCSS, &features,
		&t.DiscordGuildID, &t.DiscordClientID, &t.DiscordClientSecret,
		&t.DiscordBotToken, &t.DiscordWebhookURL, &t.DiscordAdminChannel,
		&t.DiscordRoleAdmin, &t.DiscordRoleEvaluator, &t.DiscordRolePlayer,
		&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.Features = parseFeatures(t.ID, features)
	return t, nil
}

// parseFeatures は保存されたJSON文字列を機能フラグにパースする。
// 破損したJSONはデフォルト値にフォールバックし、データ破損の可能性を
// 警告ログに残す（障害としては扱わない）。
func parseFeatures(tenantID, raw string) model.TenantFeatures {
	features := model.DefaultTenantFeatures()
	if raw == "" {
		return features
	}
	if err := json.Unmarshal([]byte(raw), &features); err != nil {
		slog.Warn("tenant features JSON is corrupted, falling back to defaults",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()),
		)
		return model.DefaultTenantFeatures()
	}
	return features
}

// FindBySlug は指定スラッグのテナントを秘匿フィールド込みで取得する。
// 見つからない場合はnilを返す。
func (r *PostgresTenantRepo) FindBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE slug = $1`,
		slug,
	)
	tenant, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant by slug: %w", err)
	}
	return tenant, nil
}

// FindByID は指定IDのテナントを取得する。見つからない場合はnilを返す。
func (r *PostgresTenantRepo) FindByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+tenantColumns+` FROM tenants WHERE id = $1`,
		id,
	)
	tenant, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find tenant by ID: %w", err)
	}
	return tenant, nil
}

// List は全テナントをユーザー数付きで作成日時降順で返す。
func (r *PostgresTenantRepo) List(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.slug, t.subdomain, t.custom_domain,
			t.logo, t.favicon, t.primary_color, t.secondary_color, t.custom_css, t.features,
			t.discord_guild_id, t.discord_client_id, t.discord_client_secret,
			t.discord_bot_token, t.discord_webhook_url, t.discord_admin_channel,
			t.discord_role_admin, t.discord_role_evaluator, t.discord_role_player,
			t.is_active, t.created_at, t.updated_at,
			COUNT(u.id) AS user_count
		 FROM tenants t
		 LEFT JOIN users u ON u.tenant_id = t.id
		 GROUP BY t.id
		 ORDER BY t.created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []*model.Tenant
	for rows.Next() {
		t := &model.Tenant{}
		var features string
		err := rows.Scan(
			&t.ID, &t.Name, &t.Slug, &t.Subdomain, &t.CustomDomain,
			&t.Logo, &t.Favicon, &t.PrimaryColor, &t.SecondaryColor, &t.CustomCSS, &features,
			&t.DiscordGuildID, &t.DiscordClientID, &t.DiscordClientSecret,
			&t.DiscordBotToken, &t.DiscordWebhookURL, &t.DiscordAdminChannel,
			&t.DiscordRoleAdmin, &t.DiscordRoleEvaluator, &t.DiscordRolePlayer,
			&t.IsActive, &t.CreatedAt, &t.UpdatedAt,
			&t.UserCount,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		t.Features = parseFeatures(t.ID, features)
		tenants = append(tenants, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tenants: %w", err)
	}

	return tenants, nil
}

// Create はテナントを作成する。
func (r *PostgresTenantRepo) Create(ctx context.Context, tenant *model.Tenant) error {
	features, err := json.Marshal(tenant.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO tenants (id, name, slug, subdomain, custom_domain,
			logo, favicon, primary_color, secondary_color, custom_css, features,
			discord_guild_id, discord_client_id, discord_client_secret,
			discord_bot_token, discord_webhook_url, discord_admin_channel,
			discord_role_admin, discord_role_evaluator, discord_role_player,
			is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
			$15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Subdomain, tenant.CustomDomain,
		tenant.Logo, tenant.Favicon, tenant.PrimaryColor, tenant.SecondaryColor,
		tenant.CustomCSS, string(features),
		tenant.DiscordGuildID, tenant.DiscordClientID, tenant.DiscordClientSecret,
		tenant.DiscordBotToken, tenant.DiscordWebhookURL, tenant.DiscordAdminChannel,
		tenant.DiscordRoleAdmin, tenant.DiscordRoleEvaluator, tenant.DiscordRolePlayer,
		tenant.IsActive, tenant.CreatedAt, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert tenant: %w", err)
	}
	return nil
}

// Update はテナント情報を更新する。
func (r *PostgresTenantRepo) Update(ctx context.Context, tenant *model.Tenant) error {
	features, err := json.Marshal(tenant.Features)
	if err != nil {
		return fmt.Errorf("failed to marshal features: %w", err)
	}

	result, err := r.db.ExecContext(ctx,
		`UPDATE tenants SET
			name = $2, slug = $3, subdomain = $4, custom_domain = $5,
			logo = $6, favicon = $7, primary_color = $8, secondary_color = $9,
			custom_css = $10, features = $11,
			discord_guild_id = $12, discord_client_id = $13, discord_client_secret = $14,
			discord_bot_token = $15, discord_webhook_url = $16, discord_admin_channel = $17,
			discord_role_admin = $18, discord_role_evaluator = $19, discord_role_player = $20,
			is_active = $21, updated_at = $22
		 WHERE id = $1`,
		tenant.ID, tenant.Name, tenant.Slug, tenant.Subdomain, tenant.CustomDomain,
		tenant.Logo, tenant.Favicon, tenant.PrimaryColor, tenant.SecondaryColor,
		tenant.CustomCSS, string(features),
		tenant.DiscordGuildID, tenant.DiscordClientID, tenant.DiscordClientSecret,
		tenant.DiscordBotToken, tenant.DiscordWebhookURL, tenant.DiscordAdminChannel,
		tenant.DiscordRoleAdmin, tenant.DiscordRoleEvaluator, tenant.DiscordRolePlayer,
		tenant.IsActive, tenant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %s", tenant.ID)
	}
	return nil
}

// DeleteByID は指定IDのテナントを削除する。
func (r *PostgresTenantRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM tenants WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete tenant: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("tenant not found: %s", id)
	}
	return nil
}

// CountUsers は指定テナントに紐付くユーザー数を返す。
func (r *PostgresTenantRepo) CountUsers(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1`,
		tenantID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count tenant users: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ TenantRepository = (*PostgresTenantRepo)(nil)
