package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/guildgate/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Upsert は (discord_id, tenant_id) をキーに冪等なUPSERTを行う。
// 同一ユーザーの同時ログイン（ダブルクリック、複数タブ）でも重複行や
// 一意制約違反が発生しないよう、単一のアトミックな文で実行する。
// 既存行の場合はusername、avatar、role、is_adminを最新ログインの値で上書きする。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) (*model.User, error) {
	result := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (id, discord_id, tenant_id, username, avatar, role, is_admin, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		 ON CONFLICT (discord_id, tenant_id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar = EXCLUDED.avatar,
			role = EXCLUDED.role,
			is_admin = EXCLUDED.is_admin,
			updated_at = EXCLUDED.updated_at
		 RETURNING id, discord_id, tenant_id, username, avatar, role, is_admin, created_at, updated_at`,
		user.ID, user.DiscordID, user.TenantID, user.Username, user.Avatar,
		string(user.Role), user.IsAdmin, user.UpdatedAt,
	).Scan(
		&result.ID, &result.DiscordID, &result.TenantID, &result.Username,
		&result.Avatar, &result.Role, &result.IsAdmin,
		&result.CreatedAt, &result.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return result, nil
}

// FindByIDWithTenant は指定IDのユーザーをテナント付きで取得する。
// テナントの秘匿フィールドは含まない。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByIDWithTenant(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	tenant := &model.Tenant{}
	var features string
	err := r.db.QueryRowContext(ctx,
		`SELECT u.id, u.discord_id, u.tenant_id, u.username, u.avatar, u.role, u.is_admin,
			u.created_at, u.updated_at,
			t.id, t.name, t.slug, t.logo, t.favicon,
			t.primary_color, t.secondary_color, t.features, t.is_active
		 FROM users u
		 JOIN tenants t ON t.id = u.tenant_id
		 WHERE u.id = $1`,
		id,
	).Scan(
		&user.ID, &user.DiscordID, &user.TenantID, &user.Username, &user.Avatar,
		&user.Role, &user.IsAdmin, &user.CreatedAt, &user.UpdatedAt,
		&tenant.ID, &tenant.Name, &tenant.Slug, &tenant.Logo, &tenant.Favicon,
		&tenant.PrimaryColor, &tenant.SecondaryColor, &features, &tenant.IsActive,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}

	tenant.Features = parseFeatures(tenant.ID, features)
	user.Tenant = tenant
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
