// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/guildgate/internal/model"
)

// TenantRepository はテナントデータの永続化インターフェース。
type TenantRepository interface {
	// FindBySlug は指定スラッグのテナントを秘匿フィールド込みで取得する。
	// OAuthフロー専用。他の呼び出し元はFindByID/Listの編集済み射影を使うこと。
	// 見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Tenant, error)

	// FindByID は指定IDのテナントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Tenant, error)

	// List は全テナントをユーザー数付きで作成日時降順で返す。
	List(ctx context.Context) ([]*model.Tenant, error)

	// Create はテナントを作成する。
	Create(ctx context.Context, tenant *model.Tenant) error

	// Update はテナント情報を更新する。
	Update(ctx context.Context, tenant *model.Tenant) error

	// DeleteByID は指定IDのテナントを削除する。
	// 紐付くユーザーが存在する場合は外部キー制約によりエラーになる。
	DeleteByID(ctx context.Context, id string) error

	// CountUsers は指定テナントに紐付くユーザー数を返す。
	CountUsers(ctx context.Context, tenantID string) (int, error)
}

// UserRepository はテナントスコープのユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Upsert は (discord_id, tenant_id) をキーに冪等なUPSERTを行う。
	// 既存行がある場合はusername、avatar、role、is_adminを無条件に上書きする
	// （last-login-wins）。同時ログインでも一意制約違反にならないよう、
	// 単一のアトミックなINSERT ... ON CONFLICT文で実行する。
	Upsert(ctx context.Context, user *model.User) (*model.User, error)

	// FindByIDWithTenant は指定IDのユーザーをテナント（編集済み射影）付きで
	// 取得する。見つからない場合はnilを返す。
	FindByIDWithTenant(ctx context.Context, id string) (*model.User, error)
}

// AuditLogRepository は監査ログの永続化インターフェース。
type AuditLogRepository interface {
	// Create は監査ログエントリを作成する。
	Create(ctx context.Context, entry *model.AuditLog) error

	// ListRecent は監査ログを作成日時降順で最大limit件返す。
	ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error)

	// ListByEntity は指定エンティティの監査ログを作成日時降順で返す。
	ListByEntity(ctx context.Context, entity model.AuditEntity, entityID string) ([]*model.AuditLog, error)
}
