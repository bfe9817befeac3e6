// Package audit は管理操作・認証イベントの監査記録を提供する。
//
// 監査記録はベストエフォートで動作する。記録の失敗は呼び出し元の操作を
// 妨げず、サーバーログにのみ残す。
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/repository"
)

// Service は監査ログの記録と参照のサービス層。
type Service struct {
	repo repository.AuditLogRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.AuditLogRepository) *Service {
	return &Service{repo: repo}
}

// ListRecent は監査ログを新しい順で最大limit件返す。
func (s *Service) ListRecent(ctx context.Context, limit int) ([]*model.AuditLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.ListRecent(ctx, limit)
}

// ListByEntity は指定エンティティの監査ログを新しい順で返す。
func (s *Service) ListByEntity(ctx context.Context, entity model.AuditEntity, entityID string) ([]*model.AuditLog, error) {
	return s.repo.ListByEntity(ctx, entity, entityID)
}

// RecordLogin はテナントログイン成功を記録する。
func (s *Service) RecordLogin(ctx context.Context, tenant *model.Tenant, user *model.User) {
	s.record(ctx, &model.AuditLog{
		Action:   model.AuditActionLogin,
		Entity:   model.AuditEntitySession,
		EntityID: tenant.ID,
		ActorID:  user.ID,
		Details: mustJSON(map[string]string{
			"tenantSlug": tenant.Slug,
			"discordId":  user.DiscordID,
			"role":       string(user.Role),
		}),
	})
}

// RecordLogout はテナントログアウトを記録する。
func (s *Service) RecordLogout(ctx context.Context, tenantID, tenantSlug, userID string) {
	s.record(ctx, &model.AuditLog{
		Action:   model.AuditActionLogout,
		Entity:   model.AuditEntitySession,
		EntityID: tenantID,
		ActorID:  userID,
		Details:  mustJSON(map[string]string{"tenantSlug": tenantSlug}),
	})
}

// RecordTenantCreated はテナント作成を記録する。
func (s *Service) RecordTenantCreated(ctx context.Context, actor string, tenant *model.Tenant) {
	s.record(ctx, &model.AuditLog{
		Action:   model.AuditActionCreate,
		Entity:   model.AuditEntityTenant,
		EntityID: tenant.ID,
		ActorID:  actor,
		Details:  mustJSON(map[string]string{"slug": tenant.Slug, "name": tenant.Name}),
	})
}

// RecordTenantUpdated はテナント設定の更新を記録する。
// 秘匿フィールドの値はDetailsに含めない。
func (s *Service) RecordTenantUpdated(ctx context.Context, actor string, tenant *model.Tenant) {
	s.record(ctx, &model.AuditLog{
		Action:   model.AuditActionUpdate,
		Entity:   model.AuditEntitySettings,
		EntityID: tenant.ID,
		ActorID:  actor,
		Details:  mustJSON(map[string]string{"slug": tenant.Slug}),
	})
}

// RecordTenantDeleted はテナント削除を記録する。
func (s *Service) RecordTenantDeleted(ctx context.Context, actor string, tenant *model.Tenant) {
	s.record(ctx, &model.AuditLog{
		Action:   model.AuditActionDelete,
		Entity:   model.AuditEntityTenant,
		EntityID: tenant.ID,
		ActorID:  actor,
		Details:  mustJSON(map[string]string{"slug": tenant.Slug, "name": tenant.Name}),
	})
}

// record はエントリを永続化する。失敗してもエラーを伝播しない。
func (s *Service) record(ctx context.Context, entry *model.AuditLog) {
	entry.ID = uuid.New().String()
	entry.CreatedAt = time.Now()

	if err := s.repo.Create(ctx, entry); err != nil {
		slog.Error("failed to record audit log",
			slog.String("action", string(entry.Action)),
			slog.String("entity", string(entry.Entity)),
			slog.String("entity_id", entry.EntityID),
			slog.String("error", err.Error()),
		)
	}
}

// mustJSON はDetails用のJSON文字列を生成する。
// map[string]stringのエンコードは失敗しない。
func mustJSON(v map[string]string) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
