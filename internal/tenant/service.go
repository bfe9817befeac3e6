// Package tenant はテナントのプロビジョニングと設定管理のドメインロジックを提供する。
package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/repository"
	"github.com/hitoshi/guildgate/internal/security"
)

// AuditRecorder はテナント操作の監査記録インターフェース。
type AuditRecorder interface {
	RecordTenantCreated(ctx context.Context, actor string, tenant *model.Tenant)
	RecordTenantUpdated(ctx context.Context, actor string, tenant *model.Tenant)
	RecordTenantDeleted(ctx context.Context, actor string, tenant *model.Tenant)
}

// CreateInput はテナント作成の入力。
type CreateInput struct {
	Name                string
	Slug                string
	DiscordGuildID      string
	DiscordClientID     string
	DiscordClientSecret string
	DiscordBotToken     string
}

// UpdateInput はテナント更新の入力。
// nilのフィールドは「変更なし」を意味する。
type UpdateInput struct {
	Name                 *string
	Logo                 *string
	Favicon              *string
	PrimaryColor         *string
	SecondaryColor       *string
	CustomCSS            *string
	CustomDomain         *string
	Features             *model.TenantFeatures
	DiscordGuildID       *string
	DiscordClientID      *string
	DiscordClientSecret  *string
	DiscordBotToken      *string
	DiscordWebhookURL    *string
	DiscordAdminChannel  *string
	DiscordRoleAdmin     *string
	DiscordRoleEvaluator *string
	DiscordRolePlayer    *string
	IsActive             *bool
}

// Service はテナント管理のサービス層。
// コンソールAPIからの作成・更新・削除・一覧のビジネスロジックを提供する。
type Service struct {
	repo      repository.TenantRepository
	urlGuard  security.URLGuardService
	sanitizer security.TextSanitizerService
	audit     AuditRecorder
}

// NewService はServiceの新しいインスタンスを生成する。
// auditはnilを許容する。
func NewService(
	repo repository.TenantRepository,
	urlGuard security.URLGuardService,
	sanitizer security.TextSanitizerService,
	audit AuditRecorder,
) *Service {
	return &Service{
		repo:      repo,
		urlGuard:  urlGuard,
		sanitizer: sanitizer,
		audit:     audit,
	}
}

// slugPattern はテナントスラッグの許可形式。
// URLパスとCookie名の両方に埋め込まれるため、小文字英数とハイフンのみ許可する。
var slugPattern = regexp.MustCompile(`^[a-z0-9-]{2,50}$`)

// snowflakePattern はDiscordのID形式（snowflake）。
var snowflakePattern = regexp.MustCompile(`^[0-9]{17,20}$`)

// hexColorPattern はブランディングカラーの形式。
var hexColorPattern = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// List は全テナントをユーザー数付きで返す。秘匿フィールドは編集済み。
func (s *Service) List(ctx context.Context) ([]*model.Tenant, error) {
	tenants, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("テナント一覧の取得に失敗しました: %w", err)
	}
	redacted := make([]*model.Tenant, len(tenants))
	for i, t := range tenants {
		r := t.Redacted()
		redacted[i] = &r
	}
	return redacted, nil
}

// Get は指定IDのテナントを返す。秘匿フィールドは編集済み。
func (s *Service) Get(ctx context.Context, id string) (*model.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return nil, model.NewTenantNotFoundError(id)
	}
	r := tenant.Redacted()
	return &r, nil
}

// GetBySlug は指定スラッグのテナントを返す。秘匿フィールドは編集済み。
// 公開ランディングページの描画に使用する。
func (s *Service) GetBySlug(ctx context.Context, slug string) (*model.Tenant, error) {
	tenant, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return nil, model.NewTenantNotFoundError(slug)
	}
	r := tenant.Redacted()
	return &r, nil
}

// Create は新しいテナントをプロビジョニングする。
// スラッグは全テナントで一意であり、サブドメインはスラッグと同期される。
// 機能フラグはデフォルト値で初期化され、作成直後から有効状態になる。
func (s *Service) Create(ctx context.Context, actor string, input CreateInput) (*model.Tenant, error) {
	name := s.sanitizer.SanitizeText(input.Name)
	slug := strings.ToLower(strings.TrimSpace(input.Slug))

	if err := validateName(name); err != nil {
		return nil, err
	}
	if !slugPattern.MatchString(slug) {
		return nil, model.NewInvalidInputError("スラッグは2〜50文字の小文字英数とハイフンで指定してください")
	}
	if err := validateSnowflake("ギルドID", input.DiscordGuildID); err != nil {
		return nil, err
	}
	if err := validateSnowflake("クライアントID", input.DiscordClientID); err != nil {
		return nil, err
	}
	if len(input.DiscordClientSecret) < 10 {
		return nil, model.NewInvalidInputError("クライアントシークレットが短すぎます")
	}

	existing, err := s.repo.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("スラッグの重複確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewSlugTakenError(slug)
	}

	now := time.Now()
	tenant := &model.Tenant{
		ID:                  uuid.New().String(),
		Name:                name,
		Slug:                slug,
		Subdomain:           slug,
		Features:            model.DefaultTenantFeatures(),
		DiscordGuildID:      input.DiscordGuildID,
		DiscordClientID:     input.DiscordClientID,
		DiscordClientSecret: input.DiscordClientSecret,
		DiscordBotToken:     input.DiscordBotToken,
		IsActive:            true,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := s.repo.Create(ctx, tenant); err != nil {
		return nil, fmt.Errorf("テナントの作成に失敗しました: %w", err)
	}

	if s.audit != nil {
		s.audit.RecordTenantCreated(ctx, actor, tenant)
	}

	r := tenant.Redacted()
	return &r, nil
}

// Update はテナント設定を部分更新する。
// 指定されたフィールドのみ検証・反映し、未指定のフィールドは変更しない。
func (s *Service) Update(ctx context.Context, actor, id string, input UpdateInput) (*model.Tenant, error) {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return nil, model.NewTenantNotFoundError(id)
	}

	if err := s.applyUpdate(tenant, input); err != nil {
		return nil, err
	}
	tenant.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, tenant); err != nil {
		return nil, fmt.Errorf("テナントの更新に失敗しました: %w", err)
	}

	if s.audit != nil {
		s.audit.RecordTenantUpdated(ctx, actor, tenant)
	}

	r := tenant.Redacted()
	return &r, nil
}

// applyUpdate は入力の検証とテナントへの反映を行う。
func (s *Service) applyUpdate(tenant *model.Tenant, input UpdateInput) error {
	if input.Name != nil {
		name := s.sanitizer.SanitizeText(*input.Name)
		if err := validateName(name); err != nil {
			return err
		}
		tenant.Name = name
	}
	if input.Logo != nil {
		if err := s.validateAssetURL("ロゴURL", *input.Logo); err != nil {
			return err
		}
		tenant.Logo = *input.Logo
	}
	if input.Favicon != nil {
		if err := s.validateAssetURL("ファビコンURL", *input.Favicon); err != nil {
			return err
		}
		tenant.Favicon = *input.Favicon
	}
	if input.PrimaryColor != nil {
		if err := validateHexColor("プライマリカラー", *input.PrimaryColor); err != nil {
			return err
		}
		tenant.PrimaryColor = *input.PrimaryColor
	}
	if input.SecondaryColor != nil {
		if err := validateHexColor("セカンダリカラー", *input.SecondaryColor); err != nil {
			return err
		}
		tenant.SecondaryColor = *input.SecondaryColor
	}
	if input.CustomCSS != nil {
		tenant.CustomCSS = *input.CustomCSS
	}
	if input.CustomDomain != nil {
		tenant.CustomDomain = strings.ToLower(strings.TrimSpace(*input.CustomDomain))
	}
	if input.Features != nil {
		tenant.Features = *input.Features
	}
	if input.DiscordGuildID != nil {
		if err := validateSnowflake("ギルドID", *input.DiscordGuildID); err != nil {
			return err
		}
		tenant.DiscordGuildID = *input.DiscordGuildID
	}
	if input.DiscordClientID != nil {
		if err := validateSnowflake("クライアントID", *input.DiscordClientID); err != nil {
			return err
		}
		tenant.DiscordClientID = *input.DiscordClientID
	}
	if input.DiscordClientSecret != nil {
		if len(*input.DiscordClientSecret) < 10 {
			return model.NewInvalidInputError("クライアントシークレットが短すぎます")
		}
		tenant.DiscordClientSecret = *input.DiscordClientSecret
	}
	if input.DiscordBotToken != nil {
		tenant.DiscordBotToken = *input.DiscordBotToken
	}
	if input.DiscordWebhookURL != nil {
		if *input.DiscordWebhookURL != "" {
			if err := s.urlGuard.ValidateURL(*input.DiscordWebhookURL); err != nil {
				return model.NewInvalidInputError(fmt.Sprintf("Webhook URLが不正です: %v", err))
			}
		}
		tenant.DiscordWebhookURL = *input.DiscordWebhookURL
	}
	if input.DiscordAdminChannel != nil {
		if *input.DiscordAdminChannel != "" {
			if err := validateSnowflake("管理チャンネルID", *input.DiscordAdminChannel); err != nil {
				return err
			}
		}
		tenant.DiscordAdminChannel = *input.DiscordAdminChannel
	}
	if input.DiscordRoleAdmin != nil {
		if err := validateSnowflake("管理者ロールID", *input.DiscordRoleAdmin); err != nil {
			return err
		}
		tenant.DiscordRoleAdmin = *input.DiscordRoleAdmin
	}
	if input.DiscordRoleEvaluator != nil {
		if *input.DiscordRoleEvaluator != "" {
			if err := validateSnowflake("評価者ロールID", *input.DiscordRoleEvaluator); err != nil {
				return err
			}
		}
		tenant.DiscordRoleEvaluator = *input.DiscordRoleEvaluator
	}
	if input.DiscordRolePlayer != nil {
		if *input.DiscordRolePlayer != "" {
			if err := validateSnowflake("プレイヤーロールID", *input.DiscordRolePlayer); err != nil {
				return err
			}
		}
		tenant.DiscordRolePlayer = *input.DiscordRolePlayer
	}
	if input.IsActive != nil {
		tenant.IsActive = *input.IsActive
	}
	return nil
}

// Delete はテナントを削除する。
// 紐付くユーザーが存在する場合は削除できない（先にユーザーを移行すること）。
func (s *Service) Delete(ctx context.Context, actor, id string) error {
	tenant, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("テナントの取得に失敗しました: %w", err)
	}
	if tenant == nil {
		return model.NewTenantNotFoundError(id)
	}

	count, err := s.repo.CountUsers(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザー数の確認に失敗しました: %w", err)
	}
	if count > 0 {
		return model.NewTenantHasUsersError()
	}

	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("テナントの削除に失敗しました: %w", err)
	}

	if s.audit != nil {
		s.audit.RecordTenantDeleted(ctx, actor, tenant)
	}
	return nil
}

// validateName はテナント表示名を検証する。サニタイズ後の値で判定する。
func validateName(name string) error {
	if len([]rune(name)) < 2 {
		return model.NewInvalidInputError("テナント名は2文字以上で指定してください")
	}
	if len([]rune(name)) > 100 {
		return model.NewInvalidInputError("テナント名は100文字以内で指定してください")
	}
	return nil
}

// validateSnowflake はDiscordのID形式を検証する。
func validateSnowflake(label, value string) error {
	if !snowflakePattern.MatchString(value) {
		return model.NewInvalidInputError(label + "はDiscordのID形式（17〜20桁の数字）で指定してください")
	}
	return nil
}

// validateHexColor はブランディングカラーの形式を検証する。
func validateHexColor(label, value string) error {
	if value == "" {
		return nil
	}
	if !hexColorPattern.MatchString(value) {
		return model.NewInvalidInputError(label + "は#RRGGBB形式で指定してください")
	}
	return nil
}

// validateAssetURL はロゴ・ファビコンのURLを検証する。
// ブラウザから参照される値だが、SSRF対策と同じ許可基準を適用する。
func (s *Service) validateAssetURL(label, value string) error {
	if value == "" {
		return nil
	}
	if err := s.urlGuard.ValidateURL(value); err != nil {
		return model.NewInvalidInputError(fmt.Sprintf("%sが不正です: %v", label, err))
	}
	return nil
}
