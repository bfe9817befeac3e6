// Package auth はテナントごとのDiscord OAuth認証フローと
// セッション資格情報の発行・検証を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/guildgate/internal/model"
	"github.com/hitoshi/guildgate/internal/repository"
)

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// テストでフェイクに差し替えるための抽象化。
type OAuthProvider interface {
	// AuthorizeURL は認可エンドポイントへのリダイレクトURLを生成する。
	AuthorizeURL(clientID, redirectURI, state string) string
	// ExchangeCode は認可コードをアクセストークンに交換する。
	ExchangeCode(ctx context.Context, creds ClientCredentials, code, redirectURI string) (string, error)
	// FetchUser は認証済みユーザーの情報を取得する。
	FetchUser(ctx context.Context, accessToken string) (*DiscordUser, error)
	// FetchGuildMember は指定ギルドでのメンバー情報（ロール集合）を取得する。
	FetchGuildMember(ctx context.Context, accessToken, guildID string) (*DiscordGuildMember, error)
}

// LoginNotifier はログイン成功時の通知インターフェース。
// 実装はベストエフォートで動作し、失敗してもログインを妨げない。
type LoginNotifier interface {
	NotifyLogin(ctx context.Context, tenant *model.Tenant, user *model.User)
}

// LoginMetrics はログインフローのメトリクス記録インターフェース。
type LoginMetrics interface {
	RecordLoginSuccess(slug string)
	RecordLoginFailure(slug string, reason string)
	RecordUserUpserted()
	ObserveOAuthRequest(operation string, seconds float64)
}

// AuditRecorder はログインイベントの監査記録インターフェース。
type AuditRecorder interface {
	RecordLogin(ctx context.Context, tenant *model.Tenant, user *model.User)
	RecordLogout(ctx context.Context, tenantID, tenantSlug, userID string)
}

// LoginError はログインフローの失敗を表す。
// Reasonはリダイレクト先に付与される粗い理由コードで、診断の詳細は
// Errに保持しサーバーログにのみ出力する。
type LoginError struct {
	Reason model.LoginReason
	Err    error
}

// Error はerrorインターフェースを実装する。
func (e *LoginError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("login failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("login failed (%s)", e.Reason)
}

// Unwrap はラップされたエラーを返す。
func (e *LoginError) Unwrap() error {
	return e.Err
}

// LoginResult はログイン成功時の結果。
type LoginResult struct {
	Token string
	User  *model.User
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	// BaseURL はコールバックURIの組み立てに使用する（例: https://panel.example.com）。
	BaseURL string
}

// Service はテナントごとのログインフローのビジネスロジックを提供する。
type Service struct {
	oauth      OAuthProvider
	tenantRepo repository.TenantRepository
	userRepo   repository.UserRepository
	codec      *TokenCodec
	notifier   LoginNotifier
	metrics    LoginMetrics
	audit      AuditRecorder
	config     ServiceConfig
}

// NewService はServiceを生成する。
// notifier、metrics、auditはnilを許容する（テストや最小構成向け）。
func NewService(
	oauth OAuthProvider,
	tenantRepo repository.TenantRepository,
	userRepo repository.UserRepository,
	codec *TokenCodec,
	notifier LoginNotifier,
	metrics LoginMetrics,
	audit AuditRecorder,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:      oauth,
		tenantRepo: tenantRepo,
		userRepo:   userRepo,
		codec:      codec,
		notifier:   notifier,
		metrics:    metrics,
		audit:      audit,
		config:     config,
	}
}

// redirectURI はテナントスラッグからコールバックURIを決定的に組み立てる。
func (s *Service) redirectURI(slug string) string {
	return s.config.BaseURL + "/auth/discord/" + slug + "/callback"
}

// Authorize はテナントのOAuth認可リダイレクトURLを生成する。
// テナントが存在しない場合・無効化されている場合はAPIErrorを返し、
// プロバイダーへのリダイレクトは発行しない。ローカル状態は書き込まない。
func (s *Service) Authorize(ctx context.Context, slug string) (string, error) {
	tenant, err := s.tenantRepo.FindBySlug(ctx, slug)
	if err != nil {
		return "", fmt.Errorf("failed to find tenant: %w", err)
	}
	if tenant == nil {
		return "", model.NewTenantNotFoundError(slug)
	}
	if !tenant.IsActive {
		return "", model.NewTenantInactiveError()
	}

	// stateにスラッグを載せることで、コールバックが別テナントの
	// フローと混線していないかを検証できる。
	return s.oauth.AuthorizeURL(tenant.DiscordClientID, s.redirectURI(slug), slug), nil
}

// loginAttempt は1回のログイン試行の状態を保持する。
// 3つの逐次プロバイダー呼び出しを明示的なステップとして連結し、
// 各失敗エッジを独立に検証可能にする。
type loginAttempt struct {
	slug        string
	tenant      *model.Tenant
	accessToken string
	discordUser *DiscordUser
	member      *DiscordGuildMember
	role        model.Role
	user        *model.User
}

// HandleCallback はOAuthコールバックを処理し、セッショントークンを発行する。
// すべてのステップが成功するまでユーザーレコードの変更もセッションの発行も
// 行わない。失敗時はLoginErrorを返し、自動リトライはしない。
// アクセストークンはこの関数のスコープを出ず、永続化されない。
func (s *Service) HandleCallback(ctx context.Context, slug, code string) (*LoginResult, *LoginError) {
	attempt := &loginAttempt{slug: slug}

	steps := []func(context.Context, *loginAttempt) *LoginError{
		s.loadTenant,
		s.exchangeCode(code),
		s.fetchUser,
		s.fetchMembership,
		s.resolveRole,
		s.upsertUser,
	}
	for _, step := range steps {
		if lerr := step(ctx, attempt); lerr != nil {
			s.recordFailure(slug, lerr)
			return nil, lerr
		}
	}

	token, err := s.codec.Mint(model.SessionClaims{
		UserID:     attempt.user.ID,
		TenantID:   attempt.tenant.ID,
		TenantSlug: slug,
		Role:       attempt.user.Role,
		IsAdmin:    attempt.user.IsAdmin,
	})
	if err != nil {
		lerr := &LoginError{Reason: model.ReasonInternalError, Err: err}
		s.recordFailure(slug, lerr)
		return nil, lerr
	}

	slog.Info("tenant login succeeded",
		slog.String("tenant_slug", slug),
		slog.String("user_id", attempt.user.ID),
		slog.String("role", string(attempt.user.Role)),
	)
	if s.metrics != nil {
		s.metrics.RecordLoginSuccess(slug)
	}
	if s.audit != nil {
		s.audit.RecordLogin(ctx, attempt.tenant, attempt.user)
	}
	if s.notifier != nil && attempt.tenant.Features.DiscordNotify {
		// ベストエフォートの通知でリダイレクトを待たせない。
		// リクエストのキャンセルにも巻き込まれないよう切り離したコンテキストで送る。
		go s.notifier.NotifyLogin(context.WithoutCancel(ctx), attempt.tenant, attempt.user)
	}

	return &LoginResult{Token: token, User: attempt.user}, nil
}

// Logout はログアウトイベントを監査記録する。
// セッションはサーバー側に保存されないため、Cookieの破棄はハンドラーが行う。
func (s *Service) Logout(ctx context.Context, tenantID, tenantSlug, userID string) {
	slog.Info("tenant logout",
		slog.String("tenant_slug", tenantSlug),
		slog.String("user_id", userID),
	)
	if s.audit != nil {
		s.audit.RecordLogout(ctx, tenantID, tenantSlug, userID)
	}
}

// loadTenant はテナントを秘匿フィールド込みで取得する。
func (s *Service) loadTenant(ctx context.Context, a *loginAttempt) *LoginError {
	tenant, err := s.tenantRepo.FindBySlug(ctx, a.slug)
	if err != nil {
		return &LoginError{Reason: model.ReasonInternalError, Err: err}
	}
	if tenant == nil {
		return &LoginError{Reason: model.ReasonTenantNotFound}
	}
	if !tenant.IsActive {
		return &LoginError{Reason: model.ReasonTenantInactive}
	}
	a.tenant = tenant
	return nil
}

// exchangeCode は認可コードをアクセストークンに交換するステップを返す。
func (s *Service) exchangeCode(code string) func(context.Context, *loginAttempt) *LoginError {
	return func(ctx context.Context, a *loginAttempt) *LoginError {
		creds := ClientCredentials{
			ClientID:     a.tenant.DiscordClientID,
			ClientSecret: a.tenant.DiscordClientSecret,
		}
		start := time.Now()
		token, err := s.oauth.ExchangeCode(ctx, creds, code, s.redirectURI(a.slug))
		s.observeOAuth("exchange", start)
		if err != nil {
			return &LoginError{Reason: model.ReasonTokenExchangeFailed, Err: err}
		}
		a.accessToken = token
		return nil
	}
}

// fetchUser はアクセストークンでユーザー情報を取得する。
func (s *Service) fetchUser(ctx context.Context, a *loginAttempt) *LoginError {
	start := time.Now()
	user, err := s.oauth.FetchUser(ctx, a.accessToken)
	s.observeOAuth("user", start)
	if err != nil {
		return &LoginError{Reason: model.ReasonUserFetchFailed, Err: err}
	}
	a.discordUser = user
	return nil
}

// fetchMembership はテナントのギルドにおけるメンバー情報を取得する。
// ロール集合はログインごとに必ず再評価される。
func (s *Service) fetchMembership(ctx context.Context, a *loginAttempt) *LoginError {
	start := time.Now()
	member, err := s.oauth.FetchGuildMember(ctx, a.accessToken, a.tenant.DiscordGuildID)
	s.observeOAuth("member", start)
	if err != nil {
		if errors.Is(err, ErrNotInGuild) {
			return &LoginError{Reason: model.ReasonNotInServer, Err: err}
		}
		return &LoginError{Reason: model.ReasonInternalError, Err: err}
	}
	a.member = member
	return nil
}

// resolveRole はロールマッピングポリシーを適用する。
// 設定済みロールを1つも持たないギルドメンバーはno_permissionで拒否される。
func (s *Service) resolveRole(_ context.Context, a *loginAttempt) *LoginError {
	role, ok := ResolveRole(a.member.Roles, a.tenant.RoleMap())
	if !ok {
		return &LoginError{Reason: model.ReasonNoPermission}
	}
	a.role = role
	return nil
}

// upsertUser はユーザーレコードを冪等にUPSERTする。
// このステップに到達するまでDBへの書き込みは一切行われない。
func (s *Service) upsertUser(ctx context.Context, a *loginAttempt) *LoginError {
	now := time.Now()
	user, err := s.userRepo.Upsert(ctx, &model.User{
		ID:        uuid.New().String(),
		DiscordID: a.discordUser.ID,
		TenantID:  a.tenant.ID,
		Username:  a.discordUser.DisplayName(),
		Avatar:    a.discordUser.AvatarURL(),
		Role:      a.role,
		IsAdmin:   a.role == model.RoleAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return &LoginError{Reason: model.ReasonInternalError, Err: err}
	}
	if s.metrics != nil {
		s.metrics.RecordUserUpserted()
	}
	a.user = user
	return nil
}

// recordFailure は失敗をログとメトリクスに記録する。
// 理由コード以外の診断詳細はサーバーログにのみ残す。
func (s *Service) recordFailure(slug string, lerr *LoginError) {
	attrs := []any{
		slog.String("tenant_slug", slug),
		slog.String("reason", string(lerr.Reason)),
	}
	if lerr.Err != nil {
		attrs = append(attrs, slog.String("error", lerr.Err.Error()))
	}
	slog.Warn("tenant login failed", attrs...)

	if s.metrics != nil {
		s.metrics.RecordLoginFailure(slug, string(lerr.Reason))
	}
}

// observeOAuth はDiscord API呼び出しの所要時間を記録する。
// 失敗した呼び出しの所要時間も観測対象に含める。
func (s *Service) observeOAuth(operation string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveOAuthRequest(operation, time.Since(start).Seconds())
	}
}
