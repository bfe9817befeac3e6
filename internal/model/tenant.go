// Package model はドメインモデルを定義する。
package model

import "time"

// TenantFeatures はテナントごとの機能フラグを表す。
// DBにはJSON文字列として保存される。
type TenantFeatures struct {
	Archive       bool `json:"archive"`
	Punishments   bool `json:"punishments"`
	DiscordNotify bool `json:"discordNotify"`
}

// DefaultTenantFeatures は機能フラグのデフォルト値を返す。
// 保存されたJSONが欠損・破損している場合のフォールバックとしても使用する。
func DefaultTenantFeatures() TenantFeatures {
	return TenantFeatures{
		Archive:       true,
		Punishments:   true,
		DiscordNotify: true,
	}
}

// RoleMap はテナントに設定されたDiscordロールIDと
// アプリケーションロールの対応を表す。
// Adminは必須。EvaluatorとPlayerは未設定の場合そのロールは到達不能になる。
type RoleMap struct {
	Admin     string
	Evaluator string
	Player    string
}

// Tenant はプロビジョニングされた顧客テナント（Discordコミュニティの
// ダッシュボード）を表す。
// DiscordClientSecretとDiscordBotTokenは秘匿情報であり、
// OAuthフロー以外の呼び出し元には公開してはならない。
type Tenant struct {
	ID           string
	Name         string
	Slug         string
	Subdomain    string
	CustomDomain string

	// Branding
	Logo           string
	Favicon        string
	PrimaryColor   string
	SecondaryColor string
	CustomCSS      string

	// 機能フラグ
	Features TenantFeatures

	// Discord連携
	DiscordGuildID      string
	DiscordClientID     string
	DiscordClientSecret string
	DiscordBotToken     string
	DiscordWebhookURL   string
	DiscordAdminChannel string

	// ロールマッピング
	DiscordRoleAdmin     string
	DiscordRoleEvaluator string
	DiscordRolePlayer    string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// List系クエリでのみ設定される集計値
	UserCount int
}

// RoleMap はテナントのロールマッピングを返す。
func (t *Tenant) RoleMap() RoleMap {
	return RoleMap{
		Admin:     t.DiscordRoleAdmin,
		Evaluator: t.DiscordRoleEvaluator,
		Player:    t.DiscordRolePlayer,
	}
}

// Redacted は秘匿フィールドを除去したコピーを返す。
// コンソールAPIのレスポンスに使用する。
func (t *Tenant) Redacted() Tenant {
	c := *t
	c.DiscordClientSecret = ""
	c.DiscordBotToken = ""
	return c
}
