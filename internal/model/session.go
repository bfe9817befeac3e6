package model

import "time"

// SessionClaims はテナントセッション資格情報のペイロードを表す。
// サーバー側には保存されず、署名付きトークンとして
// テナントスコープのCookieにのみ保持される。
type SessionClaims struct {
	UserID     string
	TenantID   string
	TenantSlug string
	Role       Role
	IsAdmin    bool
	ExpiresAt  time.Time
}

// AuditAction は監査ログのアクション種別。
type AuditAction string

const (
	AuditActionCreate AuditAction = "CREATE"
	AuditActionUpdate AuditAction = "UPDATE"
	AuditActionDelete AuditAction = "DELETE"
	AuditActionLogin  AuditAction = "LOGIN"
	AuditActionLogout AuditAction = "LOGOUT"
)

// AuditEntity は監査ログの対象エンティティ種別。
type AuditEntity string

const (
	AuditEntityTenant   AuditEntity = "TENANT"
	AuditEntitySettings AuditEntity = "SETTINGS"
	AuditEntitySession  AuditEntity = "SESSION"
)

// AuditLog は管理操作・認証イベントの監査記録を表す。
type AuditLog struct {
	ID         string
	Action     AuditAction
	Entity     AuditEntity
	EntityID   string
	Details    string // JSON文字列。空の場合あり
	ActorID    string
	ActorEmail string
	CreatedAt  time.Time
}
