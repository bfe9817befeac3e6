package model

import "time"

// Role はテナント内でのアプリケーションロールを表す。
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleEvaluator Role = "EVALUATOR"
	RolePlayer    Role = "PLAYER"
)

// Valid はロールが定義済みの値であるかを返す。
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEvaluator, RolePlayer:
		return true
	}
	return false
}

// User はテナントにスコープされたサービス利用ユーザーを表す。
// (DiscordID, TenantID) の組が一意。同じDiscordアカウントが
// 複数テナントに別々のロールで存在できる。
// IsAdminは role == ADMIN のときに限りtrueになる便宜フラグ。
type User struct {
	ID        string
	DiscordID string
	TenantID  string
	Username  string
	Avatar    string
	Role      Role
	IsAdmin   bool
	CreatedAt time.Time
	UpdatedAt time.Time

	// FindByIDWithTenantでのみ設定される
	Tenant *Tenant
}
