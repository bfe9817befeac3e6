package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, tenant, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeTenantNotFound = "TENANT_NOT_FOUND"
	ErrCodeTenantInactive = "TENANT_INACTIVE"
	ErrCodeSlugTaken      = "SLUG_TAKEN"
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeTenantHasUsers = "TENANT_HAS_USERS"
	ErrCodeUnauthorized   = "UNAUTHORIZED"
)

// LoginReason はログインフロー失敗時にリダイレクトURLへ付与される理由コード。
// ブラウザに露出するため、診断の詳細は含めずサーバーログにのみ記録する。
type LoginReason string

const (
	ReasonAccessDenied        LoginReason = "access_denied"
	ReasonNoCode              LoginReason = "no_code"
	ReasonTenantNotFound      LoginReason = "tenant_not_found"
	ReasonTenantInactive      LoginReason = "tenant_inactive"
	ReasonTokenExchangeFailed LoginReason = "token_exchange_failed"
	ReasonUserFetchFailed     LoginReason = "user_fetch_failed"
	ReasonNotInServer         LoginReason = "not_in_server"
	ReasonNoPermission        LoginReason = "no_permission"
	ReasonInternalError       LoginReason = "internal_error"
	ReasonSessionExpired      LoginReason = "session_expired"
)

// NewTenantNotFoundError はテナント未検出エラーを生成する。
func NewTenantNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeTenantNotFound,
		Message:  fmt.Sprintf("指定されたテナントが見つかりません: %s", slug),
		Category: "tenant",
		Action:   "URLのスラッグを確認してください。",
	}
}

// NewTenantInactiveError は無効化されたテナントへのアクセスエラーを生成する。
func NewTenantInactiveError() *APIError {
	return &APIError{
		Code:     ErrCodeTenantInactive,
		Message:  "このパネルは無効化されています。",
		Category: "tenant",
		Action:   "テナント管理者に問い合わせてください。",
	}
}

// NewSlugTakenError はスラッグ重複エラーを生成する。
func NewSlugTakenError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeSlugTaken,
		Message:  fmt.Sprintf("スラッグは既に使用されています: %s", slug),
		Category: "validation",
		Action:   "別のスラッグを指定してください。",
	}
}

// NewInvalidInputError は入力バリデーションエラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認してください。",
	}
}

// NewTenantHasUsersError は利用中テナントの削除エラーを生成する。
func NewTenantHasUsersError() *APIError {
	return &APIError{
		Code:     ErrCodeTenantHasUsers,
		Message:  "このテナントには紐付くユーザーが存在するため削除できません。",
		Category: "tenant",
		Action:   "先にテナントを無効化するか、ユーザーを削除してください。",
	}
}

// NewUnauthorizedError は認可エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "スーパー管理者の認証情報でアクセスしてください。",
	}
}
