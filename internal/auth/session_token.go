package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/guildgate/internal/model"
)

// トークン検証の失敗種別。呼び出し元はいずれの場合も「未認証」として
// 扱い、サーバーエラーにはしない。
var (
	// ErrTokenInvalid はトークンが不正（改ざん・形式不正・署名不一致）
	// であることを示す。
	ErrTokenInvalid = errors.New("invalid session token")
	// ErrTokenExpired はトークンの有効期限が切れていることを示す。
	ErrTokenExpired = errors.New("session token expired")
)

// sessionTokenClaims はセッショントークンのJWTクレーム。
type sessionTokenClaims struct {
	TenantID   string `json:"tenantId"`
	TenantSlug string `json:"tenantSlug"`
	Role       string `json:"role"`
	IsAdmin    bool   `json:"isAdmin"`
	jwt.RegisteredClaims
}

// TokenCodec はテナントセッション資格情報の発行と検証を行う。
// ペイロードはHS256で署名され、改ざんが検知できる。サーバー側には
// 保存されず、検証は署名・有効期限・クレームの整合のみで完結する。
type TokenCodec struct {
	secret []byte
	maxAge time.Duration
}

// NewTokenCodec はTokenCodecを生成する。
func NewTokenCodec(secret string, maxAge time.Duration) *TokenCodec {
	return &TokenCodec{
		secret: []byte(secret),
		maxAge: maxAge,
	}
}

// MaxAge はトークンの有効期間を返す。Cookieのmax-ageと一致させる。
func (c *TokenCodec) MaxAge() time.Duration {
	return c.maxAge
}

// Mint はSessionClaimsを署名付きトークンにエンコードする。
// 有効期限はMaxAge後に設定される。
func (c *TokenCodec) Mint(claims model.SessionClaims) (string, error) {
	if claims.UserID == "" {
		return "", fmt.Errorf("user ID is required")
	}
	if claims.TenantSlug == "" {
		return "", fmt.Errorf("tenant slug is required")
	}

	now := time.Now()
	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = now.Add(c.maxAge)
	}

	tokenClaims := sessionTokenClaims{
		TenantID:   claims.TenantID,
		TenantSlug: claims.TenantSlug,
		Role:       string(claims.Role),
		IsAdmin:    claims.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// Verify はトークンの署名と有効期限を検証し、クレームを復元する。
// 期限切れはErrTokenExpired、それ以外の検証失敗はErrTokenInvalidを返す。
func (c *TokenCodec) Verify(token string) (*model.SessionClaims, error) {
	if token == "" {
		return nil, ErrTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(token, &sessionTokenClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*sessionTokenClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Subject == "" || claims.TenantSlug == "" {
		return nil, ErrTokenInvalid
	}

	var expiresAt time.Time
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &model.SessionClaims{
		UserID:     claims.Subject,
		TenantID:   claims.TenantID,
		TenantSlug: claims.TenantSlug,
		Role:       model.Role(claims.Role),
		IsAdmin:    claims.IsAdmin,
		ExpiresAt:  expiresAt,
	}, nil
}
