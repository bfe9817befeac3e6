package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/hitoshi/guildgate/internal/model"
)

func testClaims() model.SessionClaims {
	return model.SessionClaims{
		UserID:     "user-uuid-1",
		TenantID:   "tenant-uuid-1",
		TenantSlug: "acme",
		Role:       model.RoleAdmin,
		IsAdmin:    true,
	}
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", 7*24*time.Hour)

	token, err := codec.Mint(testClaims())
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}
	if token == "" {
		t.Fatal("Mint returned empty token")
	}

	got, err := codec.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if got.UserID != "user-uuid-1" {
		t.Errorf("UserID = %q, want %q", got.UserID, "user-uuid-1")
	}
	if got.TenantID != "tenant-uuid-1" {
		t.Errorf("TenantID = %q, want %q", got.TenantID, "tenant-uuid-1")
	}
	if got.TenantSlug != "acme" {
		t.Errorf("TenantSlug = %q, want %q", got.TenantSlug, "acme")
	}
	if got.Role != model.RoleAdmin {
		t.Errorf("Role = %q, want %q", got.Role, model.RoleAdmin)
	}
	if !got.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}

	wantExpiry := time.Now().Add(7 * 24 * time.Hour)
	if got.ExpiresAt.Before(wantExpiry.Add(-time.Minute)) || got.ExpiresAt.After(wantExpiry.Add(time.Minute)) {
		t.Errorf("ExpiresAt = %v, want about %v", got.ExpiresAt, wantExpiry)
	}
}

func TestTokenCodec_Mint_RequiredFields(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", time.Hour)

	noUser := testClaims()
	noUser.UserID = ""
	if _, err := codec.Mint(noUser); err == nil {
		t.Error("Mint with empty UserID should fail")
	}

	noSlug := testClaims()
	noSlug.TenantSlug = ""
	if _, err := codec.Mint(noSlug); err == nil {
		t.Error("Mint with empty TenantSlug should fail")
	}
}

func TestTokenCodec_Verify_Expired(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", time.Hour)

	claims := testClaims()
	claims.ExpiresAt = time.Now().Add(-time.Minute)
	token, err := codec.Mint(claims)
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify expired token: err = %v, want ErrTokenExpired", err)
	}
}

func TestTokenCodec_Verify_Tampered(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", time.Hour)

	token, err := codec.Mint(testClaims())
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	// ペイロード部を書き換えると署名検証に失敗する。
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token format: %d parts", len(parts))
	}
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	if _, err := codec.Verify(tampered); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify tampered token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodec_Verify_WrongSecret(t *testing.T) {
	minter := NewTokenCodec("secret-one-at-least-32-characters!", time.Hour)
	verifier := NewTokenCodec("secret-two-at-least-32-characters!", time.Hour)

	token, err := minter.Mint(testClaims())
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	if _, err := verifier.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify with wrong secret: err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodec_Verify_RejectsUnsignedToken(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", time.Hour)

	// alg=noneのトークンは署名方式チェックで拒否される。
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, sessionTokenClaims{
		TenantID:   "tenant-uuid-1",
		TenantSlug: "acme",
		Role:       string(model.RoleAdmin),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-uuid-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	token, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("failed to build unsigned token: %v", err)
	}

	if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Verify unsigned token: err = %v, want ErrTokenInvalid", err)
	}
}

func TestTokenCodec_Verify_Malformed(t *testing.T) {
	codec := NewTokenCodec("test-secret-at-least-32-characters", time.Hour)

	for _, token := range []string{"", "not-a-jwt", "a.b", "a.b.c"} {
		if _, err := codec.Verify(token); !errors.Is(err, ErrTokenInvalid) {
			t.Errorf("Verify(%q): err = %v, want ErrTokenInvalid", token, err)
		}
	}
}
