package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(bcrypt.MinCost)

	first, err := h.Hash("secret1")
	if err != nil {
		t.Fatalf("hash failed: %v", err)
	}
	second, _ := h.Hash("secret1")
	if first == second {
		t.Fatalf("hashes of the same password should be salted differently")
	}
	if !strings.HasPrefix(first, "$2") {
		t.Fatalf("expected a bcrypt hash, got %q", first)
	}

	if !h.Verify("secret1", first) || !h.Verify("secret1", second) {
		t.Fatalf("expected both hashes to verify")
	}
	if h.Verify("secret2", first) {
		t.Fatalf("wrong password verified")
	}
	if h.Verify("secret1", "not-a-bcrypt-hash") || h.Verify("secret1", "") {
		t.Fatalf("malformed hash must fail closed")
	}
}

func TestPasswordHasherCost(t *testing.T) {
	if got := NewPasswordHasher(10).cost; got != 10 {
		t.Fatalf("expected cost 10, got %d", got)
	}
	if got := NewPasswordHasher(0).cost; got != bcrypt.DefaultCost {
		t.Fatalf("expected invalid cost to fall back to default, got %d", got)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	svc := NewTokenService("test-secret", 7*24*time.Hour)

	raw, err := svc.Issue(12, "ann@example.com")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}

	claims, err := svc.Verify(raw)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if claims.UserID != 12 || claims.Email != "ann@example.com" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if lifetime := claims.ExpiresAt.Sub(claims.IssuedAt.Time); lifetime != 7*24*time.Hour {
		t.Fatalf("expected a 7 day lifetime, got %v", lifetime)
	}
}

func TestTokenRejections(t *testing.T) {
	svc := NewTokenService("test-secret", time.Hour)
	valid, _ := svc.Issue(1, "ann@example.com")

	other, _ := NewTokenService("other-secret", time.Hour).Issue(1, "ann@example.com")

	expiredSvc := NewTokenService("test-secret", time.Hour)
	expiredSvc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _ := expiredSvc.Issue(1, "ann@example.com")

	hs512, _ := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		UserID:           1,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("test-secret"))

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: 1}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)

	tampered := valid[:len(valid)-2] + "xx"

	for name, raw := range map[string]string{
		"empty":        "",
		"garbage":      "not.a.token",
		"wrong secret": other,
		"expired":      expired,
		"hs512":        hs512,
		"alg none":     none,
		"tampered":     tampered,
	} {
		if _, err := svc.Verify(raw); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
