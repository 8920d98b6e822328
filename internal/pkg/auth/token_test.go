package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return signed
}

func TestStaticProvider(t *testing.T) {
	if _, err := StaticProvider("").Token(); err == nil {
		t.Fatal("empty provider must error")
	}

	got, err := StaticProvider("abc").Token()
	if err != nil || got != "abc" {
		t.Fatalf("Token() = %q, %v", got, err)
	}
}

func TestExpiresAt(t *testing.T) {
	expiry := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"exp": expiry.Unix()})

	if got := ExpiresAt(token); !got.Equal(expiry) {
		t.Fatalf("ExpiresAt = %s, want %s", got, expiry)
	}
}

func TestExpiresAtWithoutClaim(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "42"})

	if got := ExpiresAt(token); !got.IsZero() {
		t.Fatalf("ExpiresAt = %s, want zero time", got)
	}

	if got := ExpiresAt("not-a-jwt"); !got.IsZero() {
		t.Fatalf("ExpiresAt on garbage = %s, want zero time", got)
	}
}

func TestNearingExpiry(t *testing.T) {
	fresh := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if NearingExpiry(fresh) {
		t.Fatal("token an hour out is not nearing expiry")
	}

	closing := signedToken(t, jwt.MapClaims{"exp": time.Now().Add(time.Minute).Unix()})
	if !NearingExpiry(closing) {
		t.Fatal("token a minute out is nearing expiry")
	}

	opaque := signedToken(t, jwt.MapClaims{"sub": "42"})
	if NearingExpiry(opaque) {
		t.Fatal("token without exp claim must not warn")
	}
}
