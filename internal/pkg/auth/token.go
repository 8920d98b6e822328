/*
Package auth supplies the bearer token the chat transport presents to the server.

The client never issues or validates tokens itself; it borrows one from an
external auth store (the application's login flow) through the TokenProvider
interface. The token is re-read on every connection attempt so that a refresh
performed by the application between reconnects is picked up automatically.
*/
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

// ExpiryWarningWindow defines how close to expiry a token has to be before
// connection attempts start logging a refresh warning.
const ExpiryWarningWindow = 2 * time.Minute

// TokenProvider supplies the current bearer token for the chat connection.
// Token is called synchronously at connect time, once per attempt.
type TokenProvider interface {
	Token() (string, error)
}

// StaticProvider returns a fixed token string. Used by the terminal client
// and by tests; real applications wrap their credential store instead.
type StaticProvider string

// Token implements TokenProvider.
func (p StaticProvider) Token() (string, error) {
	if p == "" {
		return "", errors.New("no bearer token configured")
	}
	return string(p), nil
}

// ProviderFunc adapts a plain function to the TokenProvider interface.
type ProviderFunc func() (string, error)

// Token implements TokenProvider.
func (f ProviderFunc) Token() (string, error) {
	return f()
}

// ExpiresAt extracts the expiry time from a JWT bearer token without
// verifying its signature. The client has no signing key; the server remains
// the authority, this is only used to warn before connecting with a token
// that is about to be rejected. Returns the zero time if the token carries
// no parseable expiry claim.
func ExpiresAt(tokenString string) time.Time {
	claims := jwt.MapClaims{}

	parser := jwt.Parser{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return time.Time{}
	}

	exp, ok := claims["exp"]
	if !ok {
		return time.Time{}
	}

	switch v := exp.(type) {
	case float64:
		return time.Unix(int64(v), 0)
	case int64:
		return time.Unix(v, 0)
	default:
		return time.Time{}
	}
}

// NearingExpiry reports whether the token expires within ExpiryWarningWindow.
// Tokens without a parseable expiry claim report false.
func NearingExpiry(tokenString string) bool {
	expiry := ExpiresAt(tokenString)
	if expiry.IsZero() {
		return false
	}

	return time.Now().After(expiry.Add(-ExpiryWarningWindow))
}
