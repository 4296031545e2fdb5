// Package auth resolves the editing user of a request from a signed token.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CookieName carries the session token set by the account frontend
const CookieName = "__Secure-Token"

const issuer = "pasties"

var (
	// ErrInvalidToken is returned for tokens that fail verification
	ErrInvalidToken = errors.New("invalid auth token")

	// ErrDisabled is returned when issuing tokens without a secret
	ErrDisabled = errors.New("authentication is disabled")
)

// Claims is the token payload; Subject holds the username
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator verifies HS256 tokens. The zero value and a nil pointer
// are disabled and resolve every request as anonymous.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// New returns an Authenticator for secret; an empty secret disables auth
func New(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// Enabled reports whether tokens are checked at all
func (a *Authenticator) Enabled() bool {
	return a != nil && len(a.secret) > 0
}

// Issue signs a token for username. ttl <= 0 issues a token that never expires.
func (a *Authenticator) Issue(username string, ttl time.Duration) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}
	if strings.TrimSpace(username) == "" {
		return "", fmt.Errorf("username must not be empty")
	}

	now := a.now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:   issuer,
		Subject:  username,
		IssuedAt: jwt.NewNumericDate(now),
	}}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse verifies token and returns the username it was issued for
func (a *Authenticator) Parse(token string) (string, error) {
	if !a.Enabled() {
		return "", ErrDisabled
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return a.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// TokenFromRequest returns the session cookie, falling back to a bearer token
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v
		}
	}
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// Editor resolves the username behind r. Requests without a token, or any
// request while auth is disabled, are anonymous (""). A token that is present
// but invalid is an error.
func (a *Authenticator) Editor(r *http.Request) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	token := TokenFromRequest(r)
	if token == "" {
		return "", nil
	}
	return a.Parse(token)
}
