// Package auth resolves the owner of a request from a bearer token.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when auth is enabled and no token was sent.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("invalid token")
)

// Claims are the JWT claims MindBase reads. Subject is the owner.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates HS256 tokens. With an empty secret it is disabled and
// every caller is DefaultOwner.
type Verifier struct {
	secret       []byte
	issuer       string
	defaultOwner string
	now          func() time.Time
}

// NewVerifier creates a verifier.
func NewVerifier(secret, issuer, defaultOwner string) *Verifier {
	return &Verifier{
		secret:       []byte(secret),
		issuer:       issuer,
		defaultOwner: defaultOwner,
		now:          time.Now,
	}
}

// Enabled reports whether tokens are verified.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Owner returns the owner identified by token.
func (v *Verifier) Owner(token string) (string, error) {
	if !v.Enabled() {
		return v.defaultOwner, nil
	}
	if token == "" {
		return "", ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return "", ErrInvalidToken
	}
	owner := strings.TrimSpace(claims.Subject)
	if owner == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	return owner, nil
}

// Issue signs a token for owner valid for ttl.
func (v *Verifier) Issue(owner string, ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", errors.New("auth disabled: no signing secret")
	}
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   owner,
			Issuer:    v.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
