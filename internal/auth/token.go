// Package auth verifies bearer tokens issued by the hosted auth service.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	"go.uber.org/fx"
)

var (
	ErrMissingToken  = errors.New("missing_token")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrTokenExpired  = errors.New("token_expired")
	ErrNotConfigured = errors.New("auth_not_configured")
)

// Claims is the token payload. Subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// Principal is the authenticated caller attached to a request.
type Principal struct {
	UserID string
	Email  string
	Name   string
	Role   string
}

type VerifierParams struct {
	fx.In

	Config config.Config
	Clock  clock.Clock
}

type Verifier struct {
	secret []byte
	issuer string
	clock  clock.Clock
	leeway time.Duration
}

func NewVerifier(p VerifierParams) *Verifier {
	return &Verifier{
		secret: []byte(strings.TrimSpace(p.Config.AuthJWTSecret)),
		issuer: strings.TrimSpace(p.Config.AuthJWTIssuer),
		clock:  p.Clock,
		leeway: 30 * time.Second,
	}
}

// Verify parses an HS256 token and returns the caller it identifies.
func (v *Verifier) Verify(raw string) (Principal, error) {
	if len(v.secret) == 0 {
		return Principal{}, ErrNotConfigured
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Principal{}, ErrMissingToken
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.clock.Now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrInvalidToken
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return Principal{}, ErrInvalidToken
	}
	return Principal{
		UserID: subject,
		Email:  strings.TrimSpace(claims.Email),
		Name:   strings.TrimSpace(claims.Name),
		Role:   strings.ToLower(strings.TrimSpace(claims.Role)),
	}, nil
}

// Issue signs a token for the principal. Used by tests and local tooling;
// production tokens come from the hosted auth service.
func (v *Verifier) Issue(p Principal, ttl time.Duration) (string, error) {
	if len(v.secret) == 0 {
		return "", ErrNotConfigured
	}
	now := v.clock.Now()
	claims := Claims{
		Email: p.Email,
		Name:  p.Name,
		Role:  p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(header[7:])
}
