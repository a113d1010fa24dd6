// Package auth verifies capability tokens: HS256 JWTs whose roles and
// permissions claims become an access.Capabilities set.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/itlingo/progress-engine/internal/domain/access"
	"github.com/itlingo/progress-engine/internal/domain/shared"
)

// Config holds token verification settings.
type Config struct {
	Secret   string
	Issuer   string // checked when set
	Audience string // checked when set
	Leeway   time.Duration
}

// Claims is the token payload.
type Claims struct {
	jwt.RegisteredClaims
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Principal is the verified caller.
type Principal struct {
	Subject      string
	Capabilities access.Capabilities
}

// Verifier checks tokens and issues them for tooling and tests.
type Verifier struct {
	cfg    Config
	parser *jwt.Parser
	now    func() time.Time
}

// NewVerifier creates a Verifier. An empty secret is rejected.
func NewVerifier(cfg Config) (*Verifier, error) {
	if cfg.Secret == "" {
		return nil, errors.New("auth: secret is required")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Verifier{
		cfg:    cfg,
		parser: jwt.NewParser(opts...),
		now:    time.Now,
	}, nil
}

// Verify parses token and returns its principal. Any failure is Forbidden.
func (v *Verifier) Verify(token string) (Principal, error) {
	claims := &Claims{}
	parsed, err := v.parser.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(v.cfg.Secret), nil
	})
	if err != nil || !parsed.Valid {
		return Principal{}, shared.WrapError("auth", "Verify", shared.ErrForbidden, "invalid token", err)
	}
	if claims.Subject == "" {
		return Principal{}, shared.NewDomainError("auth", "Verify", shared.ErrForbidden, "token has no subject")
	}

	return Principal{
		Subject:      claims.Subject,
		Capabilities: access.FromRolesAndPermissions(claims.Roles, claims.Permissions),
	}, nil
}

// Issue signs a token for subject valid for ttl.
func (v *Verifier) Issue(subject string, roles, permissions []string, ttl time.Duration) (string, error) {
	now := v.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    v.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles:       roles,
		Permissions: permissions,
	}
	if v.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{v.cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(v.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	return signed, nil
}
