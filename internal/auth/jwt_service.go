// Package auth issues and verifies the bearer tokens used by the admin API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// DefaultTokenTTL is used when the configuration leaves the lifetime unset.
const DefaultTokenTTL = 12 * time.Hour

var (
	// ErrInvalidToken covers every malformed, expired or forged token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrRevokedToken is returned for tokens invalidated by a logout.
	ErrRevokedToken = errors.New("auth: token revoked")
)

// JWTConfig bundles the configuration required to build a JWTService.
type JWTConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	Clock  func() time.Time
}

// Claims are embedded in every token issued for a site account.
type Claims struct {
	UserID   string `json:"uid"`
	Username string `json:"name"`
	Root     bool   `json:"root,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the account a token is issued for.
type Identity struct {
	UserID   string
	Username string
	IsRoot   bool
}

// IssuedToken is returned to clients after a successful login.
type IssuedToken struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// JWTService signs and verifies HS256 tokens.
type JWTService struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService constructs a JWTService instance.
func NewJWTService(cfg JWTConfig) (*JWTService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("jwt: secret must be provided")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	return &JWTService{secret: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: ttl, now: now}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *JWTService) TTL() time.Duration { return s.ttl }

// Issue signs a token for identity. Every token carries a unique id so it can
// be revoked on logout.
func (s *JWTService) Issue(identity Identity) (*IssuedToken, error) {
	if identity.UserID == "" {
		return nil, errors.New("jwt: user id is required")
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	id := uuid.NewString()

	claims := &Claims{
		UserID:   identity.UserID,
		Username: identity.Username,
		Root:     identity.IsRoot,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   identity.UserID,
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("jwt: sign token: %w", err)
	}
	return &IssuedToken{Token: signed, TokenID: id, ExpiresAt: expiresAt}, nil
}

// Validate parses token and returns its claims. Any failure wraps ErrInvalidToken.
func (s *JWTService) Validate(token string) (*Claims, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)

	var claims Claims
	if _, err := parser.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrInvalidToken)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing claims", ErrInvalidToken)
	}
	return &claims, nil
}
