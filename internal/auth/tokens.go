// Package auth guards the warm commands: an API key authorizes the caller and
// a short-lived signed action token protects each mutation against forgery.
package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Header names carried by authenticated requests.
const (
	HeaderAPIKey = "X-API-Key"
	HeaderToken  = "X-Warm-Token"
)

// DefaultTokenTTL is the lifetime of an action token.
const DefaultTokenTTL = 12 * time.Hour

const issuer = "cache-warmer"

var (
	// ErrUnauthorized means the API key was missing or wrong.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidToken means the action token was missing, expired or forged.
	ErrInvalidToken = errors.New("invalid_token")
)

// Config configures the Guard.
type Config struct {
	Enabled  bool          `mapstructure:"enabled" yaml:"enabled"`
	APIKey   string        `mapstructure:"api_key" yaml:"api_key"`
	Secret   string        `mapstructure:"token_secret" yaml:"token_secret"`
	TokenTTL time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// actionClaims binds a token to one warm action.
type actionClaims struct {
	jwt.RegisteredClaims
	Action string `json:"act"`
}

// Guard checks API keys and issues/verifies action tokens. Tokens are HS256
// JWTs carrying the action they authorize and expire TokenTTL after issue.
type Guard struct {
	enabled bool
	apiKey  []byte
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
}

// NewGuard validates cfg and builds a Guard. now may be nil.
func NewGuard(cfg Config, now func() time.Time) (*Guard, error) {
	if now == nil {
		now = time.Now
	}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if cfg.Enabled {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("auth: api key is required when auth is enabled")
		}
		if cfg.Secret == "" {
			return nil, fmt.Errorf("auth: token secret is required when auth is enabled")
		}
	}
	return &Guard{
		enabled: cfg.Enabled,
		apiKey:  []byte(cfg.APIKey),
		secret:  []byte(cfg.Secret),
		ttl:     ttl,
		now:     now,
	}, nil
}

// Enabled reports whether checks are enforced.
func (g *Guard) Enabled() bool {
	return g.enabled
}

// Authorize compares key against the configured API key in constant time.
func (g *Guard) Authorize(key string) error {
	if !g.enabled {
		return nil
	}
	if key == "" || subtle.ConstantTimeCompare([]byte(key), g.apiKey) != 1 {
		return ErrUnauthorized
	}
	return nil
}

// Token issues an action token valid for the configured TTL.
func (g *Guard) Token(action string) (string, error) {
	now := g.now()
	claims := actionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(g.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
		Action: action,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(g.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks that token is an unexpired token for action.
func (g *Guard) Verify(action, token string) error {
	if !g.enabled {
		return nil
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidToken
	}
	var claims actionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return g.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(g.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || subtle.ConstantTimeCompare([]byte(claims.Action), []byte(action)) != 1 {
		return ErrInvalidToken
	}
	return nil
}
