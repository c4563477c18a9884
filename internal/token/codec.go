// Package token signs and parses the stateless bearer tokens handed to
// clients after login. Tokens are HS256 JWTs; the signing key is fixed when
// the Codec is built and never changes afterwards.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Decode failures. None of these is returned for an expired but otherwise
// valid token; see ErrExpired.
var (
	ErrMalformed            = errors.New("token malformed")
	ErrBadSignature         = errors.New("token signature invalid")
	ErrUnsupportedAlgorithm = errors.New("token signing algorithm unsupported")
)

// ErrExpired is returned by Verify once the expiry claim has passed.
var ErrExpired = errors.New("token expired")

const (
	DefaultAccessTTL    = 24 * time.Hour
	DefaultRenewalGrace = 7 * 24 * time.Hour
)

// Config holds the signing policy.
type Config struct {
	Secret       string
	Issuer       string
	AccessTTL    time.Duration
	RenewalGrace time.Duration
}

// Claims is the payload of an access token.
type Claims struct {
	UserID      int64    `json:"uid"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// HasRole reports whether role is among the token's roles.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasPermission reports whether perm was granted when the token was issued.
func (c *Claims) HasPermission(perm string) bool {
	for _, p := range c.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// Option customises a Codec.
type Option func(*Codec)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec issues and parses access tokens. It is safe for concurrent use.
type Codec struct {
	key    []byte
	issuer string
	ttl    time.Duration
	grace  time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// NewCodec validates cfg and copies the signing key.
func NewCodec(cfg Config, opts ...Option) (*Codec, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("token: signing secret is required")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RenewalGrace < 0 {
		return nil, errors.New("token: renewal grace must not be negative")
	}
	if cfg.RenewalGrace == 0 {
		cfg.RenewalGrace = DefaultRenewalGrace
	}

	c := &Codec{
		key:    []byte(cfg.Secret),
		issuer: cfg.Issuer,
		ttl:    cfg.AccessTTL,
		grace:  cfg.RenewalGrace,
		now:    time.Now,
		// Expiry is evaluated by the codec itself so expired tokens still
		// yield their claims.
		parser: jwt.NewParser(jwt.WithoutClaimsValidation(), jwt.WithStrictDecoding()),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// AccessTTL reports the lifetime given to issued tokens.
func (c *Codec) AccessTTL() time.Duration {
	return c.ttl
}

// Issue signs a new token for subject valid for the configured lifetime.
func (c *Codec) Issue(subject string, userID int64, roles, permissions []string) (string, error) {
	if subject == "" {
		return "", errors.New("token: subject is required")
	}
	issuedAt := c.now().UTC()
	claims := &Claims{
		UserID:      userID,
		Roles:       append([]string(nil), roles...),
		Permissions: append([]string(nil), permissions...),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(c.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Parse checks the signature and structure of raw and returns its claims,
// including when the token has already expired.
func (c *Codec) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := c.parser.ParseWithClaims(raw, claims, c.keyFunc)
	if err != nil {
		return nil, classify(err)
	}
	if claims.Subject == "" || claims.ExpiresAt == nil {
		return nil, ErrMalformed
	}
	if c.issuer != "" && claims.Issuer != c.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer %q", ErrMalformed, claims.Issuer)
	}
	return claims, nil
}

// Verify is Parse plus an expiry check. Request authentication goes through here.
func (c *Codec) Verify(raw string) (*Claims, error) {
	claims, err := c.Parse(raw)
	if err != nil {
		return nil, err
	}
	if c.expired(claims) {
		return claims, ErrExpired
	}
	return claims, nil
}

// IsValid reports whether raw parses and names expectedSubject.
//
// Expiry is not consulted; pair it with IsExpired or use Verify.
func (c *Codec) IsValid(raw, expectedSubject string) bool {
	claims, err := c.Parse(raw)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject
}

// IsExpired reports whether the expiry claim is at or before the current time.
// Tokens that cannot be parsed count as expired.
func (c *Codec) IsExpired(raw string) bool {
	claims, err := c.Parse(raw)
	if err != nil {
		return true
	}
	return c.expired(claims)
}

// RenewalEligible reports whether raw expired less than the renewal grace
// window ago, allowing a sliding renewal without a refresh token.
func (c *Codec) RenewalEligible(raw string) bool {
	claims, err := c.Parse(raw)
	if err != nil {
		return false
	}
	return c.renewable(claims)
}

// Renewable is RenewalEligible for already parsed claims.
func (c *Codec) Renewable(claims *Claims) bool {
	if claims == nil || claims.ExpiresAt == nil {
		return false
	}
	return c.renewable(claims)
}

func (c *Codec) renewable(claims *Claims) bool {
	if !c.expired(claims) {
		return false
	}
	return c.now().Sub(claims.ExpiresAt.Time) < c.grace
}

func (c *Codec) expired(claims *Claims) bool {
	return !c.now().Before(claims.ExpiresAt.Time)
}

func (c *Codec) keyFunc(t *jwt.Token) (interface{}, error) {
	if t.Method != jwt.SigningMethodHS256 {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, t.Header["alg"])
	}
	return c.key, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrUnsupportedAlgorithm):
		return ErrUnsupportedAlgorithm
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return ErrBadSignature
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrUnsupportedAlgorithm
	default:
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
}
