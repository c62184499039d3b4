package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dalemusser/bandhub/internal/domain/errs"
	"github.com/golang-jwt/jwt/v5"
)

// Token kinds, carried in the audience claim.
const (
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// Claims are the JWT claims issued by Tokens.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// Tokens issues and verifies HS256 access and refresh tokens.
type Tokens struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenConfig configures Tokens.
type TokenConfig struct {
	Secret     string
	Issuer     string        // default "bandhub"
	AccessTTL  time.Duration // default 15m
	RefreshTTL time.Duration // default 30 days
}

// NewTokens validates cfg and returns a token service.
func NewTokens(cfg TokenConfig) (*Tokens, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("jwt secret must be at least 32 bytes")
	}
	t := &Tokens{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if t.issuer == "" {
		t.issuer = "bandhub"
	}
	if t.accessTTL <= 0 {
		t.accessTTL = 15 * time.Minute
	}
	if t.refreshTTL <= 0 {
		t.refreshTTL = 30 * 24 * time.Hour
	}
	return t, nil
}

// SetClock overrides the time source. Used in tests.
func (t *Tokens) SetClock(now func() time.Time) { t.now = now }

// Issue signs a token of the given kind for id.
func (t *Tokens) Issue(id Identity, kind string) (string, time.Time, error) {
	ttl := t.accessTTL
	if kind == KindRefresh {
		ttl = t.refreshTTL
	}
	now := t.now()
	exp := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			Issuer:    t.issuer,
			Audience:  jwt.ClaimStrings{kind},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: id.Email,
		Name:  id.Name,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses a token of the given kind. Any failure (bad signature,
// wrong kind, expiry) is reported as errs.ErrUnauthenticated.
func (t *Tokens) Verify(token, kind string) (Identity, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.issuer),
		jwt.WithAudience(kind),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", errs.ErrUnauthenticated, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", errs.ErrUnauthenticated)
	}
	return Identity{UserID: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
