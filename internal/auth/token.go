package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultTokenTTL = time.Hour

// TokenClaims is the verified payload of a staff session token.
type TokenClaims struct {
	Email string
	Role  Role
}

type staffClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and verifies the signed, time-boxed tokens asserting
// {email, role, expiry} for staff sessions. Verification is delegated to the
// JWT library so signature comparison stays constant-time.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// IssuerOption configures an Issuer.
type IssuerOption func(*Issuer)

// WithTokenTTL overrides the default one hour token lifetime.
func WithTokenTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) {
		if ttl > 0 {
			i.ttl = ttl
		}
	}
}

// WithIssuerName overrides the iss claim.
func WithIssuerName(name string) IssuerOption {
	return func(i *Issuer) {
		if name = strings.TrimSpace(name); name != "" {
			i.issuer = name
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) IssuerOption {
	return func(i *Issuer) {
		if fn != nil {
			i.now = fn
		}
	}
}

// NewIssuer constructs an Issuer from the server-held signing secret.
func NewIssuer(secret string, opts ...IssuerOption) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is not configured")
	}
	iss := &Issuer{
		secret: []byte(secret),
		issuer: "utshob",
		ttl:    defaultTokenTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(iss)
	}
	return iss, nil
}

// TTL reports the configured token lifetime.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue signs a token for the given staff email and role using HS256.
// It is a pure function of inputs, secret and clock.
func (i *Issuer) Issue(email string, role Role) (string, time.Time, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", time.Time{}, errors.New("email is required")
	}
	if !role.IsStaff() {
		return "", time.Time{}, fmt.Errorf("%w: role %q cannot hold a staff token", ErrInvalidInput, role)
	}

	now := i.now().UTC()
	expiresAt := now.Add(i.ttl)
	claims := staffClaims{
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the token signature and claims. Signature mismatch or
// structural corruption yields ErrInvalidToken; a valid signature with an
// expiry in the past yields ErrTokenExpired. Expiry is a strict timestamp
// comparison against server time; clock skew is not compensated.
func (i *Issuer) Verify(token string) (TokenClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return TokenClaims{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &staffClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return i.now().UTC() }), jwt.WithIssuer(i.issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return TokenClaims{}, ErrTokenExpired
		}
		return TokenClaims{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*staffClaims)
	if !ok || !parsed.Valid {
		return TokenClaims{}, ErrInvalidToken
	}
	role, err := ParseRole(claims.Role)
	if err != nil || !role.IsStaff() {
		return TokenClaims{}, ErrInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return TokenClaims{}, ErrInvalidToken
	}
	return TokenClaims{Email: claims.Subject, Role: role}, nil
}
