// Package identity abstracts the remote identity service that authenticates
// festival participants. Staff accounts never touch this path.
package identity

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAuthFailed covers rejected credentials (wrong password, disabled
	// account, unknown email). The message is safe to show users.
	ErrAuthFailed = errors.New("identity: authentication failed")
	// ErrExpiredToken means the provider recognized the token but its
	// lifetime has elapsed; a refresh attempt may still succeed.
	ErrExpiredToken = errors.New("identity: token expired")
	// ErrInvalidToken means the provider rejected the token outright.
	ErrInvalidToken = errors.New("identity: invalid token")
	// ErrUnavailable covers network failures and malformed responses. The
	// guard treats it as "authentication required", never as authenticated.
	ErrUnavailable = errors.New("identity: provider unavailable")
)

// Credentials is the token pair minted by the provider. Both tokens are
// opaque to this system.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// TokenInfo is the provider's view of an authenticated subject.
type TokenInfo struct {
	SubjectID     string
	Email         string
	EmailVerified bool
}

// Provider is the adapter interface the authorization core consumes.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (Credentials, error)
	SignUp(ctx context.Context, email, password, displayName string) (Credentials, error)
	Refresh(ctx context.Context, refreshToken string) (Credentials, error)
	VerifyAccessToken(ctx context.Context, token string) (TokenInfo, error)
	GetUserInfo(ctx context.Context, token string) (TokenInfo, error)
	SendEmailVerification(ctx context.Context, token string) error
	SendPasswordReset(ctx context.Context, email string) error
}
