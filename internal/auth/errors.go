package auth

import "errors"

var (
	// ErrInvalidToken indicates a structurally corrupt or mis-signed token.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("auth: token expired")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
	ErrUnauthorized = errors.New("auth: unauthorized")
	// ErrForbidden means the caller is authenticated but the role hierarchy
	// rules reject the operation.
	ErrForbidden = errors.New("auth: forbidden")
)
