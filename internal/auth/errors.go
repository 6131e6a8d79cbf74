package auth

import "errors"

// Sentinel errors returned by the auth service. The HTTP boundary translates
// them into status codes in a single mapping; callers match with errors.Is.
var (
	ErrInvalidInput        = errors.New("auth: invalid input")
	ErrInvalidCredentials  = errors.New("auth: invalid credentials")
	ErrInvalidToken        = errors.New("auth: invalid token")
	ErrInvalidRefreshToken = errors.New("auth: invalid refresh token")
	ErrRefreshTokenExpired = errors.New("auth: refresh token expired")
	ErrInvalidResetToken   = errors.New("auth: invalid reset token")
	ErrResetTokenExpired   = errors.New("auth: reset token expired")
	ErrNotFound            = errors.New("auth: not found")
	ErrAlreadyExists       = errors.New("auth: already exists")
	ErrNotConfigured       = errors.New("auth: signing secret is not configured")
)
