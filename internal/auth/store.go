package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Users(ctx context.Context) UserStore
	RefreshTokens(ctx context.Context) RefreshTokenStore
}

// UserStore manages the auth-relevant slice of the users table.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	// FindByEmail matches the already-normalized (lower-cased) email.
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Profile resolves the user projection including role, department,
	// organizational hierarchy names and the role's permission list.
	Profile(ctx context.Context, id string) (*Profile, error)

	// SetResetToken plants a reset token and its expiry on the user row
	// matched by email, replacing any previous token. Returns ErrNotFound
	// when no row matches.
	SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) error
	// FindByResetToken matches a reset token regardless of expiry.
	FindByResetToken(ctx context.Context, token string) (*ResetTokenMatch, error)
	// ResetState reports the reset token state for a user by email without
	// exposing the token value.
	ResetState(ctx context.Context, email string) (*ResetTokenMatch, error)
	// ClearResetToken burns the reset token fields on the user row.
	ClearResetToken(ctx context.Context, userID string) error
	// ResetPassword stores the new password hash and clears the reset token
	// fields in the same update (single-use enforcement).
	ResetPassword(ctx context.Context, userID, passwordHash string) error
}

// RefreshTokenStore tracks the single live refresh token per user. Save must
// be atomic (insert-or-replace in one statement), so two concurrent logins
// for the same user cannot both insert a row.
type RefreshTokenStore interface {
	Save(ctx context.Context, userID, token string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (*RefreshToken, error)
	// DeleteByToken removes the row holding the exact token value (logout).
	DeleteByToken(ctx context.Context, token string) error
	// DeleteByUserID removes the user's row (expiry cleanup during refresh).
	DeleteByUserID(ctx context.Context, userID string) error
}
