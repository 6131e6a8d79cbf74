package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	defaultResetTTL   = time.Hour
)

// Notifier delivers the password reset token to the user out of band.
// Implementations live outside this package (internal/mail).
type Notifier interface {
	SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error
}

// Service orchestrates login, token rotation, logout and password reset. It
// holds no mutable state of its own; concurrency correctness is delegated to
// the store's row-level atomicity.
type Service struct {
	store    Store
	signer   *Signer
	notifier Notifier
	now      func() time.Time

	refreshTTL time.Duration
	resetTTL   time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithResetTTL configures password reset token lifetime.
func WithResetTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.resetTTL = ttl
		}
		return nil
	}
}

// WithNotifier wires the outbound channel used by ForgotPassword.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *Service) error {
		s.notifier = n
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service with optional configuration.
func NewService(store Store, signer *Signer, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if signer == nil {
		return nil, errors.New("auth: signer is required")
	}
	svc := &Service{
		store:      store,
		signer:     signer,
		now:        time.Now,
		refreshTTL: defaultRefreshTTL,
		resetTTL:   defaultResetTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Session is a freshly minted access/refresh token pair bound to a user.
type Session struct {
	UserID           string
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// LoginResult bundles the session with the user profile projection.
type LoginResult struct {
	Session
	Profile *Profile
}

// ResetRequest is the outcome of ForgotPassword. The token is surfaced to the
// HTTP boundary only behind a non-production debug gate.
type ResetRequest struct {
	Email     string
	Token     string
	ExpiresAt time.Time
}

// NormalizeEmail lower-cases and trims an email address. Both user creation
// and login lookups go through it so a mixed-case login input still matches
// the stored row.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Login verifies credentials and starts a fresh session, replacing any prior
// refresh token for the user. Absent user and wrong password are deliberately
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", ErrInvalidInput)
	}
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	session, err := s.startSession(ctx, user)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.Users(ctx).Profile(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: *session, Profile: profile}, nil
}

// Refresh validates the presented refresh token and rotates it: the old token
// is gone the moment a new one lands, limiting the blast radius of a stolen
// refresh token to a single use window.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, ErrInvalidRefreshToken
	}
	tokens := s.store.RefreshTokens(ctx)
	record, err := tokens.Get(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidRefreshToken
		}
		return nil, err
	}
	// expires_at equal to "now" counts as expired.
	if !record.ExpiresAt.After(s.now()) {
		if err := tokens.DeleteByUserID(ctx, record.UserID); err != nil {
			return nil, err
		}
		return nil, ErrRefreshTokenExpired
	}
	user, err := s.store.Users(ctx).Find(ctx, record.UserID)
	if err != nil {
		return nil, err
	}
	return s.startSession(ctx, user)
}

// Logout invalidates the stored refresh token. A missing token is not an
// error: the session is already gone, so logout is idempotent.
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil
	}
	return s.store.RefreshTokens(ctx).DeleteByToken(ctx, refreshToken)
}

// Profile resolves the projection for an authenticated user.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	return s.store.Users(ctx).Profile(ctx, userID)
}

// VerifyAccessToken checks a bearer token and returns its claims.
func (s *Service) VerifyAccessToken(token string) (*AccessClaims, error) {
	return s.signer.Verify(token)
}

// ForgotPassword plants a time-limited reset token on the user row and
// dispatches it. The token is committed before dispatch is attempted: a
// failed send leaves a planted token that is unusable (the user never saw
// it) and is overwritten by the next request.
func (s *Service) ForgotPassword(ctx context.Context, email string) (*ResetRequest, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	token, err := NewResetToken()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.resetTTL)
	if err := users.SetResetToken(ctx, user.Email, token, expiresAt); err != nil {
		return nil, err
	}
	if s.notifier == nil {
		return nil, fmt.Errorf("%w: no reset notifier", ErrNotConfigured)
	}
	if err := s.notifier.SendPasswordReset(ctx, user.Email, token, expiresAt); err != nil {
		return nil, fmt.Errorf("dispatch reset notification: %w", err)
	}
	return &ResetRequest{Email: user.Email, Token: token, ExpiresAt: expiresAt}, nil
}

// ResetPassword consumes a reset token. Expiry is judged against both the
// server clock and the database clock; either one expiring burns the token so
// a subsequent attempt with the same value reports "invalid", not "expired".
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return fmt.Errorf("%w: token and new password are required", ErrInvalidInput)
	}
	users := s.store.Users(ctx)
	match, err := users.FindByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if !match.ExpiresAt.After(s.now()) || match.SecondsRemaining <= 0 {
		if err := users.ClearResetToken(ctx, match.UserID); err != nil {
			return err
		}
		return ErrResetTokenExpired
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return users.ResetPassword(ctx, match.UserID, hash)
}

// ResetState reports reset-token metadata for a user; diagnostic use only,
// gated behind an authenticated admin route at the HTTP boundary.
func (s *Service) ResetState(ctx context.Context, email string) (*ResetTokenMatch, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	return s.store.Users(ctx).ResetState(ctx, email)
}

func (s *Service) startSession(ctx context.Context, user *User) (*Session, error) {
	access, accessExp, err := s.signer.AccessToken(user)
	if err != nil {
		return nil, err
	}
	refresh, err := NewRefreshToken()
	if err != nil {
		return nil, err
	}
	refreshExp := s.now().Add(s.refreshTTL)
	if err := s.store.RefreshTokens(ctx).Save(ctx, user.ID, refresh, refreshExp); err != nil {
		return nil, err
	}
	return &Session{
		UserID:           user.ID,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
