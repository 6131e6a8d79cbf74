package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultIssuer = "wrdms"

	// Opaque token sizes in random bytes; both are hex encoded on the wire,
	// doubling the character count.
	refreshTokenBytes = 40
	resetTokenBytes   = 32
)

// AccessClaims are the JWT claims embedded into access tokens. An access
// token is self-contained: validity is determined purely by signature and
// expiry, with no server-side revocation list.
type AccessClaims struct {
	RoleID       string `json:"role_id,omitempty"`
	DepartmentID string `json:"department_id,omitempty"`
	jwt.RegisteredClaims
}

// Signer mints and verifies the short-lived signed access tokens. Refresh and
// reset tokens are opaque random strings and never pass through the signer.
type Signer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// SignerOption configures a Signer.
type SignerOption func(*Signer)

// WithSignerIssuer overrides the issuer claim.
func WithSignerIssuer(issuer string) SignerOption {
	return func(s *Signer) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = strings.TrimSpace(issuer)
		}
	}
}

// WithSignerClock overrides the time source (useful for tests).
func WithSignerClock(fn func() time.Time) SignerOption {
	return func(s *Signer) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewSigner constructs a Signer. An empty secret is tolerated here so the
// service can boot in a degraded state; signing and verification then fail
// with ErrNotConfigured.
func NewSigner(secret string, ttl time.Duration, opts ...SignerOption) *Signer {
	s := &Signer{
		issuer: defaultIssuer,
		ttl:    defaultAccessTTL,
		now:    time.Now,
	}
	if strings.TrimSpace(secret) != "" {
		s.secret = []byte(secret)
	}
	if ttl > 0 {
		s.ttl = ttl
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AccessToken signs a token binding the user's identity, role and department.
// No side effects.
func (s *Signer) AccessToken(user *User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrNotConfigured
	}
	now := s.now().UTC()
	exp := now.Add(s.ttl)
	claims := AccessClaims{
		RoleID:       user.RoleID,
		DepartmentID: user.DepartmentID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, exp, nil
}

// Verify checks signature, issuer and expiry and returns the embedded claims.
func (s *Signer) Verify(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	if len(s.secret) == 0 {
		return nil, ErrNotConfigured
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired(), jwt.WithTimeFunc(func() time.Time {
		return s.now().UTC()
	}))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// NewRefreshToken produces an opaque session-renewal credential: 40
// cryptographically random bytes, hex encoded (80 characters).
func NewRefreshToken() (string, error) {
	return randomHex(refreshTokenBytes)
}

// NewResetToken produces an opaque password-reset credential: 32
// cryptographically random bytes, hex encoded (64 characters).
func NewResetToken() (string, error) {
	return randomHex(resetTokenBytes)
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
