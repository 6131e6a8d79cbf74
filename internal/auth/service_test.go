package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type notifierStub struct {
	mu     sync.Mutex
	to     string
	token  string
	expiry time.Time
	sends  int
	err    error
}

func (n *notifierStub) SendPasswordReset(ctx context.Context, to, token string, expiresAt time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sends++
	if n.err != nil {
		return n.err
	}
	n.to, n.token, n.expiry = to, token, expiresAt
	return nil
}

func newTestService(t *testing.T) (*Service, *InMemory, *fakeClock, *notifierStub) {
	t.Helper()
	clk := &fakeClock{now: time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)}
	store := NewInMemory()
	store.SetClock(clk.Now)
	store.AddRole("r-xen", InMemoryRole{
		Name:        "Executive Engineer",
		Permissions: "users.manage,works.read,works.read",
		IsAdmin:     true,
	})
	store.AddDepartment("d-irr", "Irrigation Wing")

	hash, err := HashPassword("P@ssw0rd1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	err = store.Users(context.Background()).Create(context.Background(), &User{
		ID:           "u-1",
		Email:        "a@b.com",
		PasswordHash: hash,
		FirstName:    "Asha",
		LastName:     "Verma",
		RoleID:       "r-xen",
		DepartmentID: "d-irr",
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	signer := NewSigner("test-secret", 15*time.Minute, WithSignerClock(clk.Now))
	notifier := &notifierStub{}
	svc, err := NewService(store, signer, WithClock(clk.Now), WithNotifier(notifier))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, clk, notifier
}

func TestLoginSuccess(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Login(ctx, "A@B.com", "P@ssw0rd1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.AccessToken == "" {
		t.Fatal("expected access token")
	}
	if len(res.RefreshToken) != 80 {
		t.Fatalf("refresh token length = %d, want 80", len(res.RefreshToken))
	}

	rec, err := store.RefreshTokens(ctx).Get(ctx, res.RefreshToken)
	if err != nil {
		t.Fatalf("stored refresh token lookup: %v", err)
	}
	if rec.UserID != "u-1" {
		t.Fatalf("refresh token bound to %s, want u-1", rec.UserID)
	}

	p := res.Profile
	if p == nil {
		t.Fatal("expected profile")
	}
	if p.RoleName != "Executive Engineer" || p.DepartmentName != "Irrigation Wing" {
		t.Fatalf("unexpected directory names: %+v", p)
	}
	if len(p.Permissions) != 2 {
		t.Fatalf("permissions not deduplicated: %v", p.Permissions)
	}
	if !p.HasPermission(PermissionManageUsers) {
		t.Fatalf("expected %s permission", PermissionManageUsers)
	}
	if !p.IsAdmin {
		t.Fatal("expected admin flag")
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, badPassword := svc.Login(ctx, "a@b.com", "wrong")
	_, noSuchUser := svc.Login(ctx, "nobody@b.com", "P@ssw0rd1")

	if !errors.Is(badPassword, ErrInvalidCredentials) {
		t.Fatalf("bad password: got %v", badPassword)
	}
	if !errors.Is(noSuchUser, ErrInvalidCredentials) {
		t.Fatalf("unknown email: got %v", noSuchUser)
	}
	if badPassword.Error() != noSuchUser.Error() {
		t.Fatalf("error messages differ: %q vs %q", badPassword, noSuchUser)
	}
}

func TestLoginValidation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Login(ctx, "", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing email: got %v", err)
	}
	if _, err := svc.Login(ctx, "a@b.com", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("missing password: got %v", err)
	}
}

func TestRefreshRotation(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "a@b.com", "P@ssw0rd1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	second, err := svc.Refresh(ctx, login.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if second.UserID != "u-1" {
		t.Fatalf("session bound to %s, want u-1", second.UserID)
	}
	if second.RefreshToken == login.RefreshToken {
		t.Fatal("refresh token was not rotated")
	}
	if second.AccessToken == login.AccessToken {
		t.Fatal("access token was not reissued")
	}

	// The superseded token must be rejected.
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("reuse of rotated token: got %v", err)
	}

	// The fresh one keeps working.
	if _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("refresh with current token: %v", err)
	}
}

func TestRefreshExpiryBoundary(t *testing.T) {
	svc, store, clk, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "a@b.com", "P@ssw0rd1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// expires_at exactly equal to "now" counts as expired.
	clk.Advance(login.RefreshExpiresAt.Sub(clk.Now()))
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrRefreshTokenExpired) {
		t.Fatalf("expected ErrRefreshTokenExpired, got %v", err)
	}

	// Expiry cleanup removed the stored row, so a retry reads as invalid.
	if _, err := store.RefreshTokens(ctx).Get(ctx, login.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired row not deleted: %v", err)
	}
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected ErrInvalidRefreshToken after cleanup, got %v", err)
	}
}

func TestRefreshDanglingUser(t *testing.T) {
	svc, store, clk, _ := newTestService(t)
	ctx := context.Background()

	token, err := NewRefreshToken()
	if err != nil {
		t.Fatalf("NewRefreshToken: %v", err)
	}
	if err := store.RefreshTokens(ctx).Save(ctx, "u-gone", token, clk.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := svc.Refresh(ctx, token); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for dangling user, got %v", err)
	}
}

func TestLogoutIdempotent(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	login, err := svc.Login(ctx, "a@b.com", "P@ssw0rd1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	// No cookie left: still not an error.
	if err := svc.Logout(ctx, ""); err != nil {
		t.Fatalf("second Logout: %v", err)
	}
	// Same for replaying the dead token value.
	if err := svc.Logout(ctx, login.RefreshToken); err != nil {
		t.Fatalf("Logout with dead token: %v", err)
	}
	if _, err := svc.Refresh(ctx, login.RefreshToken); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("token survived logout: %v", err)
	}
}

func TestForgotPassword(t *testing.T) {
	svc, _, clk, notifier := newTestService(t)
	ctx := context.Background()

	req, err := svc.ForgotPassword(ctx, "A@B.COM ")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	if len(req.Token) != 64 {
		t.Fatalf("reset token length = %d, want 64", len(req.Token))
	}
	if want := clk.Now().Add(time.Hour); !req.ExpiresAt.Equal(want) {
		t.Fatalf("expiry = %v, want %v", req.ExpiresAt, want)
	}
	if notifier.to != "a@b.com" || notifier.token != req.Token {
		t.Fatalf("notification not dispatched: %+v", notifier)
	}

	if _, err := svc.ForgotPassword(ctx, "nobody@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email: got %v", err)
	}
}

func TestForgotPasswordDispatchFailureLeavesToken(t *testing.T) {
	svc, _, _, notifier := newTestService(t)
	ctx := context.Background()

	notifier.err = errors.New("smtp unreachable")
	if _, err := svc.ForgotPassword(ctx, "a@b.com"); err == nil {
		t.Fatal("expected dispatch error")
	}

	// The token was committed before dispatch; it is unusable (never
	// delivered) and the next request overwrites it.
	state, err := svc.ResetState(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("ResetState: %v", err)
	}
	if state.SecondsRemaining <= 0 {
		t.Fatalf("expected live planted token, got %+v", state)
	}
}

func TestResetPasswordFlow(t *testing.T) {
	svc, _, clk, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.ForgotPassword(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	clk.Advance(59 * time.Minute)
	if err := svc.ResetPassword(ctx, req.Token, "NewP@ss1"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	// Single use: the token was cleared, so the same value is now unknown.
	if err := svc.ResetPassword(ctx, req.Token, "Again1!"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("replayed token: got %v", err)
	}

	if _, err := svc.Login(ctx, "a@b.com", "NewP@ss1"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
	if _, err := svc.Login(ctx, "a@b.com", "P@ssw0rd1"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("old password still accepted: %v", err)
	}
}

func TestResetPasswordExpiredTokenIsBurned(t *testing.T) {
	svc, _, clk, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.ForgotPassword(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	clk.Advance(time.Hour + time.Second)
	if err := svc.ResetPassword(ctx, req.Token, "NewP@ss1"); !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired, got %v", err)
	}
	// The expired token was cleared; retrying reads as "wrong token".
	if err := svc.ResetPassword(ctx, req.Token, "NewP@ss1"); !errors.Is(err, ErrInvalidResetToken) {
		t.Fatalf("expected ErrInvalidResetToken after burn, got %v", err)
	}
}

func TestResetPasswordHonorsDatabaseClock(t *testing.T) {
	svc, store, clk, _ := newTestService(t)
	ctx := context.Background()

	req, err := svc.ForgotPassword(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}

	// Database host clock runs ahead of the application clock; the token is
	// expired by the database's reckoning even though the server clock still
	// has it live.
	dbClock := &fakeClock{now: clk.Now().Add(2 * time.Hour)}
	store.SetClock(dbClock.Now)

	if err := svc.ResetPassword(ctx, req.Token, "NewP@ss1"); !errors.Is(err, ErrResetTokenExpired) {
		t.Fatalf("expected ErrResetTokenExpired on database clock, got %v", err)
	}
}

func TestSplitPermissions(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"  ", 0},
		{"a", 1},
		{"a,b,c", 3},
		{"a, a ,b,,", 2},
	}
	for _, tc := range cases {
		got := SplitPermissions(tc.in)
		if got == nil {
			t.Fatalf("SplitPermissions(%q) returned nil, want a slice", tc.in)
		}
		if len(got) != tc.want {
			t.Fatalf("SplitPermissions(%q) = %v, want %d entries", tc.in, got, tc.want)
		}
	}
}

func TestProfilePermissionsMarshalAsArray(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	ctx := context.Background()

	// a user without a role has an empty, but present, permission list
	hash, err := HashPassword("P@ssw0rd1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	err = store.Users(ctx).Create(ctx, &User{
		ID:           "u-norole",
		Email:        "norole@b.com",
		PasswordHash: hash,
	})
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}

	p, err := svc.Profile(ctx, "u-norole")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.Permissions == nil {
		t.Fatal("permissions must never be nil")
	}
	raw, err := json.Marshal(p)
	if err != nil {
		t.Fatalf("marshal profile: %v", err)
	}
	if !strings.Contains(string(raw), `"permissions":[]`) {
		t.Fatalf("permissions must marshal as an empty array: %s", raw)
	}
}
