package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestRefreshTokenSaveIsSingleStatementUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expires := time.Now().Add(7 * 24 * time.Hour)
	mock.ExpectExec("insert into refresh_tokens").
		WithArgs("u-1", "tok-1", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.RefreshTokens(ctx).Save(ctx, "u-1", "tok-1", expires); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenGet(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expires := time.Now().Add(time.Hour).UTC()
	mock.ExpectQuery("select user_id, refresh_token, expires_at from refresh_tokens").
		WithArgs("tok-1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "refresh_token", "expires_at"}).
			AddRow("u-1", "tok-1", expires))

	rec, err := store.RefreshTokens(ctx).Get(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.UserID != "u-1" || !rec.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected record: %+v", rec)
	}

	mock.ExpectQuery("select user_id, refresh_token, expires_at from refresh_tokens").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)
	if _, err := store.RefreshTokens(ctx).Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshTokenDeletesUseDistinctKeys(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("delete from refresh_tokens where refresh_token").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("delete from refresh_tokens where user_id").
		WithArgs("u-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	tokens := store.RefreshTokens(ctx)
	if err := tokens.DeleteByToken(ctx, "tok-1"); err != nil {
		t.Fatalf("DeleteByToken: %v", err)
	}
	if err := tokens.DeleteByUserID(ctx, "u-1"); err != nil {
		t.Fatalf("DeleteByUserID: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSetResetTokenUnknownEmail(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update users set reset_token").
		WithArgs("nobody@b.com", "tok", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users(ctx).SetResetToken(ctx, "nobody@b.com", "tok", time.Now().Add(time.Hour))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindByResetTokenCarriesDatabaseClock(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	expires := time.Now().Add(30 * time.Minute).UTC()
	mock.ExpectQuery("from users where reset_token").
		WithArgs("tok").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "expire", "seconds"}).
			AddRow("u-1", "a@b.com", expires, int64(1800)))

	match, err := store.Users(ctx).FindByResetToken(ctx, "tok")
	if err != nil {
		t.Fatalf("FindByResetToken: %v", err)
	}
	if match.UserID != "u-1" || match.SecondsRemaining != 1800 {
		t.Fatalf("unexpected match: %+v", match)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestResetPasswordClearsTokenInSameUpdate(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("update users set password_hash").
		WithArgs("u-1", "new-hash").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.Users(ctx).ResetPassword(ctx, "u-1", "new-hash"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProfileResolvesDirectoryNames(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	cols := []string{
		"id", "email", "first_name", "last_name",
		"role_id", "role_name", "permissions", "is_admin",
		"department_id", "department_name",
		"zone_id", "zone_name", "circle_id", "circle_name",
		"division_id", "division_name", "district_id", "district_name",
	}
	mock.ExpectQuery("select u.id, u.email").
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(
			"u-1", "a@b.com", "Asha", "Verma",
			"r-1", "Executive Engineer", "users.manage,works.read", true,
			"d-1", "Irrigation Wing",
			"z-1", "North Zone", "c-1", "Circle I",
			"dv-1", "Division A", "dt-1", "District X",
		))

	p, err := store.Users(ctx).Profile(ctx, "u-1")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p.RoleName != "Executive Engineer" || p.ZoneName != "North Zone" {
		t.Fatalf("unexpected profile: %+v", p)
	}
	if len(p.Permissions) != 2 || !p.HasPermission("works.read") {
		t.Fatalf("permissions not parsed: %v", p.Permissions)
	}
	if !p.IsAdmin {
		t.Fatal("expected admin flag")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFindUserNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery("from users where id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	if _, err := store.Users(ctx).Find(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
