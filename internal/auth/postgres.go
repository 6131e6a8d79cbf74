package auth

import (
	"context"
	"database/sql"
	"time"

	"wrdms.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Users(context.Context) UserStore { return &userStore{db: s.db} }
func (s *PGStore) RefreshTokens(context.Context) RefreshTokenStore {
	return &refreshTokenStore{db: s.db}
}

// User store ---------------------------------------------------------------
type userStore struct{ db *sql.DB }

const userColumns = `id, email, password_hash,
	coalesce(first_name,''), coalesce(last_name,''),
	coalesce(role_id,''), coalesce(department_id,''),
	coalesce(zone_id,''), coalesce(circle_id,''),
	coalesce(division_id,''), coalesce(district_id,''),
	created_at, updated_at`

func (s *userStore) Create(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = ids.New()
	}
	u.Email = NormalizeEmail(u.Email)
	_, err := s.db.ExecContext(ctx,
		`insert into users(id, email, password_hash, first_name, last_name,
			role_id, department_id, zone_id, circle_id, division_id, district_id)
		 values($1,$2,$3,$4,$5, nullif($6,''), nullif($7,''), nullif($8,''), nullif($9,''), nullif($10,''), nullif($11,''))`,
		u.ID, u.Email, u.PasswordHash, u.FirstName, u.LastName,
		u.RoleID, u.DepartmentID, u.ZoneID, u.CircleID, u.DivisionID, u.DistrictID,
	)
	return err
}

func (s *userStore) Find(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where id=$1`, id)
	return scanUser(row)
}

func (s *userStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `select `+userColumns+` from users where email=$1`, email)
	return scanUser(row)
}

func scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash,
		&u.FirstName, &u.LastName,
		&u.RoleID, &u.DepartmentID,
		&u.ZoneID, &u.CircleID, &u.DivisionID, &u.DistrictID,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *userStore) Profile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx,
		`select u.id, u.email, coalesce(u.first_name,''), coalesce(u.last_name,''),
			coalesce(u.role_id,''), coalesce(r.name,''), coalesce(r.permissions,''), coalesce(r.is_admin,false),
			coalesce(u.department_id,''), coalesce(d.name,''),
			coalesce(u.zone_id,''), coalesce(z.name,''),
			coalesce(u.circle_id,''), coalesce(c.name,''),
			coalesce(u.division_id,''), coalesce(dv.name,''),
			coalesce(u.district_id,''), coalesce(dt.name,'')
		 from users u
		 left join roles r on r.id = u.role_id
		 left join departments d on d.id = u.department_id
		 left join zones z on z.id = u.zone_id
		 left join circles c on c.id = u.circle_id
		 left join divisions dv on dv.id = u.division_id
		 left join districts dt on dt.id = u.district_id
		 where u.id = $1`, id)

	var (
		p           Profile
		permissions string
	)
	err := row.Scan(&p.ID, &p.Email, &p.FirstName, &p.LastName,
		&p.RoleID, &p.RoleName, &permissions, &p.IsAdmin,
		&p.DepartmentID, &p.DepartmentName,
		&p.ZoneID, &p.ZoneName,
		&p.CircleID, &p.CircleName,
		&p.DivisionID, &p.DivisionName,
		&p.DistrictID, &p.DistrictName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	p.Permissions = SplitPermissions(permissions)
	return &p, nil
}

func (s *userStore) SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`update users set reset_token=$2, reset_token_expire=$3, updated_at=now() where email=$1`,
		email, token, expiresAt)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *userStore) FindByResetToken(ctx context.Context, token string) (*ResetTokenMatch, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, coalesce(reset_token_expire, to_timestamp(0)),
			cast(coalesce(extract(epoch from (reset_token_expire - now())), 0) as bigint)
		 from users where reset_token=$1`, token)
	return scanResetMatch(row)
}

func (s *userStore) ResetState(ctx context.Context, email string) (*ResetTokenMatch, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, coalesce(reset_token_expire, to_timestamp(0)),
			cast(coalesce(extract(epoch from (reset_token_expire - now())), 0) as bigint)
		 from users where email=$1 and reset_token is not null`, email)
	return scanResetMatch(row)
}

func scanResetMatch(row *sql.Row) (*ResetTokenMatch, error) {
	var m ResetTokenMatch
	if err := row.Scan(&m.UserID, &m.Email, &m.ExpiresAt, &m.SecondsRemaining); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *userStore) ClearResetToken(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`update users set reset_token=null, reset_token_expire=null, updated_at=now() where id=$1`,
		userID)
	return err
}

func (s *userStore) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	res, err := s.db.ExecContext(ctx,
		`update users set password_hash=$2, reset_token=null, reset_token_expire=null, updated_at=now() where id=$1`,
		userID, passwordHash)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Refresh token store --------------------------------------------------------
type refreshTokenStore struct{ db *sql.DB }

// Save replaces the user's refresh token in a single statement. The upsert is
// what enforces "one live refresh token per user": two concurrent logins race
// only over which token survives, never over duplicate rows.
func (s *refreshTokenStore) Save(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(user_id, refresh_token, expires_at)
		 values($1,$2,$3)
		 on conflict (user_id) do update
		 set refresh_token = excluded.refresh_token, expires_at = excluded.expires_at`,
		userID, token, expiresAt)
	return err
}

func (s *refreshTokenStore) Get(ctx context.Context, token string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select user_id, refresh_token, expires_at from refresh_tokens where refresh_token=$1`, token)
	var rt RefreshToken
	if err := row.Scan(&rt.UserID, &rt.Token, &rt.ExpiresAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rt, nil
}

func (s *refreshTokenStore) DeleteByToken(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where refresh_token=$1`, token)
	return err
}

func (s *refreshTokenStore) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where user_id=$1`, userID)
	return err
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
