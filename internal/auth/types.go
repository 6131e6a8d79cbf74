package auth

import "time"

// User carries the auth-relevant slice of the users table. Organizational
// scoping columns (zone/circle/division/district) are opaque foreign keys
// owned by the directory tables.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	RoleID       string
	DepartmentID string
	ZoneID       string
	CircleID     string
	DivisionID   string
	DistrictID   string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Profile is the user projection returned on login and by /v1/auth/me.
// Permission keys are resolved from the role's comma-joined permissions
// column.
type Profile struct {
	ID             string   `json:"id"`
	Email          string   `json:"email"`
	FirstName      string   `json:"first_name"`
	LastName       string   `json:"last_name"`
	RoleID         string   `json:"role_id"`
	RoleName       string   `json:"role_name"`
	DepartmentID   string   `json:"department_id"`
	DepartmentName string   `json:"department_name"`
	ZoneID         string   `json:"zone_id,omitempty"`
	ZoneName       string   `json:"zone_name,omitempty"`
	CircleID       string   `json:"circle_id,omitempty"`
	CircleName     string   `json:"circle_name,omitempty"`
	DivisionID     string   `json:"division_id,omitempty"`
	DivisionName   string   `json:"division_name,omitempty"`
	DistrictID     string   `json:"district_id,omitempty"`
	DistrictName   string   `json:"district_name,omitempty"`
	Permissions    []string `json:"permissions"`
	IsAdmin        bool     `json:"is_admin"`
}

// HasPermission reports whether the profile carries the permission key.
func (p *Profile) HasPermission(key string) bool {
	for _, k := range p.Permissions {
		if k == key {
			return true
		}
	}
	return false
}

// RefreshToken is the single live session-renewal credential for a user. The
// row is replaced wholesale on every login and every successful refresh.
type RefreshToken struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

// ResetTokenMatch is the user row matched by a reset token lookup. The lookup
// deliberately ignores expiry so the caller can distinguish "wrong token"
// from "right token, expired". SecondsRemaining is computed against the
// database clock as a guard against skew between the application and
// database hosts.
type ResetTokenMatch struct {
	UserID           string
	Email            string
	ExpiresAt        time.Time
	SecondsRemaining int64
}
