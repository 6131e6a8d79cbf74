package auth

import (
	"context"
	"sync"
	"time"
)

var _ Store = (*InMemory)(nil)

// InMemoryRole is the slice of a role row the in-memory store needs to build
// profiles.
type InMemoryRole struct {
	Name        string
	Permissions string
	IsAdmin     bool
}

type resetEntry struct {
	token     string
	expiresAt time.Time
}

// InMemory is a Store backed by maps. Used by tests and by local development
// when no database is configured. All methods return copies.
type InMemory struct {
	mu          sync.RWMutex
	users       map[string]*User
	roles       map[string]InMemoryRole
	departments map[string]string
	resets      map[string]resetEntry    // keyed by user id
	tokens      map[string]RefreshToken  // keyed by token value
	userTokens  map[string]string        // user id -> live token value
	now         func() time.Time
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{
		users:       make(map[string]*User),
		roles:       make(map[string]InMemoryRole),
		departments: make(map[string]string),
		resets:      make(map[string]resetEntry),
		tokens:      make(map[string]RefreshToken),
		userTokens:  make(map[string]string),
		now:         time.Now,
	}
}

// SetClock overrides the store clock, which stands in for the database clock
// when computing reset token validity.
func (m *InMemory) SetClock(fn func() time.Time) {
	if fn != nil {
		m.now = fn
	}
}

// AddRole registers a role used for profile resolution.
func (m *InMemory) AddRole(id string, role InMemoryRole) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roles[id] = role
}

// AddDepartment registers a department used for profile resolution.
func (m *InMemory) AddDepartment(id, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[id] = name
}

func (m *InMemory) Users(context.Context) UserStore                 { return &memUserStore{m} }
func (m *InMemory) RefreshTokens(context.Context) RefreshTokenStore { return &memTokenStore{m} }

// User store ---------------------------------------------------------------
type memUserStore struct{ m *InMemory }

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u.Email = NormalizeEmail(u.Email)
	if u.ID == "" {
		u.ID = u.Email
	}
	for _, existing := range s.m.users {
		if existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.m.now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	cp := *u
	s.m.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(ctx context.Context, id string) (*User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u := s.m.findByEmailLocked(email)
	if u == nil {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *InMemory) findByEmailLocked(email string) *User {
	for _, u := range m.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

func (s *memUserStore) Profile(ctx context.Context, id string) (*Profile, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u, ok := s.m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	p := Profile{
		ID:           u.ID,
		Email:        u.Email,
		FirstName:    u.FirstName,
		LastName:     u.LastName,
		RoleID:       u.RoleID,
		DepartmentID: u.DepartmentID,
		ZoneID:       u.ZoneID,
		CircleID:     u.CircleID,
		DivisionID:   u.DivisionID,
		DistrictID:   u.DistrictID,
		Permissions:  []string{},
	}
	if role, ok := s.m.roles[u.RoleID]; ok {
		p.RoleName = role.Name
		p.Permissions = SplitPermissions(role.Permissions)
		p.IsAdmin = role.IsAdmin
	}
	if name, ok := s.m.departments[u.DepartmentID]; ok {
		p.DepartmentName = name
	}
	return &p, nil
}

func (s *memUserStore) SetResetToken(ctx context.Context, email, token string, expiresAt time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u := s.m.findByEmailLocked(email)
	if u == nil {
		return ErrNotFound
	}
	s.m.resets[u.ID] = resetEntry{token: token, expiresAt: expiresAt}
	return nil
}

func (s *memUserStore) FindByResetToken(ctx context.Context, token string) (*ResetTokenMatch, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	for userID, entry := range s.m.resets {
		if entry.token != token {
			continue
		}
		u, ok := s.m.users[userID]
		if !ok {
			return nil, ErrNotFound
		}
		return s.m.resetMatchLocked(u, entry), nil
	}
	return nil, ErrNotFound
}

func (s *memUserStore) ResetState(ctx context.Context, email string) (*ResetTokenMatch, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	u := s.m.findByEmailLocked(email)
	if u == nil {
		return nil, ErrNotFound
	}
	entry, ok := s.m.resets[u.ID]
	if !ok {
		return nil, ErrNotFound
	}
	return s.m.resetMatchLocked(u, entry), nil
}

func (m *InMemory) resetMatchLocked(u *User, entry resetEntry) *ResetTokenMatch {
	return &ResetTokenMatch{
		UserID:           u.ID,
		Email:            u.Email,
		ExpiresAt:        entry.expiresAt,
		SecondsRemaining: int64(entry.expiresAt.Sub(m.now()) / time.Second),
	}
}

func (s *memUserStore) ClearResetToken(ctx context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.resets, userID)
	return nil
}

func (s *memUserStore) ResetPassword(ctx context.Context, userID, passwordHash string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	u, ok := s.m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = s.m.now().UTC()
	delete(s.m.resets, userID)
	return nil
}

// Refresh token store --------------------------------------------------------
type memTokenStore struct{ m *InMemory }

func (s *memTokenStore) Save(ctx context.Context, userID, token string, expiresAt time.Time) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if old, ok := s.m.userTokens[userID]; ok {
		delete(s.m.tokens, old)
	}
	s.m.tokens[token] = RefreshToken{UserID: userID, Token: token, ExpiresAt: expiresAt}
	s.m.userTokens[userID] = token
	return nil
}

func (s *memTokenStore) Get(ctx context.Context, token string) (*RefreshToken, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	rt, ok := s.m.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	cp := rt
	return &cp, nil
}

func (s *memTokenStore) DeleteByToken(ctx context.Context, token string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if rt, ok := s.m.tokens[token]; ok {
		delete(s.m.userTokens, rt.UserID)
		delete(s.m.tokens, token)
	}
	return nil
}

func (s *memTokenStore) DeleteByUserID(ctx context.Context, userID string) error {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	if token, ok := s.m.userTokens[userID]; ok {
		delete(s.m.tokens, token)
		delete(s.m.userTokens, userID)
	}
	return nil
}
