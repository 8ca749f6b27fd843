// Package memory implementa core.Repository sobre maps en memoria.
//
// Es el backend de desarrollo y el doble de test del service layer. Los
// check-and-set se resuelven bajo un único mutex, con la misma semántica de
// un-solo-ganador que el adapter de postgres.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/google/uuid"
)

type Store struct {
	mu sync.Mutex

	nextUserID int64
	users      map[int64]*core.User
	sessions   map[string]*core.Session    // por id
	states     map[string]*core.OAuthState // por state value
}

func New() *Store {
	return &Store{
		nextUserID: 1,
		users:      make(map[int64]*core.User),
		sessions:   make(map[string]*core.Session),
		states:     make(map[string]*core.OAuthState),
	}
}

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

// ------- OAuth states -------

func (s *Store) CreateOAuthState(ctx context.Context, st *core.OAuthState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.states[st.State]; exists {
		return core.ErrConflict
	}
	cp := *st
	s.states[st.State] = &cp
	return nil
}

func (s *Store) ConsumeOAuthState(ctx context.Context, state, provider string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[state]
	if !ok || st.Provider != provider || st.IsUsed || !now.Before(st.ExpiresAt) {
		return core.ErrNotFound
	}
	st.IsUsed = true
	return nil
}

// ------- Sessions -------

func (s *Store) CreateSession(ctx context.Context, sess *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if sess.CreatedAt.IsZero() {
		sess.CreatedAt = now
	}
	if sess.LastUsed.IsZero() {
		sess.LastUsed = now
	}
	for _, other := range s.sessions {
		if other.RefreshTokenHash == sess.RefreshTokenHash {
			return core.ErrConflict
		}
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *Store) GetActiveSessionByHash(ctx context.Context, tokenHash string, now time.Time) (*core.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == tokenHash && sess.Active(now) {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) RevokeSessionByID(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.IsRevoked {
		return false, nil
	}
	sess.IsRevoked = true
	return true, nil
}

func (s *Store) RevokeSessionByHash(ctx context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.RefreshTokenHash == tokenHash {
			sess.IsRevoked = true
		}
	}
	return nil
}

func (s *Store) RevokeAllSessions(ctx context.Context, userID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	var n int64
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.Active(now) {
			sess.IsRevoked = true
			n++
		}
	}
	return n, nil
}

// ------- Users -------

func (s *Store) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) GetUserByProviderID(ctx context.Context, provider, externalID string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		var pid *string
		switch provider {
		case core.ProviderGoogle:
			pid = u.GoogleID
		case core.ProviderApple:
			pid = u.AppleID
		}
		if pid != nil && *pid == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.users {
		if strings.EqualFold(other.Email, u.Email) {
			return core.ErrConflict
		}
	}
	u.ID = s.nextUserID
	s.nextUserID++
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.users[u.ID]
	if !ok {
		return core.ErrNotFound
	}
	u.CreatedAt = cur.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID int64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return core.ErrNotFound
	}
	t := now
	u.LastLogin = &t
	u.UpdatedAt = now
	return nil
}
