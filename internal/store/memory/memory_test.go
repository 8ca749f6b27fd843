package memory_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/coldreach/coldreach/internal/store/memory"
	"github.com/stretchr/testify/require"
)

func TestConsumeOAuthState_SingleUse(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	st := &core.OAuthState{State: "abc", Provider: core.ProviderGoogle, ExpiresAt: now.Add(10 * time.Minute)}
	require.NoError(t, s.CreateOAuthState(ctx, st))

	require.NoError(t, s.ConsumeOAuthState(ctx, "abc", core.ProviderGoogle, now))
	require.ErrorIs(t, s.ConsumeOAuthState(ctx, "abc", core.ProviderGoogle, now), core.ErrNotFound)
}

func TestConsumeOAuthState_WrongProviderOrExpired(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateOAuthState(ctx, &core.OAuthState{
		State: "s1", Provider: core.ProviderGoogle, ExpiresAt: now.Add(time.Minute),
	}))
	require.ErrorIs(t, s.ConsumeOAuthState(ctx, "s1", core.ProviderApple, now), core.ErrNotFound)

	require.NoError(t, s.CreateOAuthState(ctx, &core.OAuthState{
		State: "s2", Provider: core.ProviderGoogle, ExpiresAt: now.Add(-time.Second),
	}))
	require.ErrorIs(t, s.ConsumeOAuthState(ctx, "s2", core.ProviderGoogle, now), core.ErrNotFound)
}

func TestConsumeOAuthState_ConcurrentExactlyOneWinner(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.CreateOAuthState(ctx, &core.OAuthState{
		State: "race", Provider: core.ProviderGoogle, ExpiresAt: now.Add(time.Minute),
	}))

	const workers = 32
	var wins int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			if err := s.ConsumeOAuthState(ctx, "race", core.ProviderGoogle, now); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
}

func TestRevokeSessionByID_ConcurrentExactlyOneWinner(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	sess := &core.Session{UserID: 1, RefreshTokenHash: "h1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, sess))

	const workers = 32
	var wins int64
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			won, err := s.RevokeSessionByID(ctx, sess.ID)
			if err == nil && won {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
}

func TestGetActiveSessionByHash_FiltersRevokedAndExpired(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	live := &core.Session{UserID: 1, RefreshTokenHash: "live", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, live))

	expired := &core.Session{UserID: 1, RefreshTokenHash: "expired", ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, s.CreateSession(ctx, expired))

	got, err := s.GetActiveSessionByHash(ctx, "live", now)
	require.NoError(t, err)
	require.Equal(t, live.ID, got.ID)

	_, err = s.GetActiveSessionByHash(ctx, "expired", now)
	require.ErrorIs(t, err, core.ErrNotFound)

	won, err := s.RevokeSessionByID(ctx, live.ID)
	require.NoError(t, err)
	require.True(t, won)
	_, err = s.GetActiveSessionByHash(ctx, "live", now)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func TestRevokeAllSessions_CountsOnlyActive(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	now := time.Now().UTC()

	for _, h := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateSession(ctx, &core.Session{
			UserID: 7, RefreshTokenHash: h, ExpiresAt: now.Add(time.Hour),
		}))
	}
	// Una ya revocada y una de otro usuario no cuentan.
	revoked := &core.Session{UserID: 7, RefreshTokenHash: "d", ExpiresAt: now.Add(time.Hour)}
	require.NoError(t, s.CreateSession(ctx, revoked))
	_, err := s.RevokeSessionByID(ctx, revoked.ID)
	require.NoError(t, err)
	require.NoError(t, s.CreateSession(ctx, &core.Session{
		UserID: 8, RefreshTokenHash: "e", ExpiresAt: now.Add(time.Hour),
	}))

	n, err := s.RevokeAllSessions(ctx, 7)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
}

func TestUsers_CreateGetUpdate(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	gid := "g-123"
	u := &core.User{Email: "a@x.com", GoogleID: &gid, IsActive: true, IsVerified: true}
	require.NoError(t, s.CreateUser(ctx, u))
	require.NotZero(t, u.ID)

	byEmail, err := s.GetUserByEmail(ctx, "A@X.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	byProv, err := s.GetUserByProviderID(ctx, core.ProviderGoogle, "g-123")
	require.NoError(t, err)
	require.Equal(t, u.ID, byProv.ID)

	_, err = s.GetUserByProviderID(ctx, core.ProviderApple, "g-123")
	require.ErrorIs(t, err, core.ErrNotFound)

	name := "Ana"
	byProv.Name = &name
	require.NoError(t, s.UpdateUser(ctx, byProv))
	again, err := s.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, again.Name)
	require.Equal(t, "Ana", *again.Name)

	// Email duplicado
	err = s.CreateUser(ctx, &core.User{Email: "a@x.com"})
	require.ErrorIs(t, err, core.ErrConflict)
}
