// Package pg implementa core.Repository sobre PostgreSQL (pgxpool).
//
// Los invariantes de concurrencia (state de un solo uso, rotación de refresh
// de un solo uso) se expresan como UPDATEs condicionales: el WHERE excluye
// filas ya consumidas/revocadas, así que de N requests concurrentes solo uno
// observa RowsAffected() == 1.
package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coldreach/coldreach/internal/observability/logger"
	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct{ pool *pgxpool.Pool }

// Config tuning opcional del pool.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// New abre el pool. No falla si la DB está caída al arrancar: el ping
// inicial solo loguea, igual que en producción conviene arrancar degradado.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.Named("store.pg")
	if err := pool.Ping(ctx); err != nil {
		log.Warn("startup ping failed", logger.Err(err))
	} else {
		log.Info("pool ready")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// ====================== OAUTH STATES ======================

func (s *Store) CreateOAuthState(ctx context.Context, st *core.OAuthState) error {
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	const q = `
INSERT INTO oauth_state (id, state, provider, redirect_to, created_at, expires_at, is_used)
VALUES ($1, $2, $3, $4, now(), $5, false)`
	_, err := s.pool.Exec(ctx, q, st.ID, st.State, st.Provider, st.RedirectTo, st.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pg: create oauth state: %w", err)
	}
	return nil
}

func (s *Store) ConsumeOAuthState(ctx context.Context, state, provider string, now time.Time) error {
	// Un solo UPDATE condicional: exactamente un ganador bajo carreras.
	const q = `
UPDATE oauth_state
SET is_used = true
WHERE state = $1 AND provider = $2 AND is_used = false AND expires_at > $3`
	tag, err := s.pool.Exec(ctx, q, state, provider, now)
	if err != nil {
		return fmt.Errorf("pg: consume oauth state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ====================== SESSIONS ======================

func (s *Store) CreateSession(ctx context.Context, sess *core.Session) error {
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	const q = `
INSERT INTO user_session (id, user_id, refresh_token_hash, device_info, ip_address, created_at, expires_at, last_used, is_revoked)
VALUES ($1, $2, $3, $4, $5, now(), $6, now(), false)`
	_, err := s.pool.Exec(ctx, q, sess.ID, sess.UserID, sess.RefreshTokenHash, sess.DeviceInfo, sess.IPAddress, sess.ExpiresAt)
	if err != nil {
		return fmt.Errorf("pg: create session: %w", err)
	}
	return nil
}

func (s *Store) GetActiveSessionByHash(ctx context.Context, tokenHash string, now time.Time) (*core.Session, error) {
	const q = `
SELECT id, user_id, refresh_token_hash, device_info, ip_address, created_at, expires_at, last_used, is_revoked
FROM user_session
WHERE refresh_token_hash = $1 AND is_revoked = false AND expires_at > $2
LIMIT 1`
	row := s.pool.QueryRow(ctx, q, tokenHash, now)

	var sess core.Session
	if err := row.Scan(&sess.ID, &sess.UserID, &sess.RefreshTokenHash, &sess.DeviceInfo, &sess.IPAddress,
		&sess.CreatedAt, &sess.ExpiresAt, &sess.LastUsed, &sess.IsRevoked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("pg: get session by hash: %w", err)
	}
	return &sess, nil
}

func (s *Store) RevokeSessionByID(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE user_session SET is_revoked = true WHERE id = $1 AND is_revoked = false`
	tag, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return false, fmt.Errorf("pg: revoke session: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) RevokeSessionByHash(ctx context.Context, tokenHash string) error {
	const q = `UPDATE user_session SET is_revoked = true WHERE refresh_token_hash = $1 AND is_revoked = false`
	_, err := s.pool.Exec(ctx, q, tokenHash)
	if err != nil {
		return fmt.Errorf("pg: revoke session by hash: %w", err)
	}
	return nil
}

func (s *Store) RevokeAllSessions(ctx context.Context, userID int64) (int64, error) {
	const q = `
UPDATE user_session
SET is_revoked = true
WHERE user_id = $1 AND is_revoked = false AND expires_at > now()`
	tag, err := s.pool.Exec(ctx, q, userID)
	if err != nil {
		return 0, fmt.Errorf("pg: revoke all sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ====================== USERS ======================

const userColumns = `id, email, name, picture, google_id, apple_id, is_active, is_verified, created_at, updated_at, last_login`

func scanUser(row pgx.Row) (*core.User, error) {
	var u core.User
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.Picture, &u.GoogleID, &u.AppleID,
		&u.IsActive, &u.IsVerified, &u.CreatedAt, &u.UpdatedAt, &u.LastLogin); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("pg: scan user: %w", err)
	}
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM app_user WHERE id = $1 LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*core.User, error) {
	q := `SELECT ` + userColumns + ` FROM app_user WHERE email = $1 LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, email))
}

func (s *Store) GetUserByProviderID(ctx context.Context, provider, externalID string) (*core.User, error) {
	var col string
	switch provider {
	case core.ProviderGoogle:
		col = "google_id"
	case core.ProviderApple:
		col = "apple_id"
	default:
		return nil, core.ErrNotFound
	}
	q := `SELECT ` + userColumns + ` FROM app_user WHERE ` + col + ` = $1 LIMIT 1`
	return scanUser(s.pool.QueryRow(ctx, q, externalID))
}

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	const q = `
INSERT INTO app_user (email, name, picture, google_id, apple_id, is_active, is_verified, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
RETURNING id, created_at, updated_at`
	if err := s.pool.QueryRow(ctx, q, u.Email, u.Name, u.Picture, u.GoogleID, u.AppleID, u.IsActive, u.IsVerified).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return fmt.Errorf("pg: create user: %w", err)
	}
	return nil
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	const q = `
UPDATE app_user
SET name = $2, picture = $3, google_id = $4, apple_id = $5, is_active = $6, is_verified = $7, updated_at = now()
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, u.ID, u.Name, u.Picture, u.GoogleID, u.AppleID, u.IsActive, u.IsVerified)
	if err != nil {
		return fmt.Errorf("pg: update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) TouchLastLogin(ctx context.Context, userID int64, now time.Time) error {
	const q = `UPDATE app_user SET last_login = $2, updated_at = now() WHERE id = $1`
	_, err := s.pool.Exec(ctx, q, userID, now)
	if err != nil {
		return fmt.Errorf("pg: touch last login: %w", err)
	}
	return nil
}
