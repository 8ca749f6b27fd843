package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/coldreach/coldreach/internal/observability/logger"
	tokens "github.com/coldreach/coldreach/internal/security/token"
	"github.com/coldreach/coldreach/internal/token"
)

// Refresh rota la sesión: verifica el refresh token, revoca la sesión vieja
// con un check-and-set y recién entonces emite el par nuevo.
//
// Los refresh tokens son de un solo uso. Si dos requests presentan el mismo
// token, el CAS de revocación decide un único ganador; el perdedor recibe
// Unauthorized, igual que un token que nunca existió.
func (s *Service) Refresh(ctx context.Context, refreshToken string, deviceInfo, ipAddress *string) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("Refresh"),
	)

	claims, err := s.deps.Codec.Verify(refreshToken, token.TypeRefresh)
	if err != nil {
		s.countRefresh("invalid_token")
		return nil, ErrUnauthorized
	}

	now := time.Now().UTC()
	sess, err := s.deps.Repo.GetActiveSessionByHash(ctx, tokens.SHA256Hex(refreshToken), now)
	if err != nil {
		// NotFound nunca se distingue hacia afuera.
		s.countRefresh("unknown_session")
		return nil, ErrUnauthorized
	}

	user, err := s.deps.Repo.GetUserByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		s.countRefresh("inactive_user")
		return nil, ErrUnauthorized
	}

	won, err := s.deps.Repo.RevokeSessionByID(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("revoke session: %w", err)
	}
	if !won {
		// Otro request rotó primero con el mismo token.
		log.Debug("lost rotation race", logger.SessionID(sess.ID))
		s.countRefresh("lost_race")
		return nil, ErrUnauthorized
	}

	pair, err := s.issueTokens(ctx, user, deviceInfo, ipAddress)
	if err != nil {
		s.countRefresh("issue_error")
		return nil, err
	}

	s.countRefresh("ok")
	log.Info("session rotated", logger.UserID(user.ID), logger.SessionID(sess.ID))
	return pair, nil
}

func (s *Service) countRefresh(outcome string) {
	if m := s.deps.Metrics; m != nil {
		m.Refreshes.WithLabelValues(outcome).Inc()
	}
}

// Logout revoca la sesión del refresh token. Nunca falla hacia afuera:
// tratar la sesión como inexistente es el resultado seguro para el usuario.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.deps.Repo.RevokeSessionByHash(ctx, tokens.SHA256Hex(refreshToken)); err != nil {
		logger.From(ctx).Warn("logout revoke failed",
			logger.Layer("service"),
			logger.Component("auth"),
			logger.Err(err),
		)
		return
	}
	if m := s.deps.Metrics; m != nil {
		m.SessionsRevoked.Inc()
	}
}

// LogoutAll revoca todas las sesiones activas del usuario ("log out
// everywhere") y retorna cuántas revocó.
func (s *Service) LogoutAll(ctx context.Context, userID int64) (int64, error) {
	n, err := s.deps.Repo.RevokeAllSessions(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke all sessions: %w", err)
	}
	if m := s.deps.Metrics; m != nil {
		m.SessionsRevoked.Add(float64(n))
	}
	logger.From(ctx).Info("all sessions revoked",
		logger.Layer("service"),
		logger.Component("auth"),
		logger.UserID(userID),
		logger.Count(n),
	)
	return n, nil
}
