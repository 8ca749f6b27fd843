// Package auth orquesta el ciclo de vida completo de autenticación: login
// por provider externo, refresh con rotación, logout y resolución del
// usuario actual a partir de un access token.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coldreach/coldreach/internal/metrics"
	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/observability/logger"
	tokens "github.com/coldreach/coldreach/internal/security/token"
	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/coldreach/coldreach/internal/token"
)

// Errores del flujo de autenticación. El controller los mapea a la
// taxonomía HTTP; los mensajes hacia el cliente son uniformes y no
// distinguen la causa interna de un 401.
var (
	ErrUnknownProvider      = errors.New("unknown provider")
	ErrInvalidState         = errors.New("invalid or expired state")
	ErrProviderExchange     = errors.New("provider exchange failed")
	ErrIdentityVerification = errors.New("identity verification failed")
	ErrUnauthorized         = errors.New("unauthorized")
)

const stateBytes = 32

// Deps contiene las dependencias del servicio.
type Deps struct {
	Repo      core.Repository
	Codec     *token.Codec
	Providers map[string]oauth.Provider
	StateTTL  time.Duration
	Metrics   *metrics.Metrics // opcional
}

// Service es la fachada del subsistema de autenticación.
type Service struct {
	deps Deps
}

// New crea el servicio. Los providers se construyen una vez en el arranque
// y se inyectan acá: no hay estado global.
func New(deps Deps) *Service {
	if deps.StateTTL <= 0 {
		deps.StateTTL = 10 * time.Minute
	}
	return &Service{deps: deps}
}

// LoginStart es el resultado de InitLogin.
type LoginStart struct {
	AuthorizationURL string
	State            string
}

// TokenPair es el resultado de un login o refresh exitoso.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // segundos de vida del access token
	User         *core.User
}

func (s *Service) provider(name string) (oauth.Provider, error) {
	p, ok := s.deps.Providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}
	return p, nil
}

// InitLogin emite un state CSRF y construye la URL de autorización.
func (s *Service) InitLogin(ctx context.Context, providerName string) (*LoginStart, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("InitLogin"),
		logger.Provider(providerName),
	)

	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	state, err := tokens.GenerateOpaqueToken(stateBytes)
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}

	now := time.Now().UTC()
	if err := s.deps.Repo.CreateOAuthState(ctx, &core.OAuthState{
		State:     state,
		Provider:  providerName,
		CreatedAt: now,
		ExpiresAt: now.Add(s.deps.StateTTL),
	}); err != nil {
		return nil, fmt.Errorf("persist state: %w", err)
	}

	if m := s.deps.Metrics; m != nil {
		m.LoginsStarted.WithLabelValues(providerName).Inc()
	}
	log.Debug("login initiated")

	return &LoginStart{
		AuthorizationURL: p.AuthorizationURL(state),
		State:            state,
	}, nil
}

// CompleteLogin procesa el callback del provider.
//
// El state se consume ANTES de contactar al provider: si el exchange falla,
// el state ya quedó quemado y el cliente debe reiniciar con InitLogin. Eso
// también garantiza que ningún lock del store se sostiene durante las
// llamadas de red.
func (s *Service) CompleteLogin(ctx context.Context, providerName, code, state string, deviceInfo, ipAddress *string) (*TokenPair, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("CompleteLogin"),
		logger.Provider(providerName),
	)

	p, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.deps.Repo.ConsumeOAuthState(ctx, state, providerName, now); err != nil {
		log.Debug("state consume failed")
		s.countLogin(providerName, "invalid_state")
		return nil, ErrInvalidState
	}

	bundle, err := p.Exchange(ctx, code)
	if err != nil {
		log.Info("code exchange failed", logger.Err(err))
		s.countLogin(providerName, "exchange_error")
		return nil, fmt.Errorf("%w: %s", ErrProviderExchange, providerName)
	}

	ident, err := p.Identity(ctx, bundle)
	if err != nil {
		log.Info("identity resolution failed", logger.Err(err))
		s.countLogin(providerName, "identity_error")
		return nil, fmt.Errorf("%w: %s", ErrIdentityVerification, providerName)
	}

	user, err := s.getOrCreateUser(ctx, providerName, ident)
	if err != nil {
		s.countLogin(providerName, "store_error")
		return nil, err
	}

	pair, err := s.issueTokens(ctx, user, deviceInfo, ipAddress)
	if err != nil {
		s.countLogin(providerName, "issue_error")
		return nil, err
	}

	s.countLogin(providerName, "ok")
	log.Info("login completed", logger.UserID(user.ID))
	return pair, nil
}

func (s *Service) countLogin(provider, outcome string) {
	if m := s.deps.Metrics; m != nil {
		m.LoginsCompleted.WithLabelValues(provider, outcome).Inc()
	}
}

// issueTokens acuña el par access+refresh y crea la sesión del refresh.
func (s *Service) issueTokens(ctx context.Context, user *core.User, deviceInfo, ipAddress *string) (*TokenPair, error) {
	access, err := s.deps.Codec.MintAccess(user.ID, map[string]any{"email": user.Email})
	if err != nil {
		return nil, fmt.Errorf("mint access: %w", err)
	}
	refresh, err := s.deps.Codec.MintRefresh(user.ID)
	if err != nil {
		return nil, fmt.Errorf("mint refresh: %w", err)
	}

	now := time.Now().UTC()
	if err := s.deps.Repo.CreateSession(ctx, &core.Session{
		UserID:           user.ID,
		RefreshTokenHash: tokens.SHA256Hex(refresh),
		DeviceInfo:       deviceInfo,
		IPAddress:        ipAddress,
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.deps.Codec.RefreshTTL()),
		LastUsed:         now,
	}); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	if err := s.deps.Repo.TouchLastLogin(ctx, user.ID, now); err != nil {
		// Best effort: no rompe el login.
		logger.From(ctx).Warn("touch last login failed", logger.Err(err), logger.UserID(user.ID))
	} else {
		user.LastLogin = &now
	}

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.deps.Codec.AccessTTL().Seconds()),
		User:         user,
	}, nil
}
