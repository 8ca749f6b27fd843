package auth

import (
	"context"

	"github.com/coldreach/coldreach/internal/store/core"
	"github.com/coldreach/coldreach/internal/token"
)

// CurrentUser resuelve un access token al usuario activo que lo porta.
// Cualquier fallo (firma, expiración, tipo, usuario inexistente o
// deshabilitado) es ErrUnauthorized, sin distinguir la causa.
func (s *Service) CurrentUser(ctx context.Context, accessToken string) (*core.User, error) {
	claims, err := s.deps.Codec.Verify(accessToken, token.TypeAccess)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.deps.Repo.GetUserByID(ctx, claims.UserID)
	if err != nil || !user.IsActive {
		return nil, ErrUnauthorized
	}
	return user, nil
}

// OptionalUser es la variante para endpoints que funcionan autenticados o
// anónimos: retorna nil en vez de error.
func (s *Service) OptionalUser(ctx context.Context, accessToken string) *core.User {
	if accessToken == "" {
		return nil
	}
	user, err := s.CurrentUser(ctx, accessToken)
	if err != nil {
		return nil
	}
	return user
}
