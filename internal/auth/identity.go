package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/observability/logger"
	"github.com/coldreach/coldreach/internal/store/core"
)

// getOrCreateUser mapea una identidad externa verificada a un usuario local.
//
// Orden de búsqueda: primero por external id del provider (estable aunque el
// email cambie del lado del provider), después por email. Si existe, solo se
// completan campos vacíos: un name o picture editado localmente nunca se pisa
// con datos del provider. Si no existe, se crea verificado de entrada: la
// autenticación exitosa contra el provider ya prueba la posesión del email.
func (s *Service) getOrCreateUser(ctx context.Context, providerName string, ident *oauth.Identity) (*core.User, error) {
	log := logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Op("getOrCreateUser"),
		logger.Provider(providerName),
	)

	user, err := s.deps.Repo.GetUserByProviderID(ctx, providerName, ident.ExternalID)
	if errors.Is(err, core.ErrNotFound) {
		user, err = s.deps.Repo.GetUserByEmail(ctx, ident.Email)
		if errors.Is(err, core.ErrNotFound) {
			return s.createUser(ctx, providerName, ident)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	// Merge: back-fill de provider id y de campos de perfil no seteados.
	changed := false
	switch providerName {
	case core.ProviderGoogle:
		if user.GoogleID == nil && ident.ExternalID != "" {
			id := ident.ExternalID
			user.GoogleID = &id
			changed = true
		}
	case core.ProviderApple:
		if user.AppleID == nil && ident.ExternalID != "" {
			id := ident.ExternalID
			user.AppleID = &id
			changed = true
		}
	}
	if user.Name == nil && ident.Name != "" {
		n := ident.Name
		user.Name = &n
		changed = true
	}
	if user.Picture == nil && ident.Picture != "" {
		p := ident.Picture
		user.Picture = &p
		changed = true
	}
	if !user.IsVerified {
		user.IsVerified = true
		changed = true
	}

	if changed {
		if err := s.deps.Repo.UpdateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("merge user: %w", err)
		}
		log.Debug("user merged", logger.UserID(user.ID))
	}
	return user, nil
}

func (s *Service) createUser(ctx context.Context, providerName string, ident *oauth.Identity) (*core.User, error) {
	u := &core.User{
		Email:      ident.Email,
		IsActive:   true,
		IsVerified: true,
	}
	if ident.Name != "" {
		n := ident.Name
		u.Name = &n
	}
	if ident.Picture != "" {
		p := ident.Picture
		u.Picture = &p
	}
	switch providerName {
	case core.ProviderGoogle:
		id := ident.ExternalID
		u.GoogleID = &id
	case core.ProviderApple:
		id := ident.ExternalID
		u.AppleID = &id
	}

	if err := s.deps.Repo.CreateUser(ctx, u); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	logger.From(ctx).Info("user created",
		logger.Layer("service"),
		logger.Component("auth"),
		logger.Provider(providerName),
		logger.UserID(u.ID),
	)
	return u, nil
}
