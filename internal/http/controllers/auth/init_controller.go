package auth

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	svc "github.com/coldreach/coldreach/internal/auth"
	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	"github.com/coldreach/coldreach/internal/observability/logger"
)

// InitController handles GET /auth/{provider}/init
type InitController struct {
	service *svc.Service
}

// NewInitController creates a new controller for login initiation.
func NewInitController(service *svc.Service) *InitController {
	return &InitController{service: service}
}

// Init handles GET /auth/{provider}/init
func (c *InitController) Init(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("InitController.Init"))

	provider := chi.URLParam(r, "provider")

	start, err := c.service.InitLogin(ctx, provider)
	if err != nil {
		log.Debug("init login failed", logger.Err(err))
		if errors.Is(err, svc.ErrUnknownProvider) {
			httperrors.WriteError(w, httperrors.ErrUnknownProvider.WithDetail(provider))
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, dto.OAuthURLResponse{
		AuthorizationURL: start.AuthorizationURL,
		State:            start.State,
	})
}
