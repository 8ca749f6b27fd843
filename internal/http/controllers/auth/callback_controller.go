package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	svc "github.com/coldreach/coldreach/internal/auth"
	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	mw "github.com/coldreach/coldreach/internal/http/middlewares"
	"github.com/coldreach/coldreach/internal/observability/logger"
)

const maxCallbackBodySize = 8 * 1024 // 8KB

// CallbackController handles POST /auth/{provider}/callback
type CallbackController struct {
	service *svc.Service
}

// NewCallbackController creates a new controller for the OAuth callback.
func NewCallbackController(service *svc.Service) *CallbackController {
	return &CallbackController{service: service}
}

// Callback handles POST /auth/{provider}/callback
func (c *CallbackController) Callback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("CallbackController.Callback"))

	provider := chi.URLParam(r, "provider")

	r.Body = http.MaxBytesReader(w, r.Body, maxCallbackBodySize)
	defer r.Body.Close()

	var req dto.CallbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if req.Code == "" || req.State == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("code and state are required"))
		return
	}

	device, ip := sessionMetadata(r)
	pair, err := c.service.CompleteLogin(ctx, provider, req.Code, req.State, device, ip)
	if err != nil {
		log.Debug("callback failed", logger.Provider(provider), logger.Err(err))
		writeCallbackError(w, provider, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse(pair))
}

func writeCallbackError(w http.ResponseWriter, provider string, err error) {
	switch {
	case errors.Is(err, svc.ErrUnknownProvider):
		httperrors.WriteError(w, httperrors.ErrUnknownProvider.WithDetail(provider))

	case errors.Is(err, svc.ErrInvalidState):
		httperrors.WriteError(w, httperrors.ErrInvalidState)

	case errors.Is(err, svc.ErrProviderExchange):
		httperrors.WriteError(w, httperrors.ErrProviderExchange.WithDetail(provider))

	case errors.Is(err, svc.ErrIdentityVerification):
		httperrors.WriteError(w, httperrors.ErrIdentityVerification.WithDetail(provider))

	default:
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
	}
}

// sessionMetadata captura user agent e IP del cliente para la sesión.
func sessionMetadata(r *http.Request) (device, ip *string) {
	if ua := r.UserAgent(); ua != "" {
		device = &ua
	}
	if addr := mw.ClientIP(r); addr != "" {
		ip = &addr
	}
	return device, ip
}

func tokenResponse(pair *svc.TokenPair) dto.TokenResponse {
	return dto.TokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "bearer",
		ExpiresIn:    pair.ExpiresIn,
		User:         dto.NewUserPublic(pair.User),
	}
}
