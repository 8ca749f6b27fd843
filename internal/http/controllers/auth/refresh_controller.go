package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	svc "github.com/coldreach/coldreach/internal/auth"
	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	"github.com/coldreach/coldreach/internal/observability/logger"
)

const maxRefreshBodySize = 8 * 1024 // 8KB

// RefreshController handles POST /auth/refresh
type RefreshController struct {
	service *svc.Service
}

// NewRefreshController creates a new controller for refresh.
func NewRefreshController(service *svc.Service) *RefreshController {
	return &RefreshController{service: service}
}

// Refresh handles POST /auth/refresh
func (c *RefreshController) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("RefreshController.Refresh"))

	r.Body = http.MaxBytesReader(w, r.Body, maxRefreshBodySize)
	defer r.Body.Close()

	var req dto.RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}
	if req.RefreshToken == "" {
		httperrors.WriteError(w, httperrors.ErrMissingFields.WithDetail("refresh_token is required"))
		return
	}

	device, ip := sessionMetadata(r)
	pair, err := c.service.Refresh(ctx, req.RefreshToken, device, ip)
	if err != nil {
		log.Debug("refresh failed", logger.Err(err))
		if errors.Is(err, svc.ErrUnauthorized) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized)
			return
		}
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse(pair))
}
