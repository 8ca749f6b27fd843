package auth

import (
	"net/http"

	svc "github.com/coldreach/coldreach/internal/auth"
	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	mw "github.com/coldreach/coldreach/internal/http/middlewares"
	"github.com/coldreach/coldreach/internal/observability/logger"
)

// LogoutAllController handles POST /auth/logout-all
type LogoutAllController struct {
	service *svc.Service
}

// NewLogoutAllController creates a new logout-all controller.
func NewLogoutAllController(service *svc.Service) *LogoutAllController {
	return &LogoutAllController{service: service}
}

// LogoutAll revokes every active session of the authenticated caller.
// Requires authentication via Bearer token (RequireAuth middleware).
func (c *LogoutAllController) LogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("LogoutAllController.LogoutAll"))

	user := mw.GetUser(ctx)
	if user == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	n, err := c.service.LogoutAll(ctx, user.ID)
	if err != nil {
		log.Error("logout all failed", logger.Err(err))
		httperrors.WriteError(w, httperrors.ErrInternalServerError)
		return
	}

	log.Debug("sessions revoked", logger.Count(n))
	writeJSON(w, http.StatusOK, dto.LogoutResponse{
		Message: "all sessions revoked",
		Success: true,
	})
}
