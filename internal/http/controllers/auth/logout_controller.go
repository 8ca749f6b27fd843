package auth

import (
	"encoding/json"
	"net/http"

	svc "github.com/coldreach/coldreach/internal/auth"
	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
)

const maxLogoutBodySize = 8 * 1024 // 8KB

// LogoutController handles POST /auth/logout
type LogoutController struct {
	service *svc.Service
}

// NewLogoutController creates a new logout controller.
func NewLogoutController(service *svc.Service) *LogoutController {
	return &LogoutController{service: service}
}

// Logout revokes the session bound to the refresh token in the body.
// Always reports success: a token that no longer maps to a session is
// already logged out.
func (c *LogoutController) Logout(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxLogoutBodySize)
	defer r.Body.Close()

	var req dto.LogoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.WriteError(w, httperrors.ErrInvalidJSON)
		return
	}

	c.service.Logout(r.Context(), req.RefreshToken)

	writeJSON(w, http.StatusOK, dto.LogoutResponse{
		Message: "logged out",
		Success: true,
	})
}
