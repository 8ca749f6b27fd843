package auth

import (
	"net/http"

	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	mw "github.com/coldreach/coldreach/internal/http/middlewares"
)

// MeController handles GET /auth/me.
type MeController struct{}

// NewMeController creates a new me controller.
func NewMeController() *MeController {
	return &MeController{}
}

// Me returns the current user's public profile.
// Requires authentication via Bearer token (RequireAuth middleware).
func (c *MeController) Me(w http.ResponseWriter, r *http.Request) {
	user := mw.GetUser(r.Context())
	if user == nil {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewUserPublic(user))
}
