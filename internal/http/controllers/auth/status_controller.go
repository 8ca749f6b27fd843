package auth

import (
	"net/http"

	dto "github.com/coldreach/coldreach/internal/http/dto/auth"
	mw "github.com/coldreach/coldreach/internal/http/middlewares"
)

// StatusController handles GET /auth/status.
type StatusController struct{}

// NewStatusController creates a new status controller.
func NewStatusController() *StatusController {
	return &StatusController{}
}

// Status reports whether the request carries a valid access token.
// Works with or without authentication (OptionalAuth middleware).
func (c *StatusController) Status(w http.ResponseWriter, r *http.Request) {
	user := mw.GetUser(r.Context())

	resp := dto.StatusResponse{IsAuthenticated: user != nil}
	if user != nil {
		resp.User = dto.NewUserPublic(user)
	}

	writeJSON(w, http.StatusOK, resp)
}
