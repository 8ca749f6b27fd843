// Package auth contiene los controllers del flujo de autenticación.
package auth

import (
	"encoding/json"
	"net/http"

	svc "github.com/coldreach/coldreach/internal/auth"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Controllers agrupa todos los controllers del dominio auth.
type Controllers struct {
	Init      *InitController
	Callback  *CallbackController
	Refresh   *RefreshController
	Me        *MeController
	Status    *StatusController
	Logout    *LogoutController
	LogoutAll *LogoutAllController
}

// NewControllers crea el agregador de controllers auth.
func NewControllers(s *svc.Service) *Controllers {
	return &Controllers{
		Init:      NewInitController(s),
		Callback:  NewCallbackController(s),
		Refresh:   NewRefreshController(s),
		Me:        NewMeController(),
		Status:    NewStatusController(),
		Logout:    NewLogoutController(s),
		LogoutAll: NewLogoutAllController(s),
	}
}

// writeJSON serializa la respuesta con los headers de no-cache que
// corresponden a payloads con tokens.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
