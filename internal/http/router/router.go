// Package router arma el árbol de rutas HTTP de la aplicación.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coldreach/coldreach/internal/auth"
	authctrl "github.com/coldreach/coldreach/internal/http/controllers/auth"
	httperrors "github.com/coldreach/coldreach/internal/http/errors"
	mw "github.com/coldreach/coldreach/internal/http/middlewares"
	"github.com/coldreach/coldreach/internal/metrics"
	"github.com/coldreach/coldreach/internal/store/core"
)

// Deps contiene las dependencias del router.
type Deps struct {
	Auth    *auth.Service
	Repo    core.Repository
	Metrics *metrics.Metrics // opcional
}

// New construye el handler raíz con middlewares globales y todas las rutas.
func New(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.WithRequestID())
	r.Use(mw.WithLogging())

	ctrls := authctrl.NewControllers(deps.Auth)

	r.Route("/auth", func(r chi.Router) {
		r.Get("/{provider}/init", ctrls.Init.Init)
		r.Post("/{provider}/callback", ctrls.Callback.Callback)
		r.Post("/refresh", ctrls.Refresh.Refresh)
		r.Post("/logout", ctrls.Logout.Logout)

		r.Group(func(r chi.Router) {
			r.Use(mw.RequireAuth(deps.Auth))
			r.Get("/me", ctrls.Me.Me)
			r.Post("/logout-all", ctrls.LogoutAll.LogoutAll)
		})

		r.Group(func(r chi.Router) {
			r.Use(mw.OptionalAuth(deps.Auth))
			r.Get("/status", ctrls.Status.Status)
		})
	})

	r.Get("/healthz", healthz)
	r.Get("/readyz", readyz(deps.Repo))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httperrors.WriteError(w, httperrors.ErrMethodNotAllowed)
	})

	return r
}

// healthz responde si el proceso está vivo.
func healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// readyz responde si el store contesta el ping.
func readyz(repo core.Repository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := repo.Ping(r.Context()); err != nil {
			httperrors.WriteError(w, httperrors.ErrServiceUnavailable.WithCause(err))
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	}
}
