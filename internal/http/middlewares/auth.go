package middlewares

import (
	"net/http"
	"strings"

	"github.com/coldreach/coldreach/internal/auth"
	"github.com/coldreach/coldreach/internal/http/errors"
)

// bearerToken extrae el token del header Authorization, o "".
func bearerToken(r *http.Request) string {
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah == "" || !strings.HasPrefix(strings.ToLower(ah), "bearer ") {
		return ""
	}
	return strings.TrimSpace(ah[len("Bearer "):])
}

// RequireAuth valida Authorization: Bearer <access token> y guarda el usuario
// en el contexto. Si el token falta o es inválido, responde 401 sin
// distinguir la causa.
func RequireAuth(svc *auth.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				errors.WriteError(w, errors.ErrTokenMissing)
				return
			}

			user, err := svc.CurrentUser(r.Context(), raw)
			if err != nil {
				errors.WriteError(w, errors.ErrUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// OptionalAuth intenta resolver el usuario pero NO falla si el token falta o
// es inválido. Útil para endpoints con comportamiento distinto para usuarios
// autenticados.
func OptionalAuth(svc *auth.Service) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user := svc.OptionalUser(r.Context(), bearerToken(r)); user != nil {
				r = r.WithContext(WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}
