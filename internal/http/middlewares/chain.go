package middlewares

import "net/http"

// Middleware es un decorador de http.Handler. El router los monta con
// chi (r.Use / r.Group), que acepta esta misma firma.
type Middleware func(http.Handler) http.Handler
