package middlewares

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/coldreach/coldreach/internal/store/core"
)

type ctxKey int

const (
	ctxKeyRequestID ctxKey = iota
	ctxKeyUser
)

func setRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, rid)
}

// GetRequestID retorna el request id inyectado por WithRequestID, o "".
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

// WithUser guarda el usuario autenticado en el contexto.
func WithUser(ctx context.Context, u *core.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

// GetUser retorna el usuario autenticado del contexto, o nil.
func GetUser(ctx context.Context) *core.User {
	if u, ok := ctx.Value(ctxKeyUser).(*core.User); ok {
		return u
	}
	return nil
}

// clientIP resuelve la IP del cliente respetando proxies intermedios.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ClientIP es la versión exportada para controllers que guardan metadata
// de sesión.
func ClientIP(r *http.Request) string { return clientIP(r) }
