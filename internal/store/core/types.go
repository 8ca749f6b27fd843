package core

import "time"

// Providers soportados.
const (
	ProviderGoogle = "google"
	ProviderApple  = "apple"
)

// User es la identidad local. Se crea en el primer login exitoso desde
// cualquier provider; logins posteriores solo completan campos vacíos
// (merge, nunca pisar datos editados por el usuario).
type User struct {
	ID         int64
	Email      string
	Name       *string
	Picture    *string
	GoogleID   *string
	AppleID    *string
	IsActive   bool
	IsVerified bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
	LastLogin  *time.Time
}

// Session representa un refresh token emitido: una fila por dispositivo/login.
// Solo se persiste el hash SHA-256 del token, nunca el valor crudo.
// Una sesión es activa (no revocada, no expirada) o terminal; terminal es
// one-way. Las filas no se borran en el flujo normal (quedan para auditoría).
type Session struct {
	ID               string
	UserID           int64
	RefreshTokenHash string
	DeviceInfo       *string
	IPAddress        *string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	LastUsed         time.Time
	IsRevoked        bool
}

// Active indica si la sesión sigue siendo utilizable en el instante now.
func (s *Session) Active(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// OAuthState es el state CSRF de un intento de login: un valor opaco de un
// solo uso que liga el redirect del provider al init que lo generó.
type OAuthState struct {
	ID         string
	State      string
	Provider   string
	RedirectTo *string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	IsUsed     bool
}
