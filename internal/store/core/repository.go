package core

import (
	"context"
	"time"
)

// Repository es el contrato de persistencia del subsistema de autenticación.
//
// Toda mutación que sostiene un invariante compartido (consumo de state,
// revocación/rotación de sesión) debe ser un check-and-set atómico contra el
// backend: dos requests compitiendo por el mismo state o el mismo refresh
// token producen exactamente un ganador.
type Repository interface {
	Ping(ctx context.Context) error
	Close()

	// ------- OAuth states (CSRF) -------

	// CreateOAuthState persiste un state recién emitido.
	CreateOAuthState(ctx context.Context, st *OAuthState) error

	// ConsumeOAuthState marca el state como usado si y solo si coincide
	// value+provider, no fue usado y no expiró. Retorna ErrNotFound si esta
	// llamada no ganó el consumo (inexistente, expirado o ya usado).
	ConsumeOAuthState(ctx context.Context, state, provider string, now time.Time) error

	// ------- Sessions (refresh tokens) -------

	// CreateSession inserta una sesión activa.
	CreateSession(ctx context.Context, s *Session) error

	// GetActiveSessionByHash busca por hash filtrando revocadas y expiradas.
	GetActiveSessionByHash(ctx context.Context, tokenHash string, now time.Time) (*Session, error)

	// RevokeSessionByID revoca una sesión si aún no estaba revocada.
	// Retorna true solo si ESTA llamada la revocó: es el CAS que decide el
	// ganador de una rotación concurrente.
	RevokeSessionByID(ctx context.Context, id string) (bool, error)

	// RevokeSessionByHash revoca por hash. Idempotente: hash desconocido o
	// sesión ya revocada no es error.
	RevokeSessionByHash(ctx context.Context, tokenHash string) error

	// RevokeAllSessions revoca todas las sesiones activas del usuario y
	// retorna cuántas revocó.
	RevokeAllSessions(ctx context.Context, userID int64) (int64, error)

	// ------- Users -------

	GetUserByID(ctx context.Context, id int64) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// GetUserByProviderID busca por external id del provider ("google"/"apple").
	GetUserByProviderID(ctx context.Context, provider, externalID string) (*User, error)

	// CreateUser inserta y completa u.ID y timestamps.
	CreateUser(ctx context.Context, u *User) error

	// UpdateUser persiste name/picture/provider ids/flags del usuario.
	UpdateUser(ctx context.Context, u *User) error

	// TouchLastLogin actualiza last_login a now.
	TouchLastLogin(ctx context.Context, userID int64, now time.Time) error
}
