// Package oauth define el contrato común de los identity providers externos.
//
// Dos familias: providers "identity-token" (Google: el perfil se pide a un
// endpoint userinfo con el access token) y providers "signed-assertion"
// (Apple: la app debe acuñar su propio client secret firmado y la identidad
// sale de verificar el id_token contra las JWKS publicadas, sin llamada de
// perfil).
package oauth

import (
	"context"
	"errors"
)

var (
	// ErrExchange: el provider rechazó el code o falló el transporte.
	ErrExchange = errors.New("provider code exchange failed")

	// ErrIdentity: firma/audience/issuer inválidos o key desconocida.
	ErrIdentity = errors.New("identity verification failed")
)

// TokenBundle es la respuesta del token endpoint del provider.
// IDToken solo viene en providers OIDC (Google lo manda, Apple lo requiere).
type TokenBundle struct {
	AccessToken  string `json:"access_token"`
	IDToken      string `json:"id_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type,omitempty"`
	ExpiresIn    int    `json:"expires_in,omitempty"`
	Scope        string `json:"scope,omitempty"`
}

// Identity es la identidad externa ya verificada.
type Identity struct {
	ExternalID string
	Email      string
	Name       string
	Picture    string
}

// Provider es la capability set común a todos los providers.
type Provider interface {
	// Name es el tag del provider ("google", "apple").
	Name() string

	// AuthorizationURL construye la URL de autorización con el state dado.
	// Es pura: no bloquea ni toca la red.
	AuthorizationURL(state string) string

	// Exchange canjea el authorization code por tokens del provider.
	Exchange(ctx context.Context, code string) (*TokenBundle, error)

	// Identity resuelve la identidad externa a partir del bundle.
	Identity(ctx context.Context, bundle *TokenBundle) (*Identity, error)
}
