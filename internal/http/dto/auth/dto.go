// Package auth contiene los DTOs del flujo de autenticación.
package auth

import "github.com/coldreach/coldreach/internal/store/core"

// OAuthURLResponse is the response for GET /auth/{provider}/login.
type OAuthURLResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	State            string `json:"state"`
}

// CallbackRequest represents the body for POST /auth/{provider}/callback.
type CallbackRequest struct {
	// Code is the authorization code returned by the provider.
	Code string `json:"code"`
	// State must match a state previously issued by the login endpoint.
	State string `json:"state"`
}

// RefreshRequest represents the body for POST /auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LogoutRequest represents the body for POST /auth/logout.
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// UserPublic is the client-facing shape of a user.
type UserPublic struct {
	ID      int64   `json:"id"`
	Email   string  `json:"email"`
	Name    *string `json:"name,omitempty"`
	Picture *string `json:"picture,omitempty"`
}

// NewUserPublic proyecta un core.User a su forma pública.
func NewUserPublic(u *core.User) *UserPublic {
	if u == nil {
		return nil
	}
	return &UserPublic{
		ID:      u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Picture: u.Picture,
	}
}

// TokenResponse is the response for a successful login or refresh.
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	User         *UserPublic `json:"user,omitempty"`
}

// StatusResponse is the response for GET /auth/status.
type StatusResponse struct {
	IsAuthenticated bool        `json:"is_authenticated"`
	User            *UserPublic `json:"user,omitempty"`
}

// LogoutResponse is the response for POST /auth/logout and /auth/logout-all.
type LogoutResponse struct {
	Message string `json:"message"`
	Success bool   `json:"success"`
}
