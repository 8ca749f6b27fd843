// Package google implements the Google OAuth2 identity-token provider.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/store/core"
)

const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserInfoURL = "https://www.googleapis.com/oauth2/v3/userinfo"
)

// Provider es el cliente OAuth2 de Google. La identidad se resuelve con una
// llamada al endpoint userinfo usando el access token del exchange.
type Provider struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Endpoints overridable en tests.
	AuthURL     string
	TokenURL    string
	UserInfoURL string

	http *http.Client
}

func New(clientID, clientSecret, redirectURI string) *Provider {
	return &Provider{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		Scopes:       []string{"openid", "email", "profile"},
		AuthURL:      defaultAuthURL,
		TokenURL:     defaultTokenURL,
		UserInfoURL:  defaultUserInfoURL,
		http:         &http.Client{Timeout: 10 * time.Second},
	}
}

func (p *Provider) Name() string { return core.ProviderGoogle }

func (p *Provider) AuthorizationURL(state string) string {
	u, _ := url.Parse(p.AuthURL)
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", strings.Join(p.Scopes, " "))
	q.Set("state", state)
	// Offline + consent para recibir refresh token del lado de Google.
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	u.RawQuery = q.Encode()
	return u.String()
}

func (p *Provider) Exchange(ctx context.Context, code string) (*oauth.TokenBundle, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", p.ClientSecret)
	form.Set("redirect_uri", p.RedirectURI)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var body struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, fmt.Errorf("%w: token http %d: %s", oauth.ErrExchange, resp.StatusCode, body.Error)
	}

	var bundle oauth.TokenBundle
	if err := json.NewDecoder(resp.Body).Decode(&bundle); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", oauth.ErrExchange, err)
	}
	return &bundle, nil
}

// Identity llama al endpoint userinfo con el access token.
func (p *Provider) Identity(ctx context.Context, bundle *oauth.TokenBundle) (*oauth.Identity, error) {
	if bundle == nil || bundle.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", oauth.ErrIdentity)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrIdentity, err)
	}
	req.Header.Set("Authorization", "Bearer "+bundle.AccessToken)

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrIdentity, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: userinfo http %d", oauth.ErrIdentity, resp.StatusCode)
	}

	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", oauth.ErrIdentity, err)
	}
	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("%w: incomplete profile", oauth.ErrIdentity)
	}

	return &oauth.Identity{
		ExternalID: info.Sub,
		Email:      info.Email,
		Name:       info.Name,
		Picture:    info.Picture,
	}, nil
}
