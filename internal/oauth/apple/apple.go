// Package apple implements the Sign in with Apple signed-assertion provider.
//
// Apple no expone un endpoint de perfil: la identidad sale de verificar el
// id_token del exchange contra las JWKS públicas de Apple. Además, el
// client_secret del exchange no es un secreto estático sino un JWT ES256
// que esta aplicación acuña con su propia key (team id + key id).
package apple

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coldreach/coldreach/internal/cache"
	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/store/core"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

const (
	defaultAuthURL  = "https://appleid.apple.com/auth/authorize"
	defaultTokenURL = "https://appleid.apple.com/auth/token"
	defaultKeysURL  = "https://appleid.apple.com/auth/keys"
	defaultIssuer   = "https://appleid.apple.com"

	// Apple permite client secrets de hasta 6 meses.
	assertionTTL = 180 * 24 * time.Hour

	jwksCacheKey = "apple:jwks"
	jwksCacheTTL = time.Hour
)

// Provider es el cliente de Sign in with Apple.
type Provider struct {
	ClientID    string
	TeamID      string
	KeyID       string
	RedirectURI string

	// Endpoints overridable en tests.
	AuthURL  string
	TokenURL string
	KeysURL  string
	Issuer   string

	privateKey *ecdsa.PrivateKey
	http       *http.Client
	jwks       cache.Client
	group      singleflight.Group
}

// New parsea la private key (PEM, formato EC o PKCS#8) y arma el provider.
// jwksCache amortigua el fetch de las keys públicas de Apple.
func New(clientID, teamID, keyID, privateKeyPEM, redirectURI string, jwksCache cache.Client) (*Provider, error) {
	key, err := jwtv5.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("apple: parse private key: %w", err)
	}
	if jwksCache == nil {
		jwksCache = cache.NewMemory(jwksCacheTTL)
	}
	return &Provider{
		ClientID:    clientID,
		TeamID:      teamID,
		KeyID:       keyID,
		RedirectURI: redirectURI,
		AuthURL:     defaultAuthURL,
		TokenURL:    defaultTokenURL,
		KeysURL:     defaultKeysURL,
		Issuer:      defaultIssuer,
		privateKey:  key,
		http:        &http.Client{Timeout: 10 * time.Second},
		jwks:        jwksCache,
	}, nil
}

func (p *Provider) Name() string { return core.ProviderApple }

func (p *Provider) AuthorizationURL(state string) string {
	u, _ := url.Parse(p.AuthURL)
	q := u.Query()
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("response_type", "code")
	q.Set("scope", "name email")
	q.Set("state", state)
	// Apple exige form_post cuando se piden scopes.
	q.Set("response_mode", "form_post")
	u.RawQuery = q.Encode()
	return u.String()
}

// clientAssertion acuña el client secret: un JWT ES256 que afirma la
// identidad de esta app ante Apple (iss = team id, sub = client id).
func (p *Provider) clientAssertion() (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{
		"iss": p.TeamID,
		"sub": p.ClientID,
		"aud": defaultIssuer,
		"iat": now.Unix(),
		"exp": now.Add(assertionTTL).Unix(),
	}
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodES256, claims)
	tk.Header["kid"] = p.KeyID
	signed, err := tk.SignedString(p.privateKey)
	if err != nil {
		return "", fmt.Errorf("apple: sign client assertion: %w", err)
	}
	return signed, nil
}

func (p *Provider) Exchange(ctx context.Context, code string) (*oauth.TokenBundle, error) {
	secret, err := p.clientAssertion()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", oauth.ErrExchange, err)
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("client_id", p.ClientID)
	form.Set("client_secret", secret)
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
			Error string `json:"error"`
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

// Identity verifica el id_token del bundle: kid → key de JWKS, firma RS256,
// audience (client id) e issuer fijos. No hay llamada de perfil. El claim
// name solo viene en el primer consentimiento del usuario.
func (p *Provider) Identity(ctx context.Context, bundle *oauth.TokenBundle) (*oauth.Identity, error) {
	if bundle == nil || bundle.IDToken == "" {
		return nil, fmt.Errorf("%w: missing id_token", oauth.ErrIdentity)
	}

	parts := strings.Split(bundle.IDToken, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: bad jwt format", oauth.ErrIdentity)
	}
	hb, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("%w: bad header", oauth.ErrIdentity)
	}
	var header struct {
		Alg string `json:"alg"`
		Kid string `json:"kid"`
	}
	if err := json.Unmarshal(hb, &header); err != nil {
		return nil, fmt.Errorf("%w: bad header", oauth.ErrIdentity)
	}
	if header.Alg != "RS256" {
		return nil, fmt.Errorf("%w: unexpected alg %s", oauth.ErrIdentity, header.Alg)
	}

	key, err := p.rsaKeyForKid(ctx, header.Kid)
	if err != nil {
		return nil, err
	}

	tok, err := jwtv5.Parse(bundle.IDToken,
		func(t *jwtv5.Token) (any, error) { return key, nil },
		jwtv5.WithValidMethods([]string{"RS256"}),
		jwtv5.WithAudience(p.ClientID),
		jwtv5.WithIssuer(p.Issuer),
	)
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: invalid id_token", oauth.ErrIdentity)
	}

	claims, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: claims type", oauth.ErrIdentity)
	}

	sub, _ := claims["sub"].(string)
	email, _ := claims["email"].(string)
	if sub == "" || email == "" {
		return nil, fmt.Errorf("%w: incomplete identity", oauth.ErrIdentity)
	}
	name, _ := claims["name"].(string)

	return &oauth.Identity{ExternalID: sub, Email: email, Name: name}, nil
}
