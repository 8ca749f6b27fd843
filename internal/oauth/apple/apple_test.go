package apple_test

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coldreach/coldreach/internal/cache"
	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/oauth/apple"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigningKeyPEM(t *testing.T) (string, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return string(block), key
}

func newProvider(t *testing.T) (*apple.Provider, *ecdsa.PrivateKey) {
	t.Helper()
	pemKey, key := testSigningKeyPEM(t)
	p, err := apple.New("com.coldreach.app", "TEAM123", "KEY456", pemKey, "https://app.example.com/cb", cache.NewMemory(time.Minute))
	require.NoError(t, err)
	return p, key
}

func TestNew_RejectsBadKey(t *testing.T) {
	_, err := apple.New("cid", "team", "kid", "not a pem", "https://cb", nil)
	require.Error(t, err)
}

func TestAuthorizationURL(t *testing.T) {
	p, _ := newProvider(t)

	u, err := url.Parse(p.AuthorizationURL("st-1"))
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "com.coldreach.app", q.Get("client_id"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "name email", q.Get("scope"))
	assert.Equal(t, "st-1", q.Get("state"))
	assert.Equal(t, "form_post", q.Get("response_mode"))
}

func TestExchange_SendsValidClientAssertion(t *testing.T) {
	p, signKey := newProvider(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.FormValue("grant_type"))
		assert.Equal(t, "com.coldreach.app", r.FormValue("client_id"))

		// El client_secret debe ser un JWT ES256 verificable con nuestra key.
		secret := r.FormValue("client_secret")
		tok, err := jwtv5.Parse(secret,
			func(t *jwtv5.Token) (any, error) { return &signKey.PublicKey, nil },
			jwtv5.WithValidMethods([]string{"ES256"}),
		)
		require.NoError(t, err)
		require.True(t, tok.Valid)
		claims := tok.Claims.(jwtv5.MapClaims)
		assert.Equal(t, "TEAM123", claims["iss"])
		assert.Equal(t, "com.coldreach.app", claims["sub"])
		assert.Equal(t, "https://appleid.apple.com", claims["aud"])
		assert.Equal(t, "KEY456", tok.Header["kid"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-a",
			"id_token":     "idt-a",
		})
	}))
	defer srv.Close()

	p.TokenURL = srv.URL
	bundle, err := p.Exchange(context.Background(), "code-1")
	require.NoError(t, err)
	assert.Equal(t, "idt-a", bundle.IDToken)
}

func TestExchange_Non2xx(t *testing.T) {
	p, _ := newProvider(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "invalid_client"})
	}))
	defer srv.Close()

	p.TokenURL = srv.URL
	_, err := p.Exchange(context.Background(), "code-1")
	require.ErrorIs(t, err, oauth.ErrExchange)
}

// jwksServer publica una JWKS con la public key RSA dada y cuenta los hits.
func jwksServer(t *testing.T, kid string, pub *rsa.PublicKey, hits *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(hits, 1)
		eb := []byte{1, 0, 1} // 65537
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"alg": "RS256",
				"kid": kid,
				"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(eb),
			}},
		})
	}))
}

func mintIDToken(t *testing.T, key *rsa.PrivateKey, kid string, claims jwtv5.MapClaims) string {
	t.Helper()
	tok := jwtv5.NewWithClaims(jwtv5.SigningMethodRS256, claims)
	tok.Header["kid"] = kid
	signed, err := tok.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestIdentity_VerifiesIDToken(t *testing.T) {
	p, _ := newProvider(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int64
	srv := jwksServer(t, "apple-kid-1", &rsaKey.PublicKey, &hits)
	defer srv.Close()
	p.KeysURL = srv.URL

	idToken := mintIDToken(t, rsaKey, "apple-kid-1", jwtv5.MapClaims{
		"iss":   "https://appleid.apple.com",
		"aud":   "com.coldreach.app",
		"sub":   "apple-007",
		"email": "b@x.com",
		"name":  "Bea",
		"exp":   time.Now().Add(time.Hour).Unix(),
		"iat":   time.Now().Unix(),
	})

	ident, err := p.Identity(context.Background(), &oauth.TokenBundle{IDToken: idToken})
	require.NoError(t, err)
	assert.Equal(t, "apple-007", ident.ExternalID)
	assert.Equal(t, "b@x.com", ident.Email)
	assert.Equal(t, "Bea", ident.Name)

	// Segunda verificación: JWKS sale del cache, no de la red.
	_, err = p.Identity(context.Background(), &oauth.TokenBundle{IDToken: idToken})
	require.NoError(t, err)
	assert.Equal(t, int64(1), atomic.LoadInt64(&hits))
}

func TestIdentity_RejectsWrongAudience(t *testing.T) {
	p, _ := newProvider(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int64
	srv := jwksServer(t, "kid-a", &rsaKey.PublicKey, &hits)
	defer srv.Close()
	p.KeysURL = srv.URL

	idToken := mintIDToken(t, rsaKey, "kid-a", jwtv5.MapClaims{
		"iss":   "https://appleid.apple.com",
		"aud":   "some.other.app",
		"sub":   "apple-007",
		"email": "b@x.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	_, err = p.Identity(context.Background(), &oauth.TokenBundle{IDToken: idToken})
	require.ErrorIs(t, err, oauth.ErrIdentity)
}

func TestIdentity_RejectsUnknownKid(t *testing.T) {
	p, _ := newProvider(t)

	rsaKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	var hits int64
	srv := jwksServer(t, "published-kid", &rsaKey.PublicKey, &hits)
	defer srv.Close()
	p.KeysURL = srv.URL

	idToken := mintIDToken(t, rsaKey, "unknown-kid", jwtv5.MapClaims{
		"iss":   "https://appleid.apple.com",
		"aud":   "com.coldreach.app",
		"sub":   "apple-007",
		"email": "b@x.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	_, err = p.Identity(context.Background(), &oauth.TokenBundle{IDToken: idToken})
	require.ErrorIs(t, err, oauth.ErrIdentity)
}

func TestIdentity_MissingIDToken(t *testing.T) {
	p, _ := newProvider(t)
	_, err := p.Identity(context.Background(), &oauth.TokenBundle{AccessToken: "x"})
	require.ErrorIs(t, err, oauth.ErrIdentity)
}
