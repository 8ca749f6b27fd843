package apple

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/coldreach/coldreach/internal/cache"
	"github.com/coldreach/coldreach/internal/oauth"
	"github.com/coldreach/coldreach/internal/observability/logger"
)

type jwk struct {
	Kty string `json:"kty"`
	Alg string `json:"alg"`
	Kid string `json:"kid"`
	N   string `json:"n"` // base64url
	E   string `json:"e"` // base64url
}

type jwks struct {
	Keys []jwk `json:"keys"`
}

// rsaKeyForKid resuelve la public key publicada por Apple para el kid dado.
// El documento JWKS pasa por el cache compartido; singleflight colapsa
// fetches concurrentes cuando el cache está frío.
func (p *Provider) rsaKeyForKid(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	doc, err := p.jwksDocument(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: jwks fetch: %v", oauth.ErrIdentity, err)
	}
	for _, k := range doc.Keys {
		if k.Kid == kid && strings.EqualFold(k.Kty, "RSA") {
			return rsaFromJWK(k)
		}
	}
	return nil, fmt.Errorf("%w: no matching key for kid", oauth.ErrIdentity)
}

func (p *Provider) jwksDocument(ctx context.Context) (*jwks, error) {
	if raw, err := p.jwks.Get(ctx, jwksCacheKey); err == nil {
		var doc jwks
		if json.Unmarshal([]byte(raw), &doc) == nil {
			return &doc, nil
		}
		// Cache corrupto: seguir al fetch.
	}

	v, err, _ := p.group.Do(jwksCacheKey, func() (any, error) {
		return p.fetchJWKS(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*jwks), nil
}

func (p *Provider) fetchJWKS(ctx context.Context) (*jwks, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.KeysURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("jwks http %d", resp.StatusCode)
	}

	var doc jwks
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(&doc); err == nil {
		if err := p.jwks.Set(ctx, jwksCacheKey, string(raw), jwksCacheTTL); err != nil && err != cache.ErrNotFound {
			logger.Named("oauth.apple").Warn("jwks cache set failed", logger.Err(err))
		}
	}
	return &doc, nil
}

func rsaFromJWK(k jwk) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("%w: bad modulus", oauth.ErrIdentity)
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("%w: bad exponent", oauth.ErrIdentity)
	}
	e := 0
	for _, b := range eb {
		e = (e << 8) | int(b)
	}
	if e == 0 {
		e = 65537
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
