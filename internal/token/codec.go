// Package token mints and verifies the bearer tokens the service itself
// issues: short-lived access tokens and long-lived refresh tokens, both
// signed with a single shared HMAC secret and discriminated by a "type"
// claim. The type check runs on every Verify so an access token can never
// stand in for a refresh token or vice versa.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// ErrInvalid is the uniform verification failure. Callers never learn
// whether the signature, the expiry or the type check failed.
var ErrInvalid = errors.New("invalid token")

// Claims es el resultado de una verificación exitosa.
type Claims struct {
	UserID    int64
	Type      string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec firma y verifica tokens con un secreto compartido.
type Codec struct {
	secret     []byte
	method     jwtv5.SigningMethod
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewCodec crea un Codec. alg debe ser de la familia HMAC (HS256/HS384/HS512).
func NewCodec(secret, alg string, accessTTL, refreshTTL time.Duration) (*Codec, error) {
	if secret == "" {
		return nil, fmt.Errorf("token: empty signing secret")
	}
	var method jwtv5.SigningMethod
	switch alg {
	case "", "HS256":
		method = jwtv5.SigningMethodHS256
	case "HS384":
		method = jwtv5.SigningMethodHS384
	case "HS512":
		method = jwtv5.SigningMethodHS512
	default:
		return nil, fmt.Errorf("token: unsupported algorithm %q", alg)
	}
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 30 * 24 * time.Hour
	}
	return &Codec{
		secret:     []byte(secret),
		method:     method,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

// AccessTTL es la vida útil de los access tokens.
func (c *Codec) AccessTTL() time.Duration { return c.accessTTL }

// RefreshTTL es la vida útil de los refresh tokens.
func (c *Codec) RefreshTTL() time.Duration { return c.refreshTTL }

// MintAccess emite un access token para el usuario. extra permite agregar
// claims adicionales (ej: email); no puede pisar los claims reservados.
func (c *Codec) MintAccess(userID int64, extra map[string]any) (string, error) {
	return c.mint(userID, TypeAccess, c.accessTTL, extra)
}

// MintRefresh emite un refresh token para el usuario.
func (c *Codec) MintRefresh(userID int64) (string, error) {
	return c.mint(userID, TypeRefresh, c.refreshTTL, nil)
}

func (c *Codec) mint(userID int64, typ string, ttl time.Duration, extra map[string]any) (string, error) {
	now := time.Now().UTC()
	claims := jwtv5.MapClaims{}
	for k, v := range extra {
		claims[k] = v
	}
	// Reserved claims always win over extras. The jti makes every minted
	// token unique even at identical {sub, iat}: refresh tokens are keyed
	// by hash in the session store, so two logins in the same second must
	// never produce the same bytes.
	claims["sub"] = strconv.FormatInt(userID, 10)
	claims["type"] = typ
	claims["jti"] = uuid.NewString()
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()

	tk := jwtv5.NewWithClaims(c.method, claims)
	signed, err := tk.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}

// Verify valida firma, expiración y tipo. Cualquier fallo retorna ErrInvalid
// sin distinguir la causa.
func (c *Codec) Verify(raw, expectedType string) (*Claims, error) {
	tok, err := jwtv5.Parse(raw,
		func(t *jwtv5.Token) (any, error) { return c.secret, nil },
		jwtv5.WithValidMethods([]string{c.method.Alg()}),
		jwtv5.WithExpirationRequired(),
	)
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}

	mc, ok := tok.Claims.(jwtv5.MapClaims)
	if !ok {
		return nil, ErrInvalid
	}

	typ, _ := mc["type"].(string)
	if typ != expectedType {
		return nil, ErrInvalid
	}

	sub, _ := mc["sub"].(string)
	uid, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || uid <= 0 {
		return nil, ErrInvalid
	}

	out := &Claims{UserID: uid, Type: typ}
	if v, ok := mc["email"].(string); ok {
		out.Email = v
	}
	if v, ok := mc["iat"].(float64); ok {
		out.IssuedAt = time.Unix(int64(v), 0).UTC()
	}
	if v, ok := mc["exp"].(float64); ok {
		out.ExpiresAt = time.Unix(int64(v), 0).UTC()
	}
	return out, nil
}
