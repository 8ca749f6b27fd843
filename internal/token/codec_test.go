package token_test

import (
	"testing"
	"time"

	"github.com/coldreach/coldreach/internal/token"
	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCodec(t *testing.T) *token.Codec {
	t.Helper()
	c, err := token.NewCodec("unit-test-secret", "HS256", 30*time.Minute, 720*time.Hour)
	require.NoError(t, err)
	return c
}

func TestCodec_RoundTripAccess(t *testing.T) {
	c := newCodec(t)

	raw, err := c.MintAccess(42, map[string]any{"email": "a@x.com"})
	require.NoError(t, err)

	claims, err := c.Verify(raw, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, token.TypeAccess, claims.Type)
	assert.Equal(t, "a@x.com", claims.Email)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestCodec_MintedTokensNeverRepeat(t *testing.T) {
	c := newCodec(t)

	// Dos refresh para el mismo usuario en el mismo segundo: los bytes
	// tienen que diferir, porque las sesiones se indexan por hash del token.
	seen := make(map[string]struct{})
	for i := 0; i < 10; i++ {
		raw, err := c.MintRefresh(42)
		require.NoError(t, err)
		_, dup := seen[raw]
		require.False(t, dup, "minted the same refresh token twice")
		seen[raw] = struct{}{}
	}

	a1, err := c.MintAccess(42, nil)
	require.NoError(t, err)
	a2, err := c.MintAccess(42, nil)
	require.NoError(t, err)
	assert.NotEqual(t, a1, a2)
}

func TestCodec_TypeNotInterchangeable(t *testing.T) {
	c := newCodec(t)

	refresh, err := c.MintRefresh(7)
	require.NoError(t, err)

	// Un refresh token nunca pasa como access, ni al revés.
	_, err = c.Verify(refresh, token.TypeAccess)
	require.ErrorIs(t, err, token.ErrInvalid)

	access, err := c.MintAccess(7, nil)
	require.NoError(t, err)
	_, err = c.Verify(access, token.TypeRefresh)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestCodec_ExtrasCannotOverrideReserved(t *testing.T) {
	c := newCodec(t)

	raw, err := c.MintAccess(9, map[string]any{"sub": "999", "type": "refresh"})
	require.NoError(t, err)

	claims, err := c.Verify(raw, token.TypeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(9), claims.UserID)
}

func TestCodec_RejectsWrongSecret(t *testing.T) {
	c := newCodec(t)
	other, err := token.NewCodec("a-different-secret", "HS256", time.Minute, time.Hour)
	require.NoError(t, err)

	raw, err := other.MintAccess(1, nil)
	require.NoError(t, err)

	_, err = c.Verify(raw, token.TypeAccess)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestCodec_RejectsExpired(t *testing.T) {
	// Token firmado a mano con exp en el pasado y el mismo secreto.
	claims := jwtv5.MapClaims{
		"sub":  "3",
		"type": token.TypeAccess,
		"iat":  time.Now().Add(-2 * time.Hour).Unix(),
		"exp":  time.Now().Add(-1 * time.Hour).Unix(),
	}
	raw, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims).SignedString([]byte("unit-test-secret"))
	require.NoError(t, err)

	c := newCodec(t)
	_, err = c.Verify(raw, token.TypeAccess)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestCodec_RejectsAlgNone(t *testing.T) {
	c := newCodec(t)

	unsigned := jwtv5.NewWithClaims(jwtv5.SigningMethodNone, jwtv5.MapClaims{
		"sub":  "5",
		"type": token.TypeAccess,
		"exp":  time.Now().Add(time.Hour).Unix(),
	})
	raw, err := unsigned.SignedString(jwtv5.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = c.Verify(raw, token.TypeAccess)
	require.ErrorIs(t, err, token.ErrInvalid)
}

func TestNewCodec_RejectsNonHMAC(t *testing.T) {
	_, err := token.NewCodec("s", "RS256", time.Minute, time.Hour)
	require.Error(t, err)

	_, err = token.NewCodec("", "HS256", time.Minute, time.Hour)
	require.Error(t, err)
}
