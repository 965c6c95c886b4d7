package tokenizer

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/mercuria/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClaims(now time.Time) core.AccessClaims {
	return core.AccessClaims{
		Subject:   "user-1",
		ID:        "jti-1",
		RefreshID: "rid-1",
		IssuedAt:  now,
		ExpiresAt: now.Add(5 * time.Minute),
	}
}

func TestJWTTokenizer_SignAndVerify(t *testing.T) {
	tk := NewJWTTokenizer([]byte("secret"))
	now := time.Now().Truncate(time.Second)

	token, err := tk.SessionToAccessToken(testClaims(now))
	require.NoError(t, err)

	got, err := tk.AccessTokenToSession(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.Equal(t, "jti-1", got.ID)
	assert.Equal(t, "rid-1", got.RefreshID)
	assert.True(t, got.ExpiresAt.Equal(now.Add(5*time.Minute)))
}

func TestJWTTokenizer_RejectsForeignSignature(t *testing.T) {
	token, err := NewJWTTokenizer([]byte("other")).SessionToAccessToken(testClaims(time.Now()))
	require.NoError(t, err)

	_, err = NewJWTTokenizer([]byte("secret")).AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestJWTTokenizer_RejectsExpired(t *testing.T) {
	tk := NewJWTTokenizer([]byte("secret"))
	token, err := tk.SessionToAccessToken(testClaims(time.Now().Add(-time.Hour)))
	require.NoError(t, err)

	_, err = tk.AccessTokenToSession(token)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
	assert.Contains(t, err.Error(), "expired")
}

func TestJWTTokenizer_RejectsWrongAudience(t *testing.T) {
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		Audience:  jwt.ClaimStrings{"mercuria:refresh"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = NewJWTTokenizer([]byte("secret")).AccessTokenToSession(raw)
	assert.ErrorIs(t, err, core.ErrInvalidToken)
}

func TestJWTTokenizer_ReadsClaimsWithoutKey(t *testing.T) {
	now := time.Now().Add(-time.Hour).Truncate(time.Second)
	token, err := NewJWTTokenizer([]byte("secret")).SessionToAccessToken(testClaims(now))
	require.NoError(t, err)

	reader := NewJWTTokenizer(nil)
	got, err := reader.AccessTokenClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Subject)
	assert.True(t, Expired(got, time.Now()))

	_, err = reader.AccessTokenClaims("opaque-token")
	assert.ErrorIs(t, err, core.ErrInvalidToken)

	_, err = reader.SessionToAccessToken(testClaims(now))
	assert.Error(t, err)
}
