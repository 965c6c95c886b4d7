package tokenizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/mercuria/core"
)

// AudienceAccess is the audience of every access token
const AudienceAccess = "mercuria:access"

// JWTTokenizer converts between access sessions and HS256 JWTs
type JWTTokenizer struct {
	signKey []byte
	parser  *jwt.Parser
}

// NewJWTTokenizer creates a tokenizer that signs with key. A nil key gives a
// read-only tokenizer that can only inspect claims.
func NewJWTTokenizer(signKey []byte) *JWTTokenizer {
	return &JWTTokenizer{
		signKey: signKey,
		parser:  jwt.NewParser(),
	}
}

// SessionToAccessToken signs an access token for claims
func (j *JWTTokenizer) SessionToAccessToken(claims core.AccessClaims) (string, error) {
	if len(j.signKey) == 0 {
		return "", errors.New("tokenizer has no signing key")
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			ID:        claims.ID,
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			Audience:  jwt.ClaimStrings{AudienceAccess},
		},
		RefreshID: claims.RefreshID,
	})

	signedToken, err := token.SignedString(j.signKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signedToken, nil
}

// AccessTokenToSession verifies signature, audience and expiry
func (j *JWTTokenizer) AccessTokenToSession(tokenStr string) (*core.AccessClaims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &AccessClaims{}, func(token *jwt.Token) (interface{}, error) {
		return j.signKey, nil
	}, jwt.WithAudience(AudienceAccess), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("access token expired: %w", core.ErrInvalidToken)
		}
		return nil, fmt.Errorf("failed to parse token: %w", core.ErrInvalidToken)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, core.ErrInvalidToken
	}

	return toCore(claims), nil
}

// AccessTokenClaims reads the claims without verifying the signature. The
// result is advisory: it names the subject for logs and display.
func (j *JWTTokenizer) AccessTokenClaims(tokenStr string) (*core.AccessClaims, error) {
	claims := &AccessClaims{}
	if _, _, err := j.parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("failed to read claims: %w", core.ErrInvalidToken)
	}
	return toCore(claims), nil
}

func toCore(claims *AccessClaims) *core.AccessClaims {
	out := &core.AccessClaims{
		Subject:   claims.Subject,
		ID:        claims.ID,
		RefreshID: claims.RefreshID,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out
}

// Expired reports whether advisory claims are past their expiry at now.
func Expired(claims *core.AccessClaims, now time.Time) bool {
	return !claims.ExpiresAt.IsZero() && !now.Before(claims.ExpiresAt)
}
