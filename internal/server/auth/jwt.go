// Package auth mints and verifies the token pairs handed to clients.
// The access token is a short-lived HS256 JWT; the refresh token is an
// opaque random string whose validity lives in the account row.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// refreshTokenSize is the number of random bytes in a refresh token.
const refreshTokenSize = 32

// TokenCodec mints a candidate token pair for a payload and decodes access
// tokens back into payloads.
type TokenCodec interface {
	Mint(payload models.TokenPayload) (models.TokenPair, error)
	Decode(accessToken string) (models.TokenPayload, error)
}

// Claims are the registered claims plus the account role.
type Claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

type JWTCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	clock    timex.Clock
}

func NewJWTCodec(secret, issuer, audience string, ttl time.Duration, clock timex.Clock) *JWTCodec {
	return &JWTCodec{
		secret:   []byte(secret),
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		clock:    clock,
	}
}

func (c *JWTCodec) Mint(payload models.TokenPayload) (models.TokenPair, error) {
	now := c.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   payload.AccountID.String(),
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
		Role: payload.Role,
	})

	access, err := token.SignedString(c.secret)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := common.MakeRandHexString(refreshTokenSize)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("refresh token: %w", err)
	}

	return models.TokenPair{AccessToken: access, RefreshToken: refresh, Role: payload.Role}, nil
}

// Decode verifies signature, issuer, audience and expiry. Expired tokens
// yield common.ErrTokenExpired; any other failure common.ErrInvalidToken.
func (c *JWTCodec) Decode(accessToken string) (models.TokenPayload, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(accessToken, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return models.TokenPayload{}, common.ErrTokenExpired
		}
		return models.TokenPayload{}, common.ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil || !claims.Role.Valid() {
		return models.TokenPayload{}, common.ErrInvalidToken
	}
	return models.TokenPayload{AccountID: id, Role: claims.Role}, nil
}
