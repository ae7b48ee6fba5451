// Package auth issues and verifies the short-lived access tokens used on the
// gRPC administration endpoint.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/gitwiki/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

const (
	issuer   = "gitwiki"
	audience = "gitwiki-admin"
)

// Claims are the registered claims plus the profile URL of the identity the
// token was issued to.
type Claims struct {
	jwt.RegisteredClaims
	ProfileURL string `json:"profile_url"`
}

// GenerateToken signs an HS256 token for profileURL valid for validityDuration.
func GenerateToken(profileURL string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   profileURL,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		ProfileURL: profileURL,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ProfileURLFromToken verifies tokenString and returns the profile URL it was
// issued to. Expired tokens yield common.ErrTokenExpired, anything else that
// fails verification yields common.ErrInvalidToken.
func ProfileURLFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrTokenExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.ProfileURL == "" {
		return "", common.ErrInvalidToken
	}

	return claims.ProfileURL, nil
}
