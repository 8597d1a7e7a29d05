// Package auth issues and validates the bearer tokens protecting the write
// surface. Tokens are HMAC-signed JWTs carrying the caller's identity and
// access level.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	appctx "arena/internal/core/context"
)

// TokenService signs and validates access tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewTokenService creates a token service. TTL defaults to 12 hours.
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("auth: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, issuer: "arena"}, nil
}

type claims struct {
	Username    string `json:"username"`
	AccessLevel int    `json:"access_level"`
	jwt.RegisteredClaims
}

// IssueToken signs a token for the given user.
func (s *TokenService) IssueToken(userID, username string, accessLevel int) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Username:    username,
		AccessLevel: accessLevel,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	return token.SignedString(s.secret)
}

// ValidateToken parses and verifies a token, returning the user context it
// carries.
func (s *TokenService) ValidateToken(tokenString string) (*appctx.UserContext, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("auth: unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}
	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, errors.New("auth: invalid token")
	}
	return &appctx.UserContext{
		UserID:      c.Subject,
		Username:    c.Username,
		AccessLevel: c.AccessLevel,
		IsAdmin:     c.AccessLevel == 0,
	}, nil
}
