package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims represents the JWT payload. The subject is the chat user id of the subscriber.
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator issues and verifies subscriber tokens for the management API.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Authenticator{secret: []byte(secret), ttl: ttl}
}

// GenerateToken creates a signed JWT for the given subscriber
func (a *Authenticator) GenerateToken(userID string) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("JWT secret not set")
	}
	if userID == "" {
		return "", errors.New("subscriber id is required")
	}

	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// ValidateToken parses and verifies a JWT string
func (a *Authenticator) ValidateToken(tokenStr string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, errors.New("JWT secret not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
