package middleware

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/kasuganosora/waifuarena/identity"
)

// Claims is the JWT payload. Address is the caller identity in 0x-hex.
type Claims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Caller returns the address carried by the token.
func (c *Claims) Caller() (identity.Address, error) {
	return identity.ParseAddress(c.Address)
}

// GenerateToken signs a JWT for the given address with the given secret and TTL.
func GenerateToken(addr identity.Address, secret string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Address: addr.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   addr.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates a JWT string and returns the claims.
func ParseToken(tokenStr, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := claims.Caller(); err != nil {
		return nil, err
	}
	return claims, nil
}
