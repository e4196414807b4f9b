package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jonathan/factor-engine/internal/config"
	"github.com/jonathan/factor-engine/internal/server/middleware"
)

// Claims carries the authenticated user ID alongside the registered JWT
// claim set.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	jwt.RegisteredClaims
}

// GetUserID satisfies middleware.UserIDGetter.
func (c *Claims) GetUserID() uuid.UUID { return c.UserID }

// JWTService signs and validates the HS256 tokens issued by the auth
// endpoints.
type JWTService struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTService creates a token service from the JWT configuration.
func NewJWTService(cfg *config.JWTConfig) *JWTService {
	return &JWTService{
		secret:   []byte(cfg.Secret),
		lifetime: time.Duration(cfg.ExpirationHours) * time.Hour,
	}
}

// GenerateToken issues a signed token for userID.
func (s *JWTService) GenerateToken(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.lifetime)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning its claims.
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("token string is empty")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	switch {
	case errors.Is(err, jwt.ErrSignatureInvalid):
		return nil, fmt.Errorf("invalid token signature: %w", err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, fmt.Errorf("token expired: %w", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return nil, fmt.Errorf("malformed token: %w", err)
	case err != nil:
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	return claims, nil
}

// tokenValidatorFunc adapts a plain function to middleware.TokenValidator,
// in the manner of http.HandlerFunc.
type tokenValidatorFunc func(token string) (middleware.UserIDGetter, error)

func (f tokenValidatorFunc) ValidateToken(token string) (middleware.UserIDGetter, error) {
	return f(token)
}

// AsTokenValidator exposes the service as a middleware.TokenValidator
// without an import cycle between server and middleware.
func (s *JWTService) AsTokenValidator() middleware.TokenValidator {
	return tokenValidatorFunc(func(token string) (middleware.UserIDGetter, error) {
		claims, err := s.ValidateToken(token)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}
