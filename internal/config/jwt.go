package config

import (
	"fmt"
	"os"
)

// defaultJWTExpirationHours is the token lifetime when the environment does
// not say otherwise.
const defaultJWTExpirationHours = 24

// JWTConfig holds the signing secret and token lifetime for API bearer
// tokens.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewJWTConfig reads JWT settings from the environment. JWT_SECRET is
// required; JWT_EXPIRATION_HOURS defaults to 24.
func NewJWTConfig() (*JWTConfig, error) {
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required but not set")
	}

	hours, err := getEnvInt("JWT_EXPIRATION_HOURS", defaultJWTExpirationHours)
	if err != nil {
		return nil, err
	}
	if hours < 1 {
		return nil, fmt.Errorf("JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", hours)
	}

	return &JWTConfig{Secret: secret, ExpirationHours: hours}, nil
}
