package config

import (
	"fmt"
	"os"
	"strconv"
)

// JWTConfig holds configuration for validating API bearer tokens.
type JWTConfig struct {
	Secret          string
	ExpirationHours int
}

// NewJWTConfig creates a JWT configuration from environment variables.
// It reads API_JWT_SECRET and API_JWT_EXPIRATION_HOURS (default: 24). A nil config
// and nil error mean the API is unauthenticated.
func NewJWTConfig() (*JWTConfig, error) {
	return NewJWTConfigFrom(os.Getenv("API_JWT_SECRET"), os.Getenv("API_JWT_EXPIRATION_HOURS"))
}

// NewJWTConfigFrom builds a JWT configuration from raw values. An empty secret
// disables authentication.
func NewJWTConfigFrom(secret, expiration string) (*JWTConfig, error) {
	if secret == "" {
		return nil, nil
	}

	if expiration == "" {
		expiration = "24" // default
	}

	expirationHours, err := strconv.Atoi(expiration)
	if err != nil {
		return nil, fmt.Errorf("invalid API_JWT_EXPIRATION_HOURS: %v", err)
	}

	config := &JWTConfig{
		Secret:          secret,
		ExpirationHours: expirationHours,
	}

	if err := config.normalize(); err != nil {
		return nil, err
	}

	return config, nil
}

// normalize validates the configuration.
func (c *JWTConfig) normalize() error {
	if len(c.Secret) < 16 {
		return fmt.Errorf("API_JWT_SECRET must be at least 16 characters")
	}
	if c.ExpirationHours < 1 {
		return fmt.Errorf("API_JWT_EXPIRATION_HOURS must be at least 1 hour, got: %d", c.ExpirationHours)
	}
	return nil
}
