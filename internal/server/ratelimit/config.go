package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the rate limit for one route.
type EndpointConfig struct {
	Path   string        // Path or prefix (when ending in "/")
	Method string        // HTTP method
	Limit  int           // Maximum requests per window
	Window time.Duration // Time window
	Burst  int           // Burst capacity (defaults to Limit if 0)
}

// Key identifies the bucket shared by all requests matching this config.
func (c *EndpointConfig) Key() string {
	return c.Method + " " + c.Path
}

// LoadConfig loads rate limiting configuration from environment variables.
func LoadConfig() *Config {
	return LoadConfigFrom(os.Getenv)
}

// LoadConfigFrom loads rate limiting configuration through getenv.
func LoadConfigFrom(getenv func(string) string) *Config {
	enabled := envBool(getenv, "RATE_LIMIT_ENABLED", true)
	if !enabled {
		return &Config{
			Enabled: false,
		}
	}

	submitLimit := envInt(getenv, "RATE_LIMIT_SUBMIT_LIMIT", 20)

	return &Config{
		Enabled:         enabled,
		DefaultLimit:    envInt(getenv, "RATE_LIMIT_DEFAULT_LIMIT", 600),
		DefaultWindow:   envDuration(getenv, "RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: envDuration(getenv, "RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(submitLimit),
	}
}

// DefaultEndpointConfigs returns the per-route limits. Submitting starts remote jobs
// and is the strictest; polling is frequent and cheap.
func DefaultEndpointConfigs(submitLimit int) []EndpointConfig {
	if submitLimit <= 0 {
		submitLimit = 20
	}
	return []EndpointConfig{
		// Starts EBI jobs
		{Path: "/api/phylogeny", Method: "POST", Limit: submitLimit, Window: time.Hour, Burst: max(submitLimit/4, 1)},

		// Polling: one bucket for every job id
		{Path: "/api/phylogeny", Method: "GET", Limit: 240, Window: time.Minute, Burst: 30},
		{Path: "/api/phylogeny/", Method: "GET", Limit: 240, Window: time.Minute, Burst: 30},

		// Structure lookups fan out to RCSB and AlphaFold
		{Path: "/api/structures/batch", Method: "POST", Limit: 30, Window: time.Minute, Burst: 5},
		{Path: "/api/structures/", Method: "GET", Limit: 120, Window: time.Minute, Burst: 20},
	}
}

func envInt(getenv func(string) string, key string, defaultValue int) int {
	if value := getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func envBool(getenv func(string) string, key string, defaultValue bool) bool {
	if value := getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func envDuration(getenv func(string) string, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// parseIPList parses a comma-separated list of IP addresses into a set.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			result[ip] = true
		}
	}
	return result
}
