package ratelimit

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EndpointConfig is the budget for one route. A Path ending in "/" is a
// prefix and covers everything below it.
type EndpointConfig struct {
	Path   string        // route pattern; trailing "/" means prefix
	Method string        // HTTP method
	Limit  int           // requests per Window
	Window time.Duration // budget window
	Burst  int           // bucket capacity, 0 means Limit
}

// LoadConfig reads limiter settings from RATE_LIMIT_* environment
// variables, falling back to defaults.
func LoadConfig() *Config {
	if !envBool("RATE_LIMIT_ENABLED", true) {
		return &Config{Enabled: false}
	}

	return &Config{
		Enabled:         true,
		DefaultLimit:    envInt("RATE_LIMIT_DEFAULT_LIMIT", 1000),
		DefaultWindow:   envDuration("RATE_LIMIT_DEFAULT_WINDOW", time.Minute),
		CleanupInterval: envDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		Whitelist:       parseIPList(os.Getenv("RATE_LIMIT_WHITELIST")),
		Blacklist:       parseIPList(os.Getenv("RATE_LIMIT_BLACKLIST")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the per-route budgets.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Expensive operations get the strictest limits. A submitted job
		// can occupy a worker for hours, and an upload fans out into many.
		{Path: "/jobs", Method: "POST", Limit: 60, Window: time.Hour, Burst: 10},
		{Path: "/uploads/csv", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/uploads/", Method: "POST", Limit: 10, Window: time.Hour, Burst: 2},
		{Path: "/export/", Method: "GET", Limit: 30, Window: time.Hour, Burst: 5},

		// Control and delete are cheap but stateful.
		{Path: "/jobs/", Method: "POST", Limit: 100, Window: time.Minute, Burst: 10},
		{Path: "/jobs/", Method: "DELETE", Limit: 100, Window: time.Minute, Burst: 10},

		// Auth endpoints are kept tight against credential stuffing.
		{Path: "/auth/", Method: "POST", Limit: 20, Window: time.Minute, Burst: 5},
		{Path: "/auth/", Method: "PUT", Limit: 20, Window: time.Minute, Burst: 5},

		// Reads fall through to the default limit; /healthz is exempted in
		// the matcher.
	}
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

// parseIPList splits a comma-separated address list into a membership set.
func parseIPList(list string) map[string]bool {
	set := make(map[string]bool)
	for _, ip := range strings.Split(list, ",") {
		if ip = strings.TrimSpace(ip); ip != "" {
			set[ip] = true
		}
	}
	return set
}
