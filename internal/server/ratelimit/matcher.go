package ratelimit

import "strings"

// MatchEndpoint resolves the budget for a request path and method. Exact
// path matches win over prefix matches; a config path ending in "/" covers
// everything below it, so "/jobs/" matches "/jobs/{id}". Returns nil when
// no configured endpoint applies.
func MatchEndpoint(path, method string, configs []EndpointConfig) *EndpointConfig {
	// The health probe is never metered.
	if path == "/healthz" && method == "GET" {
		return &EndpointConfig{}
	}

	for i := range configs {
		if ec := &configs[i]; ec.Path == path && ec.Method == method {
			return ec
		}
	}
	for i := range configs {
		ec := &configs[i]
		if ec.Method == method && strings.HasSuffix(ec.Path, "/") && strings.HasPrefix(path, ec.Path) {
			return ec
		}
	}
	return nil
}
