package server

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// originPolicy is the compiled form of Config.AllowedOrigins.
type originPolicy struct {
	wildcard bool
	allowed  map[string]struct{}
}

// compileOrigins canonicalises the configured origins and builds the policy
// used by the upgrader. Invalid entries are logged and dropped; "*" admits
// every origin, including requests that send none.
func compileOrigins(origins []string) ([]string, originPolicy) {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	if len(origins) == 0 {
		return nil, policy
	}

	canonical := make([]string, 0, len(origins))
	for _, raw := range origins {
		entry := strings.TrimSpace(raw)
		switch {
		case entry == "":
			continue
		case entry == "*":
			policy.wildcard = true
			continue
		}

		origin, ok := canonicalOrigin(entry)
		if !ok {
			slog.Warn("ignoring invalid origin in configuration", "origin", raw)
			continue
		}
		if _, dup := policy.allowed[origin]; dup {
			continue
		}
		policy.allowed[origin] = struct{}{}
		canonical = append(canonical, origin)
	}
	return canonical, policy
}

// canonicalOrigin reduces an origin to lower-case scheme://host[:port].
func canonicalOrigin(origin string) (string, bool) {
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

func (p originPolicy) allows(origin string) bool {
	if p.wildcard {
		return true
	}
	canonical, ok := canonicalOrigin(origin)
	if !ok {
		return false
	}
	_, ok = p.allowed[canonical]
	return ok
}

// checkOrigin is the upgrader's CheckOrigin hook.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")

	configMu.RLock()
	ok := activeOrigins.allows(origin)
	configMu.RUnlock()

	if !ok {
		slog.Warn("blocked websocket connection from disallowed origin", "origin", origin, "addr", r.RemoteAddr)
	}
	return ok
}
