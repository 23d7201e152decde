package ippolicy

import (
	"net/http"

	"github.com/cedros-gateway/gateway/internal/config"
)

// Gate evaluates the global runtime security settings and, once a route is
// resolved, a per-API policy, in the order the spec fixes: global policy
// first (before any application handler sees the request), per-API policy
// after routing. Localhost bypass short-circuits both when enabled and no
// forwarding headers are present on the request.
type Gate struct {
	cfg config.IPPolicyConfig
}

// New builds a Gate from the gateway's global IP policy configuration.
func New(cfg config.IPPolicyConfig) *Gate {
	return &Gate{cfg: cfg}
}

// ResolveClientIP resolves r's client IP under the gate's trust configuration.
func (g *Gate) ResolveClientIP(r *http.Request) string {
	return ClientIP(r, g.cfg.TrustXFF, g.cfg.TrustedProxies)
}

func hasForwardingHeaders(r *http.Request) bool {
	return r.Header.Get("X-Forwarded-For") != "" ||
		r.Header.Get("X-Real-IP") != "" ||
		r.Header.Get("CF-Connecting-IP") != ""
}

// CheckGlobal applies the gateway-wide policy to r, honoring localhost
// bypass. clientIP should be the value returned by ResolveClientIP.
func (g *Gate) CheckGlobal(r *http.Request, clientIP string) error {
	if g.cfg.LocalhostBypass && !hasForwardingHeaders(r) && IsLocalhost(clientIP) {
		return nil
	}
	return Evaluate(Policy{Mode: g.cfg.GlobalMode, Whitelist: g.cfg.GlobalWhitelist, Blacklist: g.cfg.GlobalBlacklist}, clientIP)
}

// CheckAPI applies a resolved API's own IP policy fields to clientIP,
// honoring the same localhost bypass rule as CheckGlobal.
func (g *Gate) CheckAPI(r *http.Request, clientIP string, apiMode string, apiWhitelist, apiBlacklist []string) error {
	if g.cfg.LocalhostBypass && !hasForwardingHeaders(r) && IsLocalhost(clientIP) {
		return nil
	}
	return Evaluate(Policy{Mode: apiMode, Whitelist: apiWhitelist, Blacklist: apiBlacklist}, clientIP)
}
