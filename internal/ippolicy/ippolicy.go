// Package ippolicy implements IP Policy (C6): client IP resolution behind
// trusted proxies and CIDR-based allow/deny matching, evaluated once for the
// gateway's global runtime security settings and again per API after routing.
// Client IP extraction is grounded on CedrosPay-server's internal/tenant
// Extraction pattern (an ordered, first-match header-priority chain),
// generalized here from tenant-ID header lookup to trusted-proxy-gated
// X-Forwarded-For resolution.
package ippolicy

import (
	"net"
	"net/http"
	"strings"
)

// Policy is a single evaluable allow/deny list: Mode is "allow_all" (only
// the denylist is checked) or "whitelist" (the IP must also match an
// allowlist entry).
type Policy struct {
	Mode      string
	Whitelist []string
	Blacklist []string
}

const ModeWhitelist = "whitelist"

// ErrDenied is returned by Evaluate when the client IP fails the policy.
type deniedError struct{ reason string }

func (e *deniedError) Error() string { return "ippolicy: " + e.reason }

var ErrDenied = &deniedError{reason: "client IP denied by policy"}

// ClientIP resolves the request's client IP. When trustXFF is true and the
// direct peer address is itself one of trustedProxies, the left-most address
// in X-Forwarded-For is used, falling back to X-Real-IP and then
// CF-Connecting-IP in that order; otherwise the direct peer is authoritative.
func ClientIP(r *http.Request, trustXFF bool, trustedProxies []string) string {
	peer := peerIP(r)

	if !trustXFF || !isTrustedProxy(peer, trustedProxies) {
		return peer
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return strings.TrimSpace(realIP)
	}
	if cf := r.Header.Get("CF-Connecting-IP"); cf != "" {
		return strings.TrimSpace(cf)
	}
	return peer
}

func peerIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	for _, proxy := range trustedProxies {
		if matchesEntry(ip, proxy) {
			return true
		}
	}
	return false
}

// IsLocalhost reports whether ip is a loopback address.
func IsLocalhost(ip string) bool {
	parsed := net.ParseIP(ip)
	return parsed != nil && parsed.IsLoopback()
}

// Evaluate applies pol to clientIP: a denylist match always fails; in
// whitelist mode, a clientIP matching no allowlist entry also fails.
func Evaluate(pol Policy, clientIP string) error {
	for _, entry := range pol.Blacklist {
		if matchesEntry(clientIP, entry) {
			return ErrDenied
		}
	}
	if pol.Mode != ModeWhitelist {
		return nil
	}
	for _, entry := range pol.Whitelist {
		if matchesEntry(clientIP, entry) {
			return nil
		}
	}
	return ErrDenied
}

// matchesEntry reports whether ip matches entry, which may be a bare IP
// (v4 or v6) or a CIDR block.
func matchesEntry(ip, entry string) bool {
	target := net.ParseIP(ip)
	if target == nil {
		return false
	}

	if strings.Contains(entry, "/") {
		_, network, err := net.ParseCIDR(entry)
		if err != nil {
			return false
		}
		return network.Contains(target)
	}

	candidate := net.ParseIP(entry)
	return candidate != nil && candidate.Equal(target)
}
