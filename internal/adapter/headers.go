// Package adapter implements the Protocol Adapters (C9): REST, SOAP,
// GraphQL, and gRPC upstream forwarding, sharing one header hygiene pass
// grounded on uncord-chat-uncord-server's bluemonday usage (HTML-tag
// stripping of untrusted string content) generalized from document content
// sanitization to header-value sanitization.
package adapter

import (
	"net/http"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

const maxHeaderValueLength = 8 * 1024

// hopByHopHeaders are never forwarded upstream regardless of allow-listing,
// matching RFC 7230 §6.1's connection-scoped header set.
var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":              true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

// sensitiveHeaders are stripped unless explicitly allow-listed by the API,
// since forwarding them upstream by default would leak the gateway's own
// session material to an arbitrary backend.
var sensitiveHeaders = map[string]bool{
	"Authorization":   true,
	"Cookie":          true,
	"Set-Cookie":      true,
	"X-Csrf-Token":    true,
	"X-Internal-Auth": true,
}

var sanitizePolicy = bluemonday.StrictPolicy()

// SanitizeHeaders builds the upstream header set from incoming: hop-by-hop
// headers are always dropped; sensitive headers are dropped unless present
// in allowedSensitive (a case-insensitive set sourced from the API's own
// allow-list configuration); every forwarded value has CR, LF and NUL
// stripped, is passed through bluemonday's strict HTML policy, and is
// truncated to 8 KiB. If authField is non-empty and present on incoming, its
// value replaces the upstream Authorization header (api_authorization_field_swap).
func SanitizeHeaders(incoming http.Header, allowedSensitive map[string]bool, authField string) http.Header {
	out := make(http.Header, len(incoming))

	for name, values := range incoming {
		canonical := http.CanonicalHeaderKey(name)
		if hopByHopHeaders[canonical] {
			continue
		}
		if sensitiveHeaders[canonical] && !allowedSensitive[strings.ToLower(canonical)] {
			continue
		}
		for _, v := range values {
			out.Add(canonical, sanitizeValue(v))
		}
	}

	if authField != "" {
		if v := incoming.Get(authField); v != "" {
			out.Set("Authorization", sanitizeValue(v))
		}
	}

	return out
}

func sanitizeValue(v string) string {
	v = stripControlChars(v)
	v = sanitizePolicy.Sanitize(v)
	if len(v) > maxHeaderValueLength {
		v = v[:maxHeaderValueLength]
	}
	return v
}

func stripControlChars(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r == '\r' || r == '\n' || r == 0 {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
