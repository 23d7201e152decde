package pipeline

import (
	"net/http"
	"strings"

	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/store"
)

// corsPolicy is the CORS configuration resolved for one request, either from
// a matched API's own cors_* fields or from the platform defaults when no
// API matched yet (§4.10 step 3, §6 negotiation rules).
type corsPolicy struct {
	allowOrigins     []string
	allowMethods     []string
	allowHeaders     []string
	allowCredentials bool
	exposeHeaders    []string
}

func platformCORS(cfg config.ServerConfig) corsPolicy {
	return corsPolicy{
		allowOrigins:     cfg.CORSAllowedOrigins,
		allowMethods:     cfg.CORSAllowedMethods,
		allowHeaders:     cfg.CORSAllowedHeaders,
		allowCredentials: cfg.CORSAllowCredentials,
	}
}

// apiCORS builds a corsPolicy from an API document's own api_cors_* fields,
// falling back to fallback for any field the document leaves unset.
func apiCORS(api store.Doc, fallback corsPolicy) corsPolicy {
	p := fallback
	if v := stringSliceField(api, "api_cors_allow_origins"); v != nil {
		p.allowOrigins = v
	}
	if v := stringSliceField(api, "api_cors_allow_methods"); v != nil {
		p.allowMethods = v
	}
	if v := stringSliceField(api, "api_cors_allow_headers"); v != nil {
		p.allowHeaders = v
	}
	if v := stringSliceField(api, "api_cors_expose_headers"); v != nil {
		p.exposeHeaders = v
	}
	if v, ok := api["api_cors_allow_credentials"].(bool); ok {
		p.allowCredentials = v
	}
	return p
}

func stringSliceField(doc store.Doc, field string) []string {
	raw, ok := doc[field].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (p corsPolicy) originAllowed(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	for _, allowed := range p.allowOrigins {
		if allowed == "*" {
			if p.allowCredentials {
				return origin, true // credentials forbid a literal wildcard; echo the request origin instead
			}
			return "*", true
		}
		if strings.EqualFold(allowed, origin) {
			return origin, true
		}
	}
	return "", false
}

// applyHeaders sets the CORS response headers for a non-preflight request
// carrying an Origin header (§6: "attach CORS headers on the response").
func (p corsPolicy) applyHeaders(w http.ResponseWriter, origin string) {
	w.Header().Add("Vary", "Origin")
	allowOrigin, ok := p.originAllowed(origin)
	if !ok {
		return
	}
	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	if p.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	if len(p.exposeHeaders) > 0 {
		w.Header().Set("Access-Control-Expose-Headers", strings.Join(p.exposeHeaders, ", "))
	}
}

// writePreflight responds directly to an OPTIONS request carrying an Origin
// header, per §4.10 step 3 and §6's preflight header set.
func (p corsPolicy) writePreflight(w http.ResponseWriter, r *http.Request) {
	w.Header().Add("Vary", "Origin")
	origin := r.Header.Get("Origin")
	allowOrigin, ok := p.originAllowed(origin)
	if !ok {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	methods := p.allowMethods
	if !containsFold(methods, http.MethodOptions) {
		methods = append(append([]string{}, methods...), http.MethodOptions)
	}
	w.Header().Set("Access-Control-Allow-Origin", allowOrigin)
	w.Header().Set("Access-Control-Allow-Methods", strings.Join(methods, ", "))
	if len(p.allowHeaders) > 0 {
		w.Header().Set("Access-Control-Allow-Headers", strings.Join(p.allowHeaders, ", "))
	}
	if p.allowCredentials {
		w.Header().Set("Access-Control-Allow-Credentials", "true")
	}
	w.WriteHeader(http.StatusNoContent)
}

func containsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}
