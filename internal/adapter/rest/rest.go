// Package rest implements the REST Protocol Adapter (C9.1): request
// forwarding over the resilient invoker with the shared header hygiene pass,
// grounded on CedrosPay-server's httputil/httphandlers reverse-proxy-adjacent
// request construction style.
package rest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cedros-gateway/gateway/internal/adapter"
	"github.com/cedros-gateway/gateway/internal/invoker"
)

// AllowedMethods are the HTTP methods the REST adapter accepts.
var AllowedMethods = map[string]bool{
	http.MethodGet: true, http.MethodPost: true, http.MethodPut: true,
	http.MethodDelete: true, http.MethodPatch: true, http.MethodHead: true,
	http.MethodOptions: true,
}

// Adapter forwards REST requests to a chosen upstream server through the
// resilient invoker.
type Adapter struct {
	invoker *invoker.Invoker
}

// New builds a REST Adapter over inv.
func New(inv *invoker.Invoker) *Adapter {
	return &Adapter{invoker: inv}
}

// Forward builds the upstream URL as server + "/{apiName}/{apiVersion}/{tail}"
// (query string preserved), applies header hygiene, and proxies body
// unchanged. apiKey scopes the invoker's retry/circuit-breaker bookkeeping.
func (a *Adapter) Forward(ctx context.Context, apiKey, server, apiName, apiVersion, tail string, r *http.Request, allowedSensitive map[string]bool, authField string, maxRetries int) (*http.Response, error) {
	upstreamURL := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(server, "/"), apiName, apiVersion, strings.TrimLeft(tail, "/"))
	if r.URL.RawQuery != "" {
		upstreamURL += "?" + r.URL.RawQuery
	}

	var body io.Reader
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, r.Method, upstreamURL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	upstreamReq.Header = adapter.SanitizeHeaders(r.Header, allowedSensitive, authField)

	return a.invoker.Do(ctx, apiKey, upstreamReq, maxRetries)
}
