// Package graphql implements the GraphQL Protocol Adapter (C9.3): depth and
// complexity guards plus upstream forwarding, directly grounded on the
// original Python source's utils/graphql_util.py (regex-stripped
// comment/string-literal brace counting for depth, keyword-filtered
// identifier counting for complexity).
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/cedros-gateway/gateway/internal/adapter"
	"github.com/cedros-gateway/gateway/internal/invoker"
)

// ErrDepthExceeded and ErrComplexityExceeded are returned by the respective
// guards.
type ErrDepthExceeded struct{ Depth, Max int }

func (e *ErrDepthExceeded) Error() string {
	return fmt.Sprintf("graphql: query depth %d exceeds maximum allowed depth of %d", e.Depth, e.Max)
}

type ErrComplexityExceeded struct{ Score, Max int }

func (e *ErrComplexityExceeded) Error() string {
	return fmt.Sprintf("graphql: query complexity %d exceeds maximum allowed complexity of %d", e.Score, e.Max)
}

// ErrSubscriptionUnsupported is returned when the query's operation type is
// "subscription"; the default transport is request/response only.
var ErrSubscriptionUnsupported = fmt.Errorf("graphql: subscription operations are not supported over this transport")

var (
	commentRe    = regexp.MustCompile(`(?m)#.*$`)
	dblQuotedRe  = regexp.MustCompile(`"[^"]*"`)
	sglQuotedRe  = regexp.MustCompile(`'[^']*'`)
	identifierRe = regexp.MustCompile(`\b[a-zA-Z_][a-zA-Z0-9_]*\b`)
	subscriptionRe = regexp.MustCompile(`(?m)^\s*subscription\b`)
)

var complexityKeywords = map[string]bool{
	"query": true, "mutation": true, "subscription": true, "fragment": true,
	"on": true, "true": true, "false": true, "null": true,
}

func stripCommentsAndStrings(query string) string {
	query = commentRe.ReplaceAllString(query, "")
	query = dblQuotedRe.ReplaceAllString(query, `""`)
	query = sglQuotedRe.ReplaceAllString(query, `''`)
	return query
}

// Depth calculates the maximum brace-nesting depth of query, ignoring
// comments and string literal contents so braces inside a string never
// inflate the count.
func Depth(query string) int {
	if query == "" {
		return 0
	}
	cleaned := stripCommentsAndStrings(query)

	max, current := 0, 0
	for _, r := range cleaned {
		switch r {
		case '{':
			current++
			if current > max {
				max = current
			}
		case '}':
			if current > 0 {
				current--
			}
		}
	}
	return max
}

// Complexity estimates a query's cost as its identifier count, excluding
// GraphQL keywords, matching the original's field-count heuristic.
func Complexity(query string) int {
	if query == "" {
		return 0
	}
	cleaned := commentRe.ReplaceAllString(query, "")
	cleaned = dblQuotedRe.ReplaceAllString(cleaned, "")

	count := 0
	for _, ident := range identifierRe.FindAllString(cleaned, -1) {
		if !complexityKeywords[strings.ToLower(ident)] {
			count++
		}
	}
	return count
}

// IsSubscription reports whether query's operation type is "subscription".
func IsSubscription(query string) bool {
	return subscriptionRe.MatchString(strings.TrimSpace(query))
}

// Request is the incoming GraphQL request body.
type Request struct {
	Query         string          `json:"query" validate:"required"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	OperationName string          `json:"operationName,omitempty"`
}

// Guard validates query against the configured depth and complexity caps,
// and rejects subscription operations unconditionally.
func Guard(query string, maxDepth, maxComplexity int) error {
	if IsSubscription(query) {
		return ErrSubscriptionUnsupported
	}
	if maxDepth > 0 {
		if d := Depth(query); d > maxDepth {
			return &ErrDepthExceeded{Depth: d, Max: maxDepth}
		}
	}
	if maxComplexity > 0 {
		if c := Complexity(query); c > maxComplexity {
			return &ErrComplexityExceeded{Score: c, Max: maxComplexity}
		}
	}
	return nil
}

// Adapter forwards GraphQL requests to a chosen upstream server.
type Adapter struct {
	invoker *invoker.Invoker
}

// New builds a GraphQL Adapter over inv.
func New(inv *invoker.Invoker) *Adapter {
	return &Adapter{invoker: inv}
}

// Forward proxies the request body unchanged to server.
func (a *Adapter) Forward(ctx context.Context, apiKey, server string, r *http.Request, allowedSensitive map[string]bool, authField string, maxRetries int) (*http.Response, error) {
	var body io.Reader
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read GraphQL request body: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, server, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	upstreamReq.Header = adapter.SanitizeHeaders(r.Header, allowedSensitive, authField)
	upstreamReq.Header.Set("Content-Type", "application/json")

	return a.invoker.Do(ctx, apiKey, upstreamReq, maxRetries)
}

// errorResponse is the GraphQL-convention error envelope the adapter returns
// for a non-2xx upstream response: the spec requires HTTP 200 with an
// "errors" array and an embedded "status" field carrying the real upstream
// status.
type errorResponse struct {
	Errors []errorEntry `json:"errors"`
	Status int          `json:"status"`
}

type errorEntry struct {
	Message string `json:"message"`
}

// WrapUpstreamError builds the GraphQL-convention error body for a non-2xx
// upstream response.
func WrapUpstreamError(status int, message string) ([]byte, error) {
	return json.Marshal(errorResponse{Errors: []errorEntry{{Message: message}}, Status: status})
}
