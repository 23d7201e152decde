// Package soap implements the SOAP Protocol Adapter (C9.2): XML request
// forwarding with content-type normalization and optional structural
// validation of the SOAP Body, grounded on the original Python source's
// test_soap_gateway_content_types.py (content-type rewrite rules) and
// test_soap_validation_no_wsdl.py (field-map structural validation keyed by
// child element name). No direct teacher analogue exists for XML handling;
// built on stdlib encoding/xml since no XML schema-validation library
// appears anywhere in the example pack.
package soap

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/cedros-gateway/gateway/internal/adapter"
	"github.com/cedros-gateway/gateway/internal/invoker"
)

// ErrValidation is returned when the request body fails structural
// validation against an endpoint's configured schema.
type ErrValidation struct{ Reason string }

func (e *ErrValidation) Error() string { return "soap: validation failed: " + e.Reason }

// FieldRule describes one child-element constraint under the SOAP Body's
// operation element.
type FieldRule struct {
	Required bool
	Type     string // "string", currently the only type the original schema exercises
	Min      int
	Max      int
	Format   string // "email", optional
}

// Schema is a field-name-keyed structural validation schema.
type Schema map[string]FieldRule

// Adapter forwards SOAP requests to a chosen upstream server.
type Adapter struct {
	invoker *invoker.Invoker
}

// New builds a SOAP Adapter over inv.
func New(inv *invoker.Invoker) *Adapter {
	return &Adapter{invoker: inv}
}

// normalizeContentType rewrites an incoming application/xml content type to
// text/xml; charset=utf-8, while text/xml and application/soap+xml pass
// through unchanged.
func normalizeContentType(incoming string) string {
	mediaType := strings.ToLower(strings.TrimSpace(strings.SplitN(incoming, ";", 2)[0]))
	switch mediaType {
	case "text/xml", "application/soap+xml":
		return incoming
	case "application/xml", "":
		return "text/xml; charset=utf-8"
	default:
		return incoming
	}
}

// Forward proxies the SOAP envelope verbatim, normalizing Content-Type and
// adding a default empty SOAPAction header when absent.
func (a *Adapter) Forward(ctx context.Context, apiKey, server, apiName, apiVersion, tail string, r *http.Request, allowedSensitive map[string]bool, authField string, maxRetries int) (*http.Response, error) {
	upstreamURL := fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(server, "/"), apiName, apiVersion, strings.TrimLeft(tail, "/"))

	var body io.Reader
	if r.Body != nil {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, fmt.Errorf("read SOAP envelope: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	upstreamReq, err := http.NewRequestWithContext(ctx, http.MethodPost, upstreamURL, body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	upstreamReq.Header = adapter.SanitizeHeaders(r.Header, allowedSensitive, authField)
	upstreamReq.Header.Set("Content-Type", normalizeContentType(r.Header.Get("Content-Type")))
	if upstreamReq.Header.Get("SOAPAction") == "" {
		upstreamReq.Header.Set("SOAPAction", "")
	}

	return a.invoker.Do(ctx, apiKey, upstreamReq, maxRetries)
}

// envelope mirrors the minimal shape needed to reach the Body's operation
// element and its children, ignoring namespace prefixes.
type envelope struct {
	Body struct {
		Inner []byte `xml:",innerxml"`
	} `xml:"Body"`
}

// operationElement is a generic element capturing its children as
// name/text pairs, used to walk the Body's single operation element without
// needing to know its tag name ahead of time.
type operationElement struct {
	XMLName  xml.Name
	Children []struct {
		XMLName xml.Name
		Text    string `xml:",chardata"`
	} `xml:",any"`
}

// Validate checks body's SOAP Body operation element's children against
// schema, returning ErrValidation on the first failing field.
func Validate(body []byte, schema Schema) error {
	var env envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return &ErrValidation{Reason: fmt.Sprintf("malformed envelope: %v", err)}
	}

	var op operationElement
	if err := xml.Unmarshal(env.Body.Inner, &op); err != nil {
		return &ErrValidation{Reason: fmt.Sprintf("malformed operation element: %v", err)}
	}

	values := make(map[string]string, len(op.Children))
	for _, c := range op.Children {
		values[c.XMLName.Local] = strings.TrimSpace(c.Text)
	}

	for field, rule := range schema {
		value, present := values[field]
		if !present || value == "" {
			if rule.Required {
				return &ErrValidation{Reason: fmt.Sprintf("missing required field %q", field)}
			}
			continue
		}
		if rule.Min > 0 && len(value) < rule.Min {
			return &ErrValidation{Reason: fmt.Sprintf("field %q shorter than minimum length %d", field, rule.Min)}
		}
		if rule.Max > 0 && len(value) > rule.Max {
			return &ErrValidation{Reason: fmt.Sprintf("field %q longer than maximum length %d", field, rule.Max)}
		}
		if rule.Format == "email" && !looksLikeEmail(value) {
			return &ErrValidation{Reason: fmt.Sprintf("field %q is not a valid email", field)}
		}
	}
	return nil
}

func looksLikeEmail(v string) bool {
	at := strings.IndexByte(v, '@')
	return at > 0 && at < len(v)-1 && strings.Contains(v[at+1:], ".")
}
