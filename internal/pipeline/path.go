package pipeline

import (
	"fmt"
	"strings"

	"github.com/cedros-gateway/gateway/internal/store"
)

// Shape is the parsed inbound wire shape (§6 EXTERNAL INTERFACES): which
// protocol family the request targets and the identifiers carried in the
// path/header, before any API or endpoint document has been resolved.
type Shape struct {
	Protocol   string // "rest", "soap", "graphql", "grpc", "grpc-web"
	APIName    string
	APIVersion string // empty for graphql/grpc; read from X-API-Version
	Service    string // grpc-web only
	Method     string // grpc-web only
	Tail       string // rest/soap only: everything after {name}/{version}/
}

// ErrUnrecognizedPath is returned when the request path matches none of the
// gateway's wire surfaces.
type ErrUnrecognizedPath struct{ Path string }

func (e *ErrUnrecognizedPath) Error() string {
	return fmt.Sprintf("pipeline: unrecognized path %q", e.Path)
}

// ParseShape classifies r's path/header against the fixed wire surface of
// §6: /api/rest, /api/soap, /api/graphql, /api/grpc, /grpc-web.
func ParseShape(path, apiVersionHeader string) (Shape, error) {
	switch {
	case strings.HasPrefix(path, "/api/rest/"):
		name, version, tail, err := splitNameVersionTail(strings.TrimPrefix(path, "/api/rest/"))
		if err != nil {
			return Shape{}, err
		}
		return Shape{Protocol: "rest", APIName: name, APIVersion: version, Tail: tail}, nil

	case strings.HasPrefix(path, "/api/soap/"):
		name, version, tail, err := splitNameVersionTail(strings.TrimPrefix(path, "/api/soap/"))
		if err != nil {
			return Shape{}, err
		}
		return Shape{Protocol: "soap", APIName: name, APIVersion: version, Tail: tail}, nil

	case strings.HasPrefix(path, "/api/graphql/"):
		name := strings.Trim(strings.TrimPrefix(path, "/api/graphql/"), "/")
		if name == "" {
			return Shape{}, &ErrUnrecognizedPath{Path: path}
		}
		return Shape{Protocol: "graphql", APIName: name, APIVersion: apiVersionHeader}, nil

	case strings.HasPrefix(path, "/api/grpc/"):
		name := strings.Trim(strings.TrimPrefix(path, "/api/grpc/"), "/")
		if name == "" {
			return Shape{}, &ErrUnrecognizedPath{Path: path}
		}
		return Shape{Protocol: "grpc", APIName: name, APIVersion: apiVersionHeader}, nil

	case strings.HasPrefix(path, "/grpc-web/"):
		segs := strings.Split(strings.Trim(strings.TrimPrefix(path, "/grpc-web/"), "/"), "/")
		if len(segs) != 3 {
			return Shape{}, &ErrUnrecognizedPath{Path: path}
		}
		return Shape{Protocol: "grpc-web", APIName: segs[0], Service: segs[1], Method: segs[2]}, nil
	}
	return Shape{}, &ErrUnrecognizedPath{Path: path}
}

func splitNameVersionTail(rest string) (name, version, tail string, err error) {
	rest = strings.TrimPrefix(rest, "/")
	segs := strings.SplitN(rest, "/", 3)
	if len(segs) < 2 || segs[0] == "" || segs[1] == "" {
		return "", "", "", fmt.Errorf("pipeline: path missing api name/version")
	}
	name, version = segs[0], segs[1]
	if len(segs) == 3 {
		tail = segs[2]
	}
	return name, version, tail, nil
}

// MatchEndpoint finds the endpoint document among endpoints whose method and
// {param}-wildcarded uri match method/tail exactly (segment count included);
// a {param} segment matches any single segment, and its value is neither
// captured nor substituted back into the forwarded tail, per §4.9.1.
func MatchEndpoint(endpoints []store.Doc, method, tail string) (store.Doc, bool) {
	tailSegs := splitTail(tail)
	for _, ep := range endpoints {
		epMethod, _ := ep["method"].(string)
		if !strings.EqualFold(epMethod, method) {
			continue
		}
		uri, _ := ep["uri"].(string)
		if uriMatches(uri, tailSegs) {
			return ep, true
		}
	}
	return nil, false
}

func splitTail(tail string) []string {
	tail = strings.Trim(tail, "/")
	if tail == "" {
		return nil
	}
	return strings.Split(tail, "/")
}

func uriMatches(uri string, tailSegs []string) bool {
	patternSegs := splitTail(uri)
	if len(patternSegs) != len(tailSegs) {
		return false
	}
	for i, seg := range patternSegs {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			continue
		}
		if seg != tailSegs[i] {
			return false
		}
	}
	return true
}
