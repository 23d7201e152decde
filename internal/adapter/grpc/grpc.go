package grpcadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/dynamicpb"
)

// ErrForbidden is returned when the resolved package, service, or
// Service.Method string is not present on a configured allow-list.
type ErrForbidden struct{ Reason string }

func (e *ErrForbidden) Error() string { return "grpcadapter: forbidden: " + e.Reason }

// Request is the decoded inbound gRPC-over-HTTP request body.
type Request struct {
	Method  string          `json:"method" validate:"required"`
	Message json.RawMessage `json:"message"`
	Package string          `json:"package,omitempty"`
}

// AllowLists constrains which packages, services, and Service.Method strings
// an API may dispatch, sourced from its api_grpc_allowed_packages /
// api_grpc_allowed_services / api_grpc_allowed_methods configuration. A nil
// or empty slice leaves that dimension unrestricted.
type AllowLists struct {
	Packages []string
	Services []string
	Methods  []string
}

func (a AllowLists) allows(pkg, service, serviceMethod string) error {
	if len(a.Packages) > 0 && !contains(a.Packages, pkg) {
		return &ErrForbidden{Reason: fmt.Sprintf("package %q is not allow-listed", pkg)}
	}
	if len(a.Services) > 0 && !contains(a.Services, service) {
		return &ErrForbidden{Reason: fmt.Sprintf("service %q is not allow-listed", service)}
	}
	if len(a.Methods) > 0 && !contains(a.Methods, serviceMethod) {
		return &ErrForbidden{Reason: fmt.Sprintf("method %q is not allow-listed", serviceMethod)}
	}
	return nil
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// ResolvePackage determines the protobuf package module per the
// configured/request/derived precedence: an explicit api_grpc_package always
// wins, else the request body's own "package" field (subject to the allow
// list), else a name derived from apiName/apiVersion.
func ResolvePackage(apiGRPCPackage, requestPackage, apiName, apiVersion string, allowed []string) (string, error) {
	if apiGRPCPackage != "" {
		return apiGRPCPackage, nil
	}
	if requestPackage != "" {
		if len(allowed) > 0 && !contains(allowed, requestPackage) {
			return "", &ErrForbidden{Reason: fmt.Sprintf("package %q is not allow-listed", requestPackage)}
		}
		return requestPackage, nil
	}
	return DefaultPackage(apiName, apiVersion), nil
}

// Adapter dispatches unary gRPC calls resolved through a descriptor Registry
// over connections drawn from a ConnPool.
type Adapter struct {
	registry *Registry
	conns    *ConnPool
}

// New builds a gRPC Adapter over registry and conns.
func New(registry *Registry, conns *ConnPool) *Adapter {
	return &Adapter{registry: registry, conns: conns}
}

// Invoke resolves method's descriptor within pkg, constructs the request
// message from req.Message via protojson, dispatches it over server, and
// returns the reply marshaled back to JSON.
func (a *Adapter) Invoke(ctx context.Context, server, pkg string, req Request, allow AllowLists) (json.RawMessage, error) {
	service, method, err := SplitServiceMethod(req.Method)
	if err != nil {
		return nil, err
	}
	if err := allow.allows(pkg, service, req.Method); err != nil {
		return nil, err
	}

	desc, ok := a.registry.Lookup(pkg, service, method)
	if !ok {
		return nil, fmt.Errorf("grpcadapter: unknown method %s.%s/%s", pkg, service, method)
	}

	conn, err := a.conns.Get(server)
	if err != nil {
		return nil, err
	}

	reqMsg := dynamicpb.NewMessage(desc.Input())
	if len(req.Message) > 0 {
		if err := protojson.Unmarshal(req.Message, reqMsg); err != nil {
			return nil, fmt.Errorf("grpcadapter: decode request message: %w", err)
		}
	}

	replyMsg := dynamicpb.NewMessage(desc.Output())
	fullMethod := fmt.Sprintf("/%s.%s/%s", pkg, service, method)
	if err := conn.Invoke(ctx, fullMethod, reqMsg, replyMsg); err != nil {
		return nil, err
	}

	out, err := protojson.Marshal(replyMsg)
	if err != nil {
		return nil, fmt.Errorf("grpcadapter: encode reply message: %w", err)
	}
	return out, nil
}

// StatusToHTTP maps a gRPC status (or a non-gRPC error) to the HTTP status
// code the gateway should surface, per the fixed table: OK maps to 200,
// UNAVAILABLE is the caller's cue to retry (mapped to 503 if exhausted),
// PERMISSION_DENIED to 403, NOT_FOUND to 404, INVALID_ARGUMENT to 400, and
// everything else to 502.
func StatusToHTTP(err error) int {
	if err == nil {
		return http.StatusOK
	}
	st, ok := status.FromError(err)
	if !ok {
		return http.StatusBadGateway
	}
	switch st.Code() {
	case codes.OK:
		return http.StatusOK
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.InvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

// IsRetryable reports whether err's gRPC status is UNAVAILABLE, the only
// status the resilience layer retries per the outbound resilience policy.
func IsRetryable(err error) bool {
	st, ok := status.FromError(err)
	return ok && st.Code() == codes.Unavailable
}

// ErrorMessage extracts a human-readable message from a gRPC status error,
// falling back to err.Error() for non-gRPC errors.
func ErrorMessage(err error) string {
	if st, ok := status.FromError(err); ok {
		return st.Message()
	}
	return err.Error()
}

// NormalizePackage trims a user-supplied package string so lookups are
// forgiving of surrounding whitespace.
func NormalizePackage(pkg string) string {
	return strings.TrimSpace(pkg)
}
