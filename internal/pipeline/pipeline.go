// Package pipeline implements the Request Pipeline (C10): the ordered,
// short-circuiting sequence of steps every inbound call passes through,
// wiring together every other component into one normalized request/response
// cycle (§4.10). Grounded on CedrosPay-server's handler-chain composition
// style, generalized from a fixed chi middleware stack into an explicit,
// step-numbered orchestrator since the spec's steps branch on resolved
// document state (the matched API's policy fields) that chi middleware
// ordering cannot see ahead of routing.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	graphqladapter "github.com/cedros-gateway/gateway/internal/adapter/graphql"
	grpcadapter "github.com/cedros-gateway/gateway/internal/adapter/grpc"
	"github.com/cedros-gateway/gateway/internal/adapter/rest"
	"github.com/cedros-gateway/gateway/internal/adapter/soap"
	"github.com/cedros-gateway/gateway/internal/config"
	gwerrors "github.com/cedros-gateway/gateway/internal/errors"
	"github.com/cedros-gateway/gateway/internal/identity"
	"github.com/cedros-gateway/gateway/internal/invoker"
	"github.com/cedros-gateway/gateway/internal/ippolicy"
	"github.com/cedros-gateway/gateway/internal/jsonvalue"
	"github.com/cedros-gateway/gateway/internal/limiter"
	"github.com/cedros-gateway/gateway/internal/logger"
	"github.com/cedros-gateway/gateway/internal/metrics"
	"github.com/cedros-gateway/gateway/internal/resolver"
	"github.com/cedros-gateway/gateway/internal/router"
	"github.com/cedros-gateway/gateway/internal/store"
)

// stepError is raised by any pipeline step to short-circuit the request with
// a typed, coded response (§7 error taxonomy).
type stepError struct {
	Code    gwerrors.ErrorCode
	Message string
	Details map[string]interface{}
}

func (e *stepError) Error() string { return e.Message }

func fail(code gwerrors.ErrorCode, message string) error {
	return &stepError{Code: code, Message: message}
}

// Deps aggregates every component the pipeline orchestrates. All fields are
// required; Pipeline performs no nil-checking beyond what a programmer error
// would already panic on, matching the teacher's fail-fast-at-wiring-time
// constructors.
type Deps struct {
	Resolver   *resolver.Resolver
	Store      store.Store
	Limiter    *limiter.Limiter
	IPGate     *ippolicy.Gate
	Router     *router.Router
	Minter     *identity.Minter
	Revocation *identity.RevocationIndex
	REST       *rest.Adapter
	SOAP       *soap.Adapter
	GraphQL    *graphqladapter.Adapter
	GRPC       *grpcadapter.Adapter
	Invoker    *invoker.Invoker
	Metrics    *metrics.Metrics
	Identity   config.IdentityConfig
	Server     config.ServerConfig
	Gateway    config.GatewayConfig
}

// Pipeline is the C10 request orchestrator; one instance serves every
// protocol path the gateway exposes.
type Pipeline struct {
	Deps
}

// New builds a Pipeline from d.
func New(d Deps) *Pipeline {
	return &Pipeline{Deps: d}
}

// requestState accumulates the pipeline's resolved state as steps succeed,
// so later steps (limiters, audit, metrics) can read what earlier steps
// already looked up without re-querying the store.
type requestState struct {
	requestID  string
	shape      Shape
	api        store.Doc
	endpoint   store.Doc
	claims     *identity.Claims
	user       store.Doc
	tier       store.Doc
	isPublic   bool
	isSuperAdmin bool
	release    func()
}

// ServeHTTP implements http.Handler, running every step of §4.10 for r and
// writing a single response to w.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	requestID := logger.GetRequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
		ctx = logger.WithRequestID(ctx, requestID)
	}
	r = r.WithContext(ctx)
	st := &requestState{requestID: requestID}

	status, apiLabel, endpointLabel, respBytes := p.run(w, r, st)

	p.Metrics.ObserveRequest(apiLabel, endpointLabel, strconv.Itoa(status), time.Since(start), respBytes)
	p.auditIfModification(ctx, r, st, status)
}

// run executes every step, writing either the upstream response envelope or
// a typed error response, and returns the status/labels the caller records
// as metrics.
func (p *Pipeline) run(w http.ResponseWriter, r *http.Request, st *requestState) (status int, apiLabel, endpointLabel string, respBytes int) {
	ctx := r.Context()
	strict := p.Server.StrictResponseEnvelope

	// Step 2: global IP check.
	clientIP := p.IPGate.ResolveClientIP(r)
	if err := p.IPGate.CheckGlobal(r, clientIP); err != nil {
		p.Metrics.ObserveIPPolicyDenied("global", "denied")
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeIPBlocked, "request origin is not permitted"))
	}

	// Steps 3+4: resolve the protocol shape and API document together, since
	// preflight CORS needs the matched API's own policy (or platform
	// defaults when the path names no known API yet).
	shape, err := ParseShape(r.URL.Path, r.Header.Get("X-API-Version"))
	if err != nil {
		if r.Method == http.MethodOptions && r.Header.Get("Origin") != "" {
			platformCORS(p.Server).writePreflight(w, r)
			return http.StatusNoContent, "", "", 0
		}
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeAPINotFound, "unrecognized request path"))
	}
	st.shape = shape
	apiLabel = shape.APIName + "/" + shape.APIVersion

	api, err := p.Resolver.GetAPI(ctx, "", shape.APIName+"/"+shape.APIVersion)
	if errors.Is(err, resolver.ErrNotFound) {
		if r.Method == http.MethodOptions && r.Header.Get("Origin") != "" {
			platformCORS(p.Server).writePreflight(w, r)
			return http.StatusNoContent, apiLabel, "", 0
		}
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeAPINotFound, "api not found"))
	}
	if err != nil {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeInternalError, "api lookup failed"))
	}
	if active, ok := api["active"].(bool); ok && !active {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeAPINotFound, "api not found"))
	}
	if apiType, _ := api["api_type"].(string); !strings.EqualFold(apiType, protocolAPIType(shape.Protocol)) {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeAPITypeMismatch, "api type does not match request protocol"))
	}
	st.api = api

	cors := apiCORS(api, platformCORS(p.Server))
	if r.Method == http.MethodOptions && r.Header.Get("Origin") != "" {
		cors.writePreflight(w, r)
		return http.StatusNoContent, apiLabel, "", 0
	}
	if origin := r.Header.Get("Origin"); origin != "" {
		cors.applyHeaders(w, origin)
	}

	st.isPublic, _ = api["api_public"].(bool)
	authRequired := true
	if v, ok := api["api_auth_required"].(bool); ok {
		authRequired = v
	}

	// Step 5: identity.
	if !st.isPublic && authRequired {
		claims, err := p.authenticate(ctx, r)
		if err != nil {
			p.Metrics.ObserveAuthAttempt("failure")
			return p.writeErr(w, strict, st.requestID, err)
		}
		p.Metrics.ObserveAuthAttempt("success")
		st.claims = claims
		st.isSuperAdmin = claims.Subject == "admin"

		user, err := p.lookupUser(ctx, claims.Subject)
		if err != nil {
			return p.writeErr(w, strict, st.requestID, err)
		}
		st.user = user

		// Step 6: authorization.
		if !st.isSuperAdmin {
			if err := p.authorize(ctx, api, user); err != nil {
				return p.writeErr(w, strict, st.requestID, err)
			}
		}

		// Step 7: subscription.
		if !st.isSuperAdmin {
			if err := p.checkSubscription(ctx, claims.Subject, shape.APIName, shape.APIVersion); err != nil {
				return p.writeErr(w, strict, st.requestID, err)
			}
		}

		if tierID, _ := user["tier_id"].(string); tierID != "" {
			tier, err := p.Resolver.GetTier(ctx, tierID)
			if err == nil {
				st.tier = tier
			}
		}
	} else {
		st.user = store.Doc{}
	}

	// Step 8: per-API IP policy.
	apiMode, _ := api["api_ip_mode"].(string)
	if apiMode != "" {
		if err := p.IPGate.CheckAPI(r, clientIP, apiMode, stringSliceField(api, "api_ip_whitelist"), stringSliceField(api, "api_ip_blacklist")); err != nil {
			p.Metrics.ObserveIPPolicyDenied(apiLabel, "denied")
			return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeIPNotWhitelisted, "client ip is not permitted for this api"))
		}
	}

	// Step 9: endpoint resolution.
	endpoints, err := p.Resolver.GetAPIEndpoints(ctx, api.ID())
	if err != nil {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeInternalError, "endpoint lookup failed"))
	}
	var endpoint store.Doc
	if shape.Protocol == "rest" || shape.Protocol == "soap" {
		ep, ok := MatchEndpoint(endpoints, r.Method, shape.Tail)
		if !ok {
			return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeEndpointNotFound, "endpoint not found"))
		}
		endpoint = ep
		st.endpoint = ep
		endpointLabel = r.Method + " " + shape.Tail
	}

	// Step 10: validation.
	bodyBytes, err := readBody(r)
	if err != nil {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeInvalidField, "failed to read request body"))
	}
	if endpoint != nil {
		if err := p.validate(ctx, shape.Protocol, endpoint, bodyBytes); err != nil {
			p.Metrics.ObserveValidationError(apiLabel, endpointLabel, err.Error())
			return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeSchemaViolation, err.Error()))
		}
	}

	// Step 11: limiters. Anonymous (public/no-auth) traffic is bucketed by
	// client IP so unauthenticated callers still share a bound rather than
	// an unlimited empty-username pool.
	limiterUsername := usernameOf(st.claims)
	if limiterUsername == "" {
		limiterUsername = clientIP
	}
	if st.user != nil {
		release, err := p.Limiter.Enforce(ctx, limiter.Request{
			Username:      limiterUsername,
			Tier:          st.tier,
			User:          st.user,
			API:           api,
			ContentLength: int64(len(bodyBytes)),
			IsSuperAdmin:  st.isSuperAdmin,
			IsPublicAPI:   st.isPublic,
		})
		if err != nil {
			return p.writeErr(w, strict, st.requestID, limiterErrToStep(err))
		}
		st.release = release
		defer release()
	}

	// Step 12: upstream selection.
	apiServers := stringSliceField(api, "api_servers")
	var endpointServers []string
	endpointID := ""
	if endpoint != nil {
		endpointServers = stringSliceField(endpoint, "endpoint_servers")
		endpointID = endpoint.ID()
	}
	server, err := p.Router.Select(ctx, r.Header.Get("client-key"), api.ID(), endpointID, apiServers, endpointServers)
	if err != nil {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeUpstreamUnavailable, "no upstream server configured"))
	}

	// Step 13: header prep (allowed-sensitive set + auth field swap).
	allowedSensitive := map[string]bool{}
	for _, h := range stringSliceField(api, "api_allowed_sensitive_headers") {
		allowedSensitive[strings.ToLower(h)] = true
	}
	authField, _ := api["api_authorization_field_swap"].(string)
	maxRetries := -1
	if v, ok := api["api_allowed_retry_count"].(float64); ok {
		maxRetries = int(v)
	}
	apiKey := fmt.Sprintf("%s:%s/%s", shape.Protocol, shape.APIName, shape.APIVersion)

	// Step 14: adapter invocation.
	p.applyCreditHeader(ctx, api, usernameOf(st.claims), r)
	r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	resp, err := p.invoke(ctx, shape, api, server, r, allowedSensitive, authField, apiKey, maxRetries)
	if err != nil {
		return p.writeErr(w, strict, st.requestID, upstreamErrToStep(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeUpstreamUnavailable, "failed to read upstream response"))
	}

	// Step 15: response envelope. GraphQL upstream errors surface as HTTP 200
	// with a GraphQL-convention "errors" array and the real status embedded,
	// per the transport's own error convention, instead of passing the raw
	// non-2xx status through like every other protocol.
	sentStatus := resp.StatusCode
	if shape.Protocol == "graphql" && resp.StatusCode >= 300 {
		wrapped, err := graphqladapter.WrapUpstreamError(resp.StatusCode, string(respBody))
		if err != nil {
			return p.writeErr(w, strict, st.requestID, fail(gwerrors.ErrCodeUpstreamUnavailable, "failed to wrap upstream error"))
		}
		respBody = wrapped
		sentStatus = http.StatusOK
	}
	writeUpstreamResponse(w, strict, st.requestID, sentStatus, resp.Header, respBody)

	// Step 16: post-limit bandwidth accounting.
	if st.user != nil {
		total := int64(len(bodyBytes) + len(respBody))
		_ = p.Limiter.RecordBandwidth(ctx, limiterUsername, total)
	}

	return sentStatus, apiLabel, endpointLabel, len(respBody)
}

func usernameOf(claims *identity.Claims) string {
	if claims == nil {
		return ""
	}
	return claims.Subject
}

func protocolAPIType(protocol string) string {
	switch protocol {
	case "rest":
		return "REST"
	case "soap":
		return "SOAP"
	case "graphql":
		return "GRAPHQL"
	case "grpc", "grpc-web":
		return "GRPC"
	default:
		return ""
	}
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}

// writeErr renders err (a *stepError or an unexpected error) and returns the
// status/labels the caller feeds to metrics.
func (p *Pipeline) writeErr(w http.ResponseWriter, strict bool, requestID string, err error) (int, string, string, int) {
	var se *stepError
	if !errors.As(err, &se) {
		se = &stepError{Code: gwerrors.ErrCodeInternalError, Message: err.Error()}
	}
	writeStepError(w, strict, requestID, se.Code, se.Message, se.Details)
	return se.Code.HTTPStatus(), "", "", 0
}

func limiterErrToStep(err error) error {
	if errors.Is(err, limiter.ErrCreditsExhausted) {
		return fail(gwerrors.ErrCodeInsufficientCredits, "credits exhausted")
	}
	return fail(gwerrors.ErrCodeRateLimitExceeded, "rate limit exceeded")
}

// upstreamErrToStep translates an Invoker.Do failure into a stepError,
// embedding the real upstream condition in Details per spec.md:255 ("502
// with the upstream status embedded") rather than returning a bare generic
// message — the client otherwise has no way to tell a DNS failure from a
// read timeout from a connection reset.
func upstreamErrToStep(err error) error {
	if errors.Is(err, invoker.ErrCircuitOpen) {
		return fail(gwerrors.ErrCodeCircuitOpen, "upstream circuit is open")
	}
	se := &stepError{
		Code:    gwerrors.ErrCodeUpstreamUnavailable,
		Message: "upstream call failed",
		Details: map[string]interface{}{"upstream_error": err.Error()},
	}
	return se
}

// authenticate reads a bearer token from the Authorization header or the
// access cookie, verifies it, and enforces the CSRF pairing rule when
// required (§4.4).
func (p *Pipeline) authenticate(ctx context.Context, r *http.Request) (*identity.Claims, error) {
	token := bearerToken(r)
	if token == "" {
		if c, err := r.Cookie(identity.AccessCookieName); err == nil {
			token = c.Value
		}
	}
	if token == "" {
		return nil, fail(gwerrors.ErrCodeInvalidCredentials, "missing credentials")
	}

	claims, err := p.Minter.Verify(token, func(username, jti string) bool {
		return p.Revocation.IsRevoked(ctx, username, jti)
	})
	if err != nil {
		return nil, fail(gwerrors.ErrCodeSessionExpired, "invalid or expired session")
	}

	if p.Identity.RequireCSRF {
		csrfToken := r.Header.Get("X-CSRF-Token")
		if !identity.VerifyCSRFToken(csrfToken, claims.Subject, claims.ID) {
			return nil, fail(gwerrors.ErrCodeCSRFMismatch, "csrf token mismatch")
		}
	}
	return claims, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(auth, prefix) {
		return strings.TrimPrefix(auth, prefix)
	}
	return ""
}

func (p *Pipeline) lookupUser(ctx context.Context, username string) (store.Doc, error) {
	if username == "admin" {
		doc, err := p.Store.FindOne(ctx, store.CollectionUsers, store.Filter{"username": "admin"})
		if errors.Is(err, store.ErrNotFound) {
			return nil, fail(gwerrors.ErrCodeUserNotFound, "user not found")
		}
		return doc, err
	}
	user, err := p.Resolver.GetUser(ctx, username)
	if errors.Is(err, resolver.ErrNotFound) {
		return nil, fail(gwerrors.ErrCodeUserNotFound, "user not found")
	}
	if err != nil {
		return nil, fail(gwerrors.ErrCodeInternalError, "user lookup failed")
	}
	if active, ok := user["active"].(bool); ok && !active {
		return nil, fail(gwerrors.ErrCodeUserDisabled, "user is disabled")
	}
	return user, nil
}

// authorize enforces step 6: role ∈ api_allowed_roles OR group ∈
// api_allowed_groups OR "ALL" ∈ api_allowed_groups.
func (p *Pipeline) authorize(ctx context.Context, api, user store.Doc) error {
	allowedRoles := stringSliceField(api, "api_allowed_roles")
	allowedGroups := stringSliceField(api, "api_allowed_groups")
	if len(allowedRoles) == 0 && len(allowedGroups) == 0 {
		return nil
	}

	role, _ := user["role"].(string)
	if role != "" && containsFold(allowedRoles, role) {
		return nil
	}

	groups := stringSliceField(user, "groups")
	if containsFold(allowedGroups, "ALL") {
		return nil
	}
	for _, g := range groups {
		if containsFold(allowedGroups, g) {
			return nil
		}
	}
	return fail(gwerrors.ErrCodeRoleDenied, "user is not authorized for this api")
}

func (p *Pipeline) checkSubscription(ctx context.Context, username, apiName, apiVersion string) error {
	subs, err := p.Resolver.GetSubscriptions(ctx, username)
	if err != nil {
		return fail(gwerrors.ErrCodeInternalError, "subscription lookup failed")
	}
	nameVersion := apiName + "/" + apiVersion
	for _, s := range subs {
		if nv, _ := s["api_name_version"].(string); nv == nameVersion {
			return nil
		}
	}
	return fail(gwerrors.ErrCodeSubscriptionRequired, "not subscribed to this api")
}

// validate applies the endpoint's configured validation schema, if any, to
// the request body (§4.10 step 10).
func (p *Pipeline) validate(ctx context.Context, protocol string, endpoint store.Doc, body []byte) error {
	schemaID, _ := endpoint["validation_schema_id"].(string)
	if schemaID == "" {
		return nil
	}
	schemaDoc, err := p.Store.FindOne(ctx, store.CollectionEndpointValidation, store.Filter{"_id": schemaID})
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	switch protocol {
	case "soap":
		return soap.Validate(body, soapSchemaFromDoc(schemaDoc))
	default:
		if len(body) == 0 {
			return nil
		}
		root, err := jsonvalue.Parse(body)
		if err != nil {
			return fmt.Errorf("request body is not valid json: %w", err)
		}
		return jsonvalue.Validate(root, schemaFromDoc(schemaDoc))
	}
}

// invoke dispatches to the protocol adapter matching shape.Protocol.
func (p *Pipeline) invoke(ctx context.Context, shape Shape, api store.Doc, server string, r *http.Request, allowedSensitive map[string]bool, authField, apiKey string, maxRetries int) (*http.Response, error) {
	switch shape.Protocol {
	case "rest":
		return p.REST.Forward(ctx, apiKey, server, shape.APIName, shape.APIVersion, shape.Tail, r, allowedSensitive, authField, maxRetries)
	case "soap":
		return p.SOAP.Forward(ctx, apiKey, server, shape.APIName, shape.APIVersion, shape.Tail, r, allowedSensitive, authField, maxRetries)
	case "graphql":
		return p.forwardGraphQL(ctx, shape, api, apiKey, server, r, allowedSensitive, authField, maxRetries)
	case "grpc", "grpc-web":
		return p.invokeGRPC(ctx, shape, api, server, r)
	default:
		return nil, fmt.Errorf("pipeline: unsupported protocol %q", shape.Protocol)
	}
}

// applyCreditHeader injects the credit group's upstream API key into its
// configured header when the API has api_credits_enabled, honoring a
// user-specific key override over the group-level one (§4.5, §4.9.1).
func (p *Pipeline) applyCreditHeader(ctx context.Context, api store.Doc, username string, r *http.Request) {
	enabled, _ := api["api_credits_enabled"].(bool)
	group, _ := api["api_credit_group"].(string)
	if !enabled || group == "" {
		return
	}

	groupDoc, err := p.Store.FindOne(ctx, store.CollectionCreditGroups, store.Filter{"_id": group})
	if err != nil {
		return
	}
	headerName, _ := groupDoc["upstream_header_name"].(string)
	key, _ := groupDoc["upstream_api_key"].(string)

	if username != "" {
		if userCredits, err := p.Store.FindOne(ctx, store.CollectionUserCredits, store.Filter{"username": username, "credit_group": group}); err == nil {
			if override, ok := userCredits["user_api_key"].(string); ok && override != "" {
				key = override
			}
		}
	}

	if headerName != "" && key != "" {
		r.Header.Set(headerName, key)
	}
}

func (p *Pipeline) forwardGraphQL(ctx context.Context, shape Shape, api store.Doc, apiKey, server string, r *http.Request, allowedSensitive map[string]bool, authField string, maxRetries int) (*http.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	var req graphqladapter.Request
	if err := jsonvalue.DecodeAndValidate(body, &req); err != nil {
		return nil, fail(gwerrors.ErrCodeMissingField, "graphql request must carry a query")
	}
	maxDepth := p.Gateway.GraphQLMaxDepth
	maxComplexity := p.Gateway.GraphQLMaxComplexity
	if err := graphqladapter.Guard(req.Query, maxDepth, maxComplexity); err != nil {
		return nil, fail(gwerrors.ErrCodeSchemaViolation, err.Error())
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return p.GraphQL.Forward(ctx, apiKey, server, r, allowedSensitive, authField, maxRetries)
}

func (p *Pipeline) invokeGRPC(ctx context.Context, shape Shape, api store.Doc, server string, r *http.Request) (*http.Response, error) {
	body, err := readBody(r)
	if err != nil {
		return nil, err
	}
	var req grpcadapter.Request
	if err := jsonvalue.DecodeAndValidate(body, &req); err != nil {
		return nil, fail(gwerrors.ErrCodeMissingField, "grpc request must carry a method")
	}

	apiGRPCPackage, _ := api["api_grpc_package"].(string)
	allowedPackages := stringSliceField(api, "api_grpc_allowed_packages")
	pkg, err := grpcadapter.ResolvePackage(apiGRPCPackage, req.Package, shape.APIName, shape.APIVersion, allowedPackages)
	if err != nil {
		return nil, err
	}
	allow := grpcadapter.AllowLists{
		Packages: allowedPackages,
		Services: stringSliceField(api, "api_grpc_allowed_services"),
		Methods:  stringSliceField(api, "api_grpc_allowed_methods"),
	}

	reply, err := p.GRPC.Invoke(ctx, server, pkg, req, allow)
	if err != nil {
		return grpcErrResponse(err), nil
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(reply)),
	}, nil
}

func grpcErrResponse(err error) *http.Response {
	status := grpcadapter.StatusToHTTP(err)
	body, _ := json.Marshal(map[string]string{"message": grpcadapter.ErrorMessage(err)})
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(body)),
	}
}
