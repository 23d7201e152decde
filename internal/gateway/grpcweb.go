package gateway

import (
	"errors"
	"net/http"

	grpcadapter "github.com/cedros-gateway/gateway/internal/adapter/grpc"
	gwerrors "github.com/cedros-gateway/gateway/internal/errors"
	"github.com/cedros-gateway/gateway/internal/pipeline"
	"github.com/cedros-gateway/gateway/internal/resolver"
)

// serveGRPCWeb bridges the optional grpc-web ingress (§4.9.4, §6) directly
// onto Gateway.GRPCWeb rather than through Pipeline.ServeHTTP: the wire
// framing this ingress decodes (base64 grpc-web frames) is specific to this
// one surface and the spec leaves the full upstream bridge optional, so it
// is kept a thin sibling route instead of a 17-step pipeline pass. It still
// honors the global IP policy and API-resolution/allow-list rules every
// other protocol surface enforces.
func (g *Gateway) serveGRPCWeb(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	clientIP := g.IPGate.ResolveClientIP(r)
	if err := g.IPGate.CheckGlobal(r, clientIP); err != nil {
		http.Error(w, "request origin is not permitted", http.StatusForbidden)
		return
	}

	shape, err := pipeline.ParseShape(r.URL.Path, "")
	if err != nil || shape.Protocol != "grpc-web" {
		http.Error(w, "unrecognized grpc-web path", http.StatusNotFound)
		return
	}

	api, err := g.Resolver.GetAPI(ctx, "", shape.APIName+"/"+r.Header.Get("X-API-Version"))
	if errors.Is(err, resolver.ErrNotFound) || api == nil {
		http.Error(w, "api not found", http.StatusNotFound)
		return
	}
	if active, ok := api["active"].(bool); ok && !active {
		http.Error(w, "api not found", http.StatusNotFound)
		return
	}
	if apiType, _ := api["api_type"].(string); apiType != "GRPC" {
		http.Error(w, "api type does not match request protocol", http.StatusConflict)
		return
	}

	apiServers := stringSliceFieldGW(api, "api_servers")
	server, err := g.Router.Select(ctx, r.Header.Get("client-key"), api.ID(), "", apiServers, nil)
	if err != nil {
		http.Error(w, "no upstream server configured", http.StatusBadGateway)
		return
	}

	apiGRPCPackage, _ := api["api_grpc_package"].(string)
	allowedPackages := stringSliceFieldGW(api, "api_grpc_allowed_packages")
	pkg, err := grpcadapter.ResolvePackage(apiGRPCPackage, "", shape.APIName, r.Header.Get("X-API-Version"), allowedPackages)
	if err != nil {
		writeGRPCWebErr(w, err)
		return
	}
	allow := grpcadapter.AllowLists{
		Packages: allowedPackages,
		Services: stringSliceFieldGW(api, "api_grpc_allowed_services"),
		Methods:  stringSliceFieldGW(api, "api_grpc_allowed_methods"),
	}

	g.GRPCWeb.Handle(ctx, w, r, server, pkg, shape.Service, shape.Method, allow)
}

func writeGRPCWebErr(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), gwerrors.ErrCodeSchemaViolation.HTTPStatus())
}

func stringSliceFieldGW(doc map[string]interface{}, field string) []string {
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
