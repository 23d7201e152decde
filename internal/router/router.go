// Package router implements the Upstream Router (C7): upstream server
// selection with client-routing, endpoint, and API-level precedence, each
// round-robinning over its own server list. Grounded on the original Python
// source's routing_service.py (client_key-keyed routing documents carrying
// a mutable server_index) for the client-routing tier, and on the spec's
// own endpoint_server_cache description for the two lower tiers, which are
// process-lifetime counters rather than state shared with replicas, so they
// are kept as an in-process, mutex-guarded counter map instead of routed through the
// distributed Policy Cache.
package router

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cedros-gateway/gateway/internal/resolver"
	"github.com/cedros-gateway/gateway/internal/store"
)

// ErrNoServers is returned when no tier of the precedence chain has any
// upstream server configured.
var ErrNoServers = errors.New("router: no upstream servers configured")

// Router selects an upstream server for a request, honoring the spec's
// three-tier precedence: client routing, then endpoint override, then API
// default.
type Router struct {
	resolver *resolver.Resolver
	store    store.Store

	hostGateway string
	inContainer bool

	mu       sync.Mutex
	counters map[string]int
}

// New builds a Router over the given resolver and document store. hostGateway
// is the configured container host bridge address (e.g.
// "host.docker.internal"); it is only consulted when the process detects it
// is running inside a container.
func New(r *resolver.Resolver, s store.Store, hostGateway string) *Router {
	return &Router{
		resolver:    r,
		store:       s,
		hostGateway: hostGateway,
		inContainer: DetectContainer(),
		counters:    make(map[string]int),
	}
}

// Select chooses the upstream base URL for a request against apiID and
// endpointID, consulting the client-specific Routing document for clientKey
// (if present) ahead of endpoint- and API-level server lists, then rewrites
// a loopback-alias host to the container host bridge when applicable.
func (rt *Router) Select(ctx context.Context, clientKey, apiID, endpointID string, apiServers, endpointServers []string) (string, error) {
	server, err := rt.selectRaw(ctx, clientKey, apiID, endpointID, apiServers, endpointServers)
	if err != nil {
		return "", err
	}
	return RewriteContainerHost(server, rt.hostGateway, rt.inContainer), nil
}

func (rt *Router) selectRaw(ctx context.Context, clientKey, apiID, endpointID string, apiServers, endpointServers []string) (string, error) {
	if clientKey != "" {
		server, ok, err := rt.selectFromRouting(ctx, clientKey)
		if err != nil {
			return "", err
		}
		if ok {
			return server, nil
		}
	}

	if len(endpointServers) > 0 {
		return rt.selectRoundRobin("endpoint:"+endpointID, endpointServers), nil
	}

	if len(apiServers) > 0 {
		return rt.selectRoundRobin("api:"+apiID, apiServers), nil
	}

	return "", ErrNoServers
}

func (rt *Router) selectFromRouting(ctx context.Context, clientKey string) (string, bool, error) {
	doc, err := rt.resolver.GetRouting(ctx, clientKey)
	if errors.Is(err, resolver.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if len(stringSlice(doc["routing_servers"])) == 0 {
		return "", false, nil
	}

	// The index read-and-increment happens inside MutateOne against the
	// store directly (not the cached doc above, which only establishes that
	// a routing entry exists), so two concurrent requests for the same
	// client_key can never both read the same server_index and both advance
	// it by one, the same guarantee selectRoundRobin gets from rt.mu.
	var chosen string
	_, err = rt.store.MutateOne(ctx, store.CollectionRoutings, store.Filter{"client_key": clientKey}, func(current store.Doc) (store.Doc, error) {
		servers := stringSlice(current["routing_servers"])
		if len(servers) == 0 {
			return nil, ErrNoServers
		}

		index := 0
		if v, ok := current["server_index"].(float64); ok {
			index = int(v) % len(servers)
		}
		chosen = servers[index]

		next := (index + 1) % len(servers)
		current["server_index"] = float64(next)
		return current, nil
	})
	if errors.Is(err, ErrNoServers) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("persist routing server_index: %w", err)
	}
	_ = rt.resolver.InvalidateRouting(ctx, clientKey)

	return chosen, true, nil
}

func (rt *Router) selectRoundRobin(key string, servers []string) string {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	index := rt.counters[key] % len(servers)
	rt.counters[key] = rt.counters[key] + 1
	return servers[index]
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		if strs, ok := v.([]string); ok {
			return strs
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
