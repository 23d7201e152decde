package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cedros-gateway/gateway/internal/httputil"
	"github.com/cedros-gateway/gateway/internal/store"
	"github.com/cedros-gateway/gateway/pkg/responders"
)

// readinessProbeTimeout bounds each dependency check so a single slow or dead
// upstream cannot hang the /readyz response.
const readinessProbeTimeout = 2 * time.Second

// handleReadyz reports whether the gateway's dependencies (document store,
// policy cache, and every distinct upstream server currently on file) are
// reachable. Unlike handleHealthz it exercises the actual backends, on every
// /readyz poll.
// The HTTP probe client is CedrosPay-server's httputil.NewClient, the same
// helper its balance monitor uses for outbound reachability checks.
func (g *Gateway) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if _, err := g.Store.Find(ctx, store.CollectionAPIs, store.Filter{}, nil, 0, 1); err != nil {
		checks["store"] = err.Error()
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if _, _, err := g.Cache.Get(ctx, "readyz", "probe"); err != nil {
		checks["cache"] = err.Error()
		ready = false
	} else {
		checks["cache"] = "ok"
	}

	checks["upstreams"] = g.probeUpstreams(ctx)

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}
	responders.JSON(w, status, map[string]interface{}{
		"status": map[bool]string{true: "ready", false: "not_ready"}[ready],
		"checks": checks,
	})
}

// probeUpstreams best-effort HEAD-checks every distinct server address
// configured across every API on file, active or not. An unreachable upstream never fails
// readiness on its own — upstreams flap independently of the gateway
// process — so the result is informational, reported alongside the
// store/cache checks that do gate readiness.
func (g *Gateway) probeUpstreams(ctx context.Context) string {
	apis, err := g.Store.Find(ctx, store.CollectionAPIs, store.Filter{}, nil, 0, 0)
	if err != nil {
		return "unknown: " + err.Error()
	}

	servers := map[string]struct{}{}
	for _, api := range apis {
		raw, _ := api["api_servers"].([]interface{})
		for _, v := range raw {
			if s, ok := v.(string); ok && s != "" {
				servers[s] = struct{}{}
			}
		}
	}
	if len(servers) == 0 {
		return "none configured"
	}

	client := httputil.NewClient(readinessProbeTimeout)

	var wg sync.WaitGroup
	var mu sync.Mutex
	reachable, total := 0, len(servers)
	for server := range servers {
		wg.Add(1)
		go func(server string) {
			defer wg.Done()
			req, err := http.NewRequestWithContext(ctx, http.MethodHead, server, nil)
			if err != nil {
				return
			}
			resp, err := client.Do(req)
			if err != nil {
				return
			}
			resp.Body.Close()
			mu.Lock()
			reachable++
			mu.Unlock()
		}(server)
	}
	wg.Wait()

	if reachable == total {
		return "ok"
	}
	return "degraded"
}
