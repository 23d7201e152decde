package router

import (
	"context"
	"testing"
	"time"

	"github.com/cedros-gateway/gateway/internal/cache"
	"github.com/cedros-gateway/gateway/internal/resolver"
	"github.com/cedros-gateway/gateway/internal/store"
)

func testRouter(t *testing.T) (*Router, store.Store) {
	t.Helper()
	c := cache.NewMemoryCache(time.Minute, 0)
	t.Cleanup(c.Close)
	s := store.NewMemoryStore()
	r := resolver.New(c, s)
	return New(r, s, ""), s
}

func TestRouter_Select_APILevelRoundRobin(t *testing.T) {
	rt, _ := testRouter(t)
	ctx := context.Background()
	servers := []string{"http://a", "http://b", "http://c"}

	var chosen []string
	for i := 0; i < 4; i++ {
		s, err := rt.Select(ctx, "", "api-1", "", servers, nil)
		if err != nil {
			t.Fatalf("Select: %v", err)
		}
		chosen = append(chosen, s)
	}

	want := []string{"http://a", "http://b", "http://c", "http://a"}
	for i, w := range want {
		if chosen[i] != w {
			t.Fatalf("chosen[%d] = %q, want %q (full sequence %v)", i, chosen[i], w, chosen)
		}
	}
}

func TestRouter_Select_EndpointOverrideBeatsAPI(t *testing.T) {
	rt, _ := testRouter(t)
	ctx := context.Background()

	s, err := rt.Select(ctx, "", "api-1", "ep-1", []string{"http://api"}, []string{"http://ep"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if s != "http://ep" {
		t.Fatalf("Select = %q, want endpoint override to win", s)
	}
}

func TestRouter_Select_ClientRoutingBeatsEndpointAndAPI(t *testing.T) {
	rt, s := testRouter(t)
	ctx := context.Background()

	if err := s.InsertOne(ctx, store.CollectionRoutings, store.Doc{
		"_id": "client-1", "client_key": "client-1",
		"routing_servers": []interface{}{"http://r1", "http://r2"},
		"server_index":    float64(0),
	}); err != nil {
		t.Fatalf("InsertOne: %v", err)
	}

	first, err := rt.Select(ctx, "client-1", "api-1", "ep-1", []string{"http://api"}, []string{"http://ep"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if first != "http://r1" {
		t.Fatalf("first Select = %q, want http://r1", first)
	}

	second, err := rt.Select(ctx, "client-1", "api-1", "ep-1", []string{"http://api"}, []string{"http://ep"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if second != "http://r2" {
		t.Fatalf("second Select = %q, want http://r2 (round-robin advance)", second)
	}

	third, err := rt.Select(ctx, "client-1", "api-1", "ep-1", []string{"http://api"}, []string{"http://ep"})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	if third != "http://r1" {
		t.Fatalf("third Select = %q, want http://r1 (wraps modulo length)", third)
	}
}

func TestRouter_Select_NoServersConfigured(t *testing.T) {
	rt, _ := testRouter(t)
	if _, err := rt.Select(context.Background(), "", "api-1", "ep-1", nil, nil); err != ErrNoServers {
		t.Fatalf("Select = %v, want ErrNoServers", err)
	}
}

func TestRewriteContainerHost(t *testing.T) {
	cases := []struct {
		name        string
		server      string
		hostGateway string
		inContainer bool
		want        string
	}{
		{"not in container", "http://localhost:8080", "host.docker.internal", false, "http://localhost:8080"},
		{"in container rewrites localhost", "http://localhost:8080", "host.docker.internal", true, "http://host.docker.internal:8080"},
		{"in container rewrites 127.0.0.1", "http://127.0.0.1:9090/path", "172.17.0.1", true, "http://172.17.0.1:9090/path"},
		{"non-loopback host untouched", "http://upstream.internal:8080", "host.docker.internal", true, "http://upstream.internal:8080"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := RewriteContainerHost(tc.server, tc.hostGateway, tc.inContainer); got != tc.want {
				t.Fatalf("RewriteContainerHost = %q, want %q", got, tc.want)
			}
		})
	}
}
