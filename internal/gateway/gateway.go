// Package gateway wires every other package into a single state value, per
// design note §9 ("in-process global state is encapsulated in a single
// Gateway state value passed to every handler; no global singletons
// required after construction") and grounded on CedrosPay-server's
// httpserver.handlers aggregation struct (all service dependencies held as
// fields, constructed once in New).
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	graphqladapter "github.com/cedros-gateway/gateway/internal/adapter/graphql"
	grpcadapter "github.com/cedros-gateway/gateway/internal/adapter/grpc"
	"github.com/cedros-gateway/gateway/internal/adapter/rest"
	"github.com/cedros-gateway/gateway/internal/adapter/soap"
	"github.com/cedros-gateway/gateway/internal/cache"
	"github.com/cedros-gateway/gateway/internal/config"
	"github.com/cedros-gateway/gateway/internal/identity"
	"github.com/cedros-gateway/gateway/internal/invoker"
	"github.com/cedros-gateway/gateway/internal/ippolicy"
	"github.com/cedros-gateway/gateway/internal/lifecycle"
	"github.com/cedros-gateway/gateway/internal/limiter"
	"github.com/cedros-gateway/gateway/internal/logger"
	"github.com/cedros-gateway/gateway/internal/metrics"
	"github.com/cedros-gateway/gateway/internal/pipeline"
	"github.com/cedros-gateway/gateway/internal/resolver"
	"github.com/cedros-gateway/gateway/internal/router"
	"github.com/cedros-gateway/gateway/internal/store"
	"github.com/cedros-gateway/gateway/pkg/responders"
)

// counterCache is satisfied by both shipped cache backends; the limiter and
// revocation index need it, the bare cache.Cache interface does not expose
// Incr.
type counterCache interface {
	cache.Cache
	cache.Counter
}

// Gateway holds every constructed component for one process's lifetime, the
// "single Gateway state value" of design note §9. Nothing here is a package
// level singleton; every field is wired explicitly in New.
type Gateway struct {
	Config *config.Config

	Cache      counterCache
	Store      store.Store
	Resolver   *resolver.Resolver
	Minter     *identity.Minter
	Revocation *identity.RevocationIndex
	IPGate     *ippolicy.Gate
	Limiter    *limiter.Limiter
	Router     *router.Router
	Invoker    *invoker.Invoker
	Metrics    *metrics.Metrics
	Registry   *grpcadapter.Registry
	GRPCConns  *grpcadapter.ConnPool

	REST    *rest.Adapter
	SOAP    *soap.Adapter
	GraphQL *graphqladapter.Adapter
	GRPC    *grpcadapter.Adapter
	GRPCWeb *grpcadapter.WebIngress

	Pipeline *pipeline.Pipeline
	Logger   zerolog.Logger

	lifecycle *lifecycle.Manager
}

// New constructs every component named in SPEC_FULL.md's component table
// from cfg, in dependency order (leaves first, matching §2's component
// table ordering): cache, store, resolver, identity, ip policy, limiter,
// router, invoker, adapters, pipeline.
func New(cfg *config.Config, registry *prometheus.Registry) (*Gateway, error) {
	lm := lifecycle.NewManager()

	zlog := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Service:     "gateway",
		Environment: cfg.Logging.Environment,
	})

	m := metrics.New(registry)

	c, err := newCache(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("gateway: build cache: %w", err)
	}
	if closer, ok := c.(interface{ Close() error }); ok {
		lm.Register("cache", closerFunc(closer.Close))
	}

	st, err := store.NewStore(store.Config{
		Backend:         cfg.Storage.Backend,
		PostgresURL:     cfg.Storage.PostgresURL,
		MongoDBURL:      cfg.Storage.MongoDBURL,
		MongoDBDatabase: cfg.Storage.MongoDBDatabase,
		PostgresPool:    cfg.Storage.PostgresPool,
		SchemaMapping:   cfg.Storage.SchemaMapping,
	})
	if err != nil {
		return nil, fmt.Errorf("gateway: build store: %w", err)
	}
	lm.Register("store", closerFunc(st.Close))

	if cfg.Storage.Backend == "" || cfg.Storage.Backend == "memory" {
		restoreMemorySnapshot(st, cfg.Storage)
	}

	if err := bootstrapSuperAdmin(st, cfg.Identity); err != nil {
		return nil, fmt.Errorf("gateway: bootstrap super-admin: %w", err)
	}

	res := resolver.New(c, st)
	minter := identity.NewMinter(cfg.Identity.JWTSecretKey, cfg.Identity.JWTKeys, cfg.Identity.JWTIssuer, cfg.Identity.AccessTokenTTL.Duration)
	minter.EnableJWKS(cfg.Identity.JWKSURL, cfg.Identity.JWKSCacheTTL.Duration)
	revocation := identity.NewRevocationIndex(c)
	ipGate := ippolicy.New(cfg.IPPolicy)
	lim := limiter.New(c, st, cfg.RateLimit, m)
	rt := router.New(res, st, cfg.Gateway.ContainerHostGateway)
	inv := invoker.New(cfg.Invoker, cfg.CircuitBreaker, m)

	restAdapter := rest.New(inv)
	soapAdapter := soap.New(inv)
	graphqlAdapter := graphqladapter.New(inv)

	grpcRegistry := grpcadapter.NewRegistry()
	grpcConns := grpcadapter.NewConnPool()
	lm.Register("grpc-conns", closerFunc(grpcConns.Close))
	grpcAdapter := grpcadapter.New(grpcRegistry, grpcConns)
	grpcWeb := grpcadapter.NewWebIngress(grpcAdapter)

	pl := pipeline.New(pipeline.Deps{
		Resolver:   res,
		Store:      st,
		Limiter:    lim,
		IPGate:     ipGate,
		Router:     rt,
		Minter:     minter,
		Revocation: revocation,
		REST:       restAdapter,
		SOAP:       soapAdapter,
		GraphQL:    graphqlAdapter,
		GRPC:       grpcAdapter,
		Invoker:    inv,
		Metrics:    m,
		Identity:   cfg.Identity,
		Server:     cfg.Server,
		Gateway:    cfg.Gateway,
	})

	return &Gateway{
		Config:     cfg,
		Cache:      c,
		Store:      st,
		Resolver:   res,
		Minter:     minter,
		Revocation: revocation,
		IPGate:     ipGate,
		Limiter:    lim,
		Router:     rt,
		Invoker:    inv,
		Metrics:    m,
		Registry:   grpcRegistry,
		GRPCConns:  grpcConns,
		REST:       restAdapter,
		SOAP:       soapAdapter,
		GraphQL:    graphqlAdapter,
		GRPC:       grpcAdapter,
		GRPCWeb:    grpcWeb,
		Pipeline:   pl,
		Logger:     zlog,
		lifecycle:  lm,
	}, nil
}

// newCache builds the Policy Cache backend named by cfg.Backend (CACHE_BACKEND).
func newCache(cfg config.CacheConfig) (counterCache, error) {
	switch cfg.Backend {
	case "", "memory":
		return cache.NewMemoryCache(cfg.DefaultTTL.Duration, time.Minute), nil
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis cache backend requires redis_url")
		}
		return cache.NewRedisCache(cfg.RedisURL, cfg.DefaultTTL.Duration)
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// restoreMemorySnapshot loads the DMP1 encrypted snapshot into an in-process
// MemoryStore at startup if one is configured and present; a missing file or
// an empty encryption key is not an error, matching the teacher's
// best-effort local-dev restore behavior.
func restoreMemorySnapshot(st store.Store, cfg config.StorageConfig) {
	mem, ok := st.(*store.MemoryStore)
	if !ok || cfg.DumpPath == "" || cfg.EncryptionKey == "" {
		return
	}
	path, err := store.FindLatestDumpPath(cfg.DumpPath)
	if err != nil {
		return
	}
	if _, err := store.RestoreFromFile(mem, path, cfg.EncryptionKey); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("gateway.snapshot_restore_failed")
	}
}

// bootstrapSuperAdmin ensures the fixed "admin" user document exists (§3:
// "Super-admin user is present at bootstrap"). It never overwrites an
// existing admin document, so a restored snapshot's own admin password
// survives restart.
func bootstrapSuperAdmin(st store.Store, cfg config.IdentityConfig) error {
	ctx := context.Background()
	_, err := st.FindOne(ctx, store.CollectionUsers, store.Filter{"username": "admin"})
	if err == nil {
		return nil
	}
	if err != store.ErrNotFound {
		return err
	}

	hash, err := identity.HashPassword(bootstrapAdminPassword(), cfg)
	if err != nil {
		return err
	}
	return st.InsertOne(ctx, store.CollectionUsers, store.Doc{
		"_id":      "admin",
		"username": "admin",
		"password": hash,
		"role":     "admin",
		"groups":   []interface{}{"ALL"},
		"active":   true,
	})
}

// bootstrapAdminPassword reads the initial super-admin password from the
// environment, falling back to a fixed development default that an operator
// is expected to rotate immediately in any non-development deployment.
func bootstrapAdminPassword() string {
	if v := os.Getenv("GATEWAY_ADMIN_BOOTSTRAP_PASSWORD"); v != "" {
		return v
	}
	return "change-me-on-first-login"
}

// NewRouter builds the top-level chi router: ambient, request-shape-
// independent middleware (request id, real ip, panic recovery, structured
// access log) ahead of the request plane, an outer-edge global safety-net
// rate cap (go-chi/httprate) in front of the per-user/tier limiter the
// pipeline enforces per §4.5, operational endpoints with a platform CORS
// policy (go-chi/cors), and every wire surface from §6 mounted onto
// Gateway.Pipeline. Grounded on CedrosPay-server's httpserver.ConfigureRouter
// middleware ordering.
func (g *Gateway) NewRouter(registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logger.Middleware(g.Logger))

	// The outer safety-net cap is a blunt, process-local, IP-keyed limit that
	// protects the process itself from a stampede before any per-user/tier
	// accounting runs; it is deliberately coarser than and independent of the
	// §4.5 Limiter, which enforces the actual per-user/tier policy documents.
	globalLimit := g.Config.RateLimit.DefaultRequestsPerWindow * 10
	if globalLimit <= 0 {
		globalLimit = 10000
	}
	r.Use(httprate.LimitByIP(globalLimit, time.Minute))

	opsCORS := cors.Handler(cors.Options{
		AllowedOrigins: g.Config.Server.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	})
	r.With(opsCORS).Get("/healthz", g.handleHealthz)
	r.With(opsCORS).Get("/readyz", g.handleReadyz)
	r.With(opsCORS).Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

	// chi's wildcard routes match on path but do not rewrite r.URL.Path (unlike
	// http.StripPrefix), so Pipeline.ParseShape still sees the full §6 path.
	r.Handle("/api/*", g.Pipeline)
	if g.Config.Gateway.GRPCWebEnabled {
		r.Handle("/grpc-web/*", http.HandlerFunc(g.serveGRPCWeb))
	}

	return r
}

// handleHealthz reports process liveness only; readiness (store/cache
// reachability) is reported by handleReadyz.
func (g *Gateway) handleHealthz(w http.ResponseWriter, r *http.Request) {
	responders.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Close releases every registered resource (store connections, cache
// connections, grpc channel pool) in reverse construction order.
func (g *Gateway) Close() error {
	return g.lifecycle.Close()
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
