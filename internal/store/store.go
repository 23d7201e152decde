// Package store implements the Document Store Adapter (C2): a collection/filter
// document interface with in-memory, postgres, and mongodb backends, selected
// by the explicit backend name in Config.Backend ("memory" or empty,
// "postgres", "mongodb"); the connection URL is not inspected to pick one.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cedros-gateway/gateway/internal/config"
)

// Collection names for the gateway's own configuration entities.
const (
	CollectionAPIs              = "apis"
	CollectionEndpoints         = "endpoints"
	CollectionEndpointValidation = "endpoint_validation"
	CollectionUsers             = "users"
	CollectionRoles             = "roles"
	CollectionGroups            = "groups"
	CollectionSubscriptions     = "subscriptions"
	CollectionRoutings          = "routings"
	CollectionTiers             = "tiers"
	CollectionTierAssignments   = "tier_assignments"
	CollectionCreditGroups      = "credit_groups"
	CollectionUserCredits       = "user_credits"
	CollectionSecuritySettings  = "security_settings"
)

// ErrNotFound is returned when a requested document is missing from the store.
var ErrNotFound = errors.New("store: not found")

// Doc is a generic document: a JSON-shaped map with a required "_id" key.
type Doc map[string]interface{}

// ID returns the document's "_id" field as a string, or "" if absent.
func (d Doc) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Filter is a flat equality filter: every key/value pair must match.
// Nested/operator filters are not needed by any SPEC_FULL.md lookup path,
// which only ever looks documents up by primary key or a small set of
// indexed fields (username, api_id+method+uri, client_key, tier_id).
type Filter map[string]interface{}

// SortSpec orders find results; Descending reverses the natural order.
type SortSpec struct {
	Field      string
	Descending bool
}

// Store is the persistence interface every C2 backend implements.
type Store interface {
	FindOne(ctx context.Context, collection string, filter Filter) (Doc, error)
	Find(ctx context.Context, collection string, filter Filter, sort *SortSpec, skip, limit int) ([]Doc, error)
	InsertOne(ctx context.Context, collection string, doc Doc) error
	UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) error
	DeleteOne(ctx context.Context, collection string, filter Filter) error
	Count(ctx context.Context, collection string, filter Filter) (int64, error)

	// MutateOne finds the document matching filter and applies mutate to it,
	// persisting the result, with the whole find-mutate-persist sequence
	// atomic with respect to every other call against the same document
	// (MemoryStore: one mutex scope; PostgresStore: SELECT ... FOR UPDATE in
	// a transaction; MongoStore: a session transaction). mutate returning an
	// error (e.g. for a read-checked precondition like a non-positive balance)
	// aborts without writing and that error is returned; it returns the
	// persisted document otherwise.
	MutateOne(ctx context.Context, collection string, filter Filter, mutate func(Doc) (Doc, error)) (Doc, error)
	Close() error
}

// Config selects and parameterizes a Store backend.
type Config struct {
	Backend         string
	PostgresURL     string
	MongoDBURL      string
	MongoDBDatabase string
	PostgresPool    config.PostgresPoolConfig
	SchemaMapping   config.SchemaMappingConfig
}

// NewStore builds a Store from the gateway's storage configuration.
func NewStore(cfg Config) (Store, error) {
	return NewStoreWithDB(cfg, nil)
}

// NewStoreWithDB builds a Store, reusing sharedDB for a postgres backend
// instead of opening a new connection pool when sharedDB is non-nil.
func NewStoreWithDB(cfg Config, sharedDB *sql.DB) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.PostgresURL == "" {
			return nil, fmt.Errorf("postgres backend requires postgres_url")
		}
		if sharedDB != nil {
			return NewPostgresStoreWithDB(sharedDB, cfg.SchemaMapping)
		}
		return NewPostgresStore(cfg.PostgresURL, cfg.PostgresPool, cfg.SchemaMapping)
	case "mongodb":
		if cfg.MongoDBURL == "" {
			return nil, fmt.Errorf("mongodb backend requires mongodb_url")
		}
		database := cfg.MongoDBDatabase
		if database == "" {
			database = "cedros_gateway"
		}
		return NewMongoStore(cfg.MongoDBURL, database)
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}
}

// matches reports whether doc satisfies every key/value pair in filter.
func matches(doc Doc, filter Filter) bool {
	for k, v := range filter {
		if doc[k] != v {
			return false
		}
	}
	return true
}
