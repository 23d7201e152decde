// Package resolver implements the Config Resolver (C3): cache-then-store
// lookups for every configuration entity the gateway's pipeline needs on the
// request path, grounded on apidoorman/doorman's service-layer pattern of
// checking doorman_cache before falling through to the collection.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cedros-gateway/gateway/internal/cache"
	"github.com/cedros-gateway/gateway/internal/store"
)

// ErrNotFound is returned when an entity does not exist in cache or storage.
var ErrNotFound = errors.New("resolver: not found")

// superAdminUsername is never resolvable through the public get_user path:
// any caller other than the bootstrap routine asking for this user is told
// it does not exist, and writes targeting it are rejected by the caller.
const superAdminUsername = "admin"

// Cache namespaces, one per entity kind, matching the Policy Cache's
// documented namespace list.
const (
	nsAPI          = "api_cache"
	nsAPIEndpoints = "api_endpoint_cache"
	nsEndpoint     = "endpoint_cache"
	nsUser         = "user_cache"
	nsRole         = "role_cache"
	nsGroup        = "group_cache"
	nsSubscription = "user_subscription_cache"
	nsRouting      = "client_routing_cache"
	nsTier         = "tier_cache"
)

// Resolver answers configuration lookups from cache, falling through to the
// document store on a miss and repopulating the cache with positive results
// only (negative results are never cached, so a just-created entity is
// visible immediately on the next read). Every lookup uses the cache's own
// configured default TTL per namespace.
type Resolver struct {
	cache cache.Cache
	store store.Store
}

// New builds a Resolver over the given cache and document store.
func New(c cache.Cache, s store.Store) *Resolver {
	return &Resolver{cache: c, store: s}
}

func decodeDoc(raw []byte) (store.Doc, error) {
	var doc store.Doc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func encodeDoc(doc store.Doc) ([]byte, error) {
	return json.Marshal(doc)
}

func decodeDocs(raw []byte) ([]store.Doc, error) {
	var docs []store.Doc
	if err := json.Unmarshal(raw, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func encodeDocs(docs []store.Doc) ([]byte, error) {
	return json.Marshal(docs)
}

func (r *Resolver) lookupOne(ctx context.Context, namespace, key string, fetch func(context.Context) (store.Doc, error)) (store.Doc, error) {
	return cache.ReadThrough(ctx, r.cache, namespace, key, 0, decodeDoc, encodeDoc, fetch)
}

func (r *Resolver) lookupMany(ctx context.Context, namespace, key string, fetch func(context.Context) ([]store.Doc, error)) ([]store.Doc, error) {
	return cache.ReadThrough(ctx, r.cache, namespace, key, 0, decodeDocs, encodeDocs, fetch)
}

// GetAPI resolves an API document by api_id, or by "name/version" when
// apiID is empty and nameVersion is set.
func (r *Resolver) GetAPI(ctx context.Context, apiID, nameVersion string) (store.Doc, error) {
	key := apiID
	filter := store.Filter{"_id": apiID}
	if apiID == "" {
		key = "nv:" + nameVersion
		filter = store.Filter{"name_version": nameVersion}
	}
	return r.lookupOne(ctx, nsAPI, key, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionAPIs, filter)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetAPIEndpoints lists the endpoint documents registered for apiID.
func (r *Resolver) GetAPIEndpoints(ctx context.Context, apiID string) ([]store.Doc, error) {
	return r.lookupMany(ctx, nsAPIEndpoints, apiID, func(ctx context.Context) ([]store.Doc, error) {
		return r.store.Find(ctx, store.CollectionEndpoints, store.Filter{"api_id": apiID}, nil, 0, 0)
	})
}

// GetEndpoint resolves a single endpoint document by api, method, and uri.
func (r *Resolver) GetEndpoint(ctx context.Context, apiID, method, uri string) (store.Doc, error) {
	key := fmt.Sprintf("%s:%s:%s", apiID, method, uri)
	return r.lookupOne(ctx, nsEndpoint, key, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionEndpoints, store.Filter{
			"api_id": apiID, "method": method, "uri": uri,
		})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetUser resolves a user document by username, enforcing the super-admin
// ghost rule: the admin user is only resolvable by the bootstrap path, which
// must call the store directly rather than through this method.
func (r *Resolver) GetUser(ctx context.Context, username string) (store.Doc, error) {
	if username == superAdminUsername {
		return nil, ErrNotFound
	}
	return r.lookupOne(ctx, nsUser, username, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionUsers, store.Filter{"username": username})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetRole resolves a role document by name.
func (r *Resolver) GetRole(ctx context.Context, name string) (store.Doc, error) {
	return r.lookupOne(ctx, nsRole, name, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionRoles, store.Filter{"_id": name})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetGroup resolves a group document by name.
func (r *Resolver) GetGroup(ctx context.Context, name string) (store.Doc, error) {
	return r.lookupOne(ctx, nsGroup, name, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionGroups, store.Filter{"_id": name})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetSubscriptions lists a user's subscription documents.
func (r *Resolver) GetSubscriptions(ctx context.Context, username string) ([]store.Doc, error) {
	return r.lookupMany(ctx, nsSubscription, username, func(ctx context.Context) ([]store.Doc, error) {
		return r.store.Find(ctx, store.CollectionSubscriptions, store.Filter{"username": username}, nil, 0, 0)
	})
}

// GetRouting resolves a client routing document by client_key.
func (r *Resolver) GetRouting(ctx context.Context, clientKey string) (store.Doc, error) {
	return r.lookupOne(ctx, nsRouting, clientKey, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionRoutings, store.Filter{"client_key": clientKey})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// GetTier resolves a tier document by tier_id.
func (r *Resolver) GetTier(ctx context.Context, tierID string) (store.Doc, error) {
	return r.lookupOne(ctx, nsTier, tierID, func(ctx context.Context) (store.Doc, error) {
		doc, err := r.store.FindOne(ctx, store.CollectionTiers, store.Filter{"_id": tierID})
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return doc, err
	})
}

// InvalidateAPI drops the cached API entry for apiID so the next read
// repairs from storage; called after any write to the apis collection.
func (r *Resolver) InvalidateAPI(ctx context.Context, apiID string) error {
	return r.cache.Delete(ctx, nsAPI, apiID)
}

// InvalidateUser drops the cached user entry for username.
func (r *Resolver) InvalidateUser(ctx context.Context, username string) error {
	return r.cache.Delete(ctx, nsUser, username)
}

// InvalidateRouting drops the cached routing entry for clientKey.
func (r *Resolver) InvalidateRouting(ctx context.Context, clientKey string) error {
	return r.cache.Delete(ctx, nsRouting, clientKey)
}
