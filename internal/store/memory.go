package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore is an in-process Store implementation guarded by a single
// mutex, mirroring the shape of the teacher's storage.MemoryStore (a
// map-per-entity store behind sync.RWMutex) generalized to an arbitrary set
// of named collections instead of a fixed struct field per entity.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]Doc
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Doc)}
}

func (m *MemoryStore) bucket(name string) map[string]Doc {
	b, ok := m.collections[name]
	if !ok {
		b = make(map[string]Doc)
		m.collections[name] = b
	}
	return b
}

func cloneDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// FindOne implements Store.
func (m *MemoryStore) FindOne(_ context.Context, collection string, filter Filter) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			return cloneDoc(doc), nil
		}
	}
	return nil, ErrNotFound
}

// Find implements Store.
func (m *MemoryStore) Find(_ context.Context, collection string, filter Filter, sortSpec *SortSpec, skip, limit int) ([]Doc, error) {
	m.mu.Lock()
	var matched []Doc
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			matched = append(matched, cloneDoc(doc))
		}
	}
	m.mu.Unlock()

	if sortSpec != nil {
		field := sortSpec.Field
		desc := sortSpec.Descending
		sort.SliceStable(matched, func(i, j int) bool {
			less := compareValues(matched[i][field], matched[j][field])
			if desc {
				return less > 0
			}
			return less < 0
		})
	}

	if skip > 0 {
		if skip >= len(matched) {
			return []Doc{}, nil
		}
		matched = matched[skip:]
	}
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// InsertOne implements Store.
func (m *MemoryStore) InsertOne(_ context.Context, collection string, doc Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := doc.ID()
	bucket := m.bucket(collection)
	bucket[id] = cloneDoc(doc)
	return nil
}

// UpdateOne implements Store. It finds the first document matching filter
// and merges update's keys into it.
func (m *MemoryStore) UpdateOne(_ context.Context, collection string, filter Filter, update Doc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.collections[collection]
	for id, doc := range bucket {
		if matches(doc, filter) {
			merged := cloneDoc(doc)
			for k, v := range update {
				merged[k] = v
			}
			bucket[id] = merged
			return nil
		}
	}
	return ErrNotFound
}

// MutateOne implements Store, holding the single mutex across the whole
// find-mutate-persist sequence so two concurrent callers can never observe
// and act on the same pre-mutation value, closing the class of race that a
// separate FindOne followed by UpdateOne leaves open.
func (m *MemoryStore) MutateOne(_ context.Context, collection string, filter Filter, mutate func(Doc) (Doc, error)) (Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.collections[collection]
	for id, doc := range bucket {
		if matches(doc, filter) {
			updated, err := mutate(cloneDoc(doc))
			if err != nil {
				return nil, err
			}
			bucket[id] = cloneDoc(updated)
			return cloneDoc(updated), nil
		}
	}
	return nil, ErrNotFound
}

// DeleteOne implements Store.
func (m *MemoryStore) DeleteOne(_ context.Context, collection string, filter Filter) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := m.collections[collection]
	for id, doc := range bucket {
		if matches(doc, filter) {
			delete(bucket, id)
			return nil
		}
	}
	return ErrNotFound
}

// Count implements Store.
func (m *MemoryStore) Count(_ context.Context, collection string, filter Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			n++
		}
	}
	return n, nil
}

// Close implements Store. MemoryStore holds no external resources.
func (m *MemoryStore) Close() error {
	return nil
}

// snapshot returns a deep copy of every collection for the DMP1 dump format.
func (m *MemoryStore) snapshot() map[string]map[string]Doc {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]map[string]Doc, len(m.collections))
	for name, bucket := range m.collections {
		b := make(map[string]Doc, len(bucket))
		for id, doc := range bucket {
			b[id] = cloneDoc(doc)
		}
		out[name] = b
	}
	return out
}

// restore replaces all collections with the contents of a decoded snapshot.
func (m *MemoryStore) restore(data map[string]map[string]Doc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections = data
}

func compareValues(a, b interface{}) int {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return 0
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
