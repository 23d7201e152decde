package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryStore_InsertAndFindOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	doc := Doc{"_id": "weather-api", "name": "weather", "version": "v1"}
	if err := s.InsertOne(ctx, CollectionAPIs, doc); err != nil {
		t.Fatalf("insert: %v", err)
	}

	found, err := s.FindOne(ctx, CollectionAPIs, Filter{"_id": "weather-api"})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found["name"] != "weather" {
		t.Errorf("expected name weather, got %v", found["name"])
	}
}

func TestMemoryStore_FindOne_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.FindOne(context.Background(), CollectionUsers, Filter{"_id": "nobody"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_UpdateOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionUsers, Doc{"_id": "alice", "username": "alice", "active": true})

	if err := s.UpdateOne(ctx, CollectionUsers, Filter{"username": "alice"}, Doc{"active": false}); err != nil {
		t.Fatalf("update: %v", err)
	}

	found, _ := s.FindOne(ctx, CollectionUsers, Filter{"_id": "alice"})
	if found["active"] != false {
		t.Errorf("expected active=false after update, got %v", found["active"])
	}
}

func TestMemoryStore_DeleteOne(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionRoles, Doc{"_id": "viewer", "name": "viewer"})

	if err := s.DeleteOne(ctx, CollectionRoles, Filter{"_id": "viewer"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FindOne(ctx, CollectionRoles, Filter{"_id": "viewer"}); !errors.Is(err, ErrNotFound) {
		t.Error("expected role to be gone after delete")
	}
}

func TestMemoryStore_Count(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionEndpoints, Doc{"_id": "e1", "api_id": "weather-api", "method": "GET"})
	s.InsertOne(ctx, CollectionEndpoints, Doc{"_id": "e2", "api_id": "weather-api", "method": "POST"})
	s.InsertOne(ctx, CollectionEndpoints, Doc{"_id": "e3", "api_id": "other-api", "method": "GET"})

	n, err := s.Count(ctx, CollectionEndpoints, Filter{"api_id": "weather-api"})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 matching endpoints, got %d", n)
	}
}

func TestMemoryStore_Find_SortSkipLimit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for i, id := range []string{"c", "a", "b"} {
		s.InsertOne(ctx, CollectionTiers, Doc{"_id": id, "rank": float64(i)})
	}

	docs, err := s.Find(ctx, CollectionTiers, Filter{}, &SortSpec{Field: "_id"}, 1, 1)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(docs) != 1 || docs[0]["_id"] != "b" {
		t.Errorf("expected single result 'b' after skip+sort, got %+v", docs)
	}
}

func TestMemoryStore_MutateOne_AppliesCallbackAndPersists(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionUserCredits, Doc{"_id": "u1", "username": "alice", "available_credits": float64(3)})

	updated, err := s.MutateOne(ctx, CollectionUserCredits, Filter{"username": "alice"}, func(doc Doc) (Doc, error) {
		doc["available_credits"] = doc["available_credits"].(float64) - 1
		return doc, nil
	})
	if err != nil {
		t.Fatalf("MutateOne: %v", err)
	}
	if updated["available_credits"] != float64(2) {
		t.Errorf("returned doc available_credits = %v, want 2", updated["available_credits"])
	}

	found, _ := s.FindOne(ctx, CollectionUserCredits, Filter{"username": "alice"})
	if found["available_credits"] != float64(2) {
		t.Errorf("persisted available_credits = %v, want 2", found["available_credits"])
	}
}

func TestMemoryStore_MutateOne_CallbackErrorAbortsWithoutWriting(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionUserCredits, Doc{"_id": "u1", "username": "alice", "available_credits": float64(0)})

	errExhausted := errors.New("exhausted")
	_, err := s.MutateOne(ctx, CollectionUserCredits, Filter{"username": "alice"}, func(doc Doc) (Doc, error) {
		if doc["available_credits"].(float64) <= 0 {
			return nil, errExhausted
		}
		doc["available_credits"] = doc["available_credits"].(float64) - 1
		return doc, nil
	})
	if !errors.Is(err, errExhausted) {
		t.Fatalf("MutateOne err = %v, want errExhausted", err)
	}

	found, _ := s.FindOne(ctx, CollectionUserCredits, Filter{"username": "alice"})
	if found["available_credits"] != float64(0) {
		t.Errorf("expected balance untouched after aborted mutate, got %v", found["available_credits"])
	}
}

func TestMemoryStore_MutateOne_NotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.MutateOne(context.Background(), CollectionUserCredits, Filter{"username": "ghost"}, func(doc Doc) (Doc, error) {
		return doc, nil
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_MutateOne_ConcurrentDecrementsNeverGoNegative(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	const startingBalance = 50
	s.InsertOne(ctx, CollectionUserCredits, Doc{"_id": "u1", "username": "alice", "available_credits": float64(startingBalance)})

	var wg sync.WaitGroup
	var succeeded int
	var mu sync.Mutex
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.MutateOne(ctx, CollectionUserCredits, Filter{"username": "alice"}, func(doc Doc) (Doc, error) {
				available := doc["available_credits"].(float64)
				if available <= 0 {
					return nil, ErrNotFound
				}
				doc["available_credits"] = available - 1
				return doc, nil
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if succeeded != startingBalance {
		t.Errorf("expected exactly %d successful decrements, got %d", startingBalance, succeeded)
	}
	found, _ := s.FindOne(ctx, CollectionUserCredits, Filter{"username": "alice"})
	if found["available_credits"] != float64(0) {
		t.Errorf("expected balance to land exactly at 0, got %v", found["available_credits"])
	}
}

func TestMemoryStore_FindOneIsolatedCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	s.InsertOne(ctx, CollectionGroups, Doc{"_id": "g1", "members": []interface{}{"a"}})

	doc, _ := s.FindOne(ctx, CollectionGroups, Filter{"_id": "g1"})
	doc["members"] = []interface{}{"mutated"}

	again, _ := s.FindOne(ctx, CollectionGroups, Filter{"_id": "g1"})
	members := again["members"].([]interface{})
	if members[0] != "a" {
		t.Error("expected store's internal document to be unaffected by caller mutation")
	}
}
