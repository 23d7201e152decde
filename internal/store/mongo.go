package store

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store over MongoDB, mapping each collection name
// directly onto a native collection (no schema mapping needed: Mongo is
// already document-shaped), grounded on the teacher's MongoDBStore connect
// and ping-or-fail sequence.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and returns a Store over database.
func NewMongoStore(connectionString, database string) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(connectionString))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoStore{client: client, db: client.Database(database)}, nil
}

func (s *MongoStore) collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

func filterToBSON(filter Filter) bson.M {
	out := bson.M{}
	for k, v := range filter {
		out[k] = v
	}
	return out
}

// FindOne implements Store.
func (s *MongoStore) FindOne(ctx context.Context, collection string, filter Filter) (Doc, error) {
	var doc Doc
	err := s.collection(collection).FindOne(ctx, filterToBSON(filter)).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Find implements Store.
func (s *MongoStore) Find(ctx context.Context, collection string, filter Filter, sortSpec *SortSpec, skip, limit int) ([]Doc, error) {
	opts := options.Find()
	if sortSpec != nil {
		dir := 1
		if sortSpec.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: sortSpec.Field, Value: dir}})
	}
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := s.collection(collection).Find(ctx, filterToBSON(filter), opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []Doc
	for cursor.Next(ctx) {
		var doc Doc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, cursor.Err()
}

// InsertOne implements Store, upserting by "_id" to give the same
// write-is-idempotent semantics as the memory and postgres backends.
func (s *MongoStore) InsertOne(ctx context.Context, collection string, doc Doc) error {
	id := doc.ID()
	_, err := s.collection(collection).ReplaceOne(
		ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true),
	)
	return err
}

// UpdateOne implements Store.
func (s *MongoStore) UpdateOne(ctx context.Context, collection string, filter Filter, update Doc) error {
	result, err := s.collection(collection).UpdateOne(ctx, filterToBSON(filter), bson.M{"$set": update})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MutateOne implements Store using a session transaction: the find, the
// mutate callback, and the replace all happen inside one transaction, so a
// concurrent MutateOne on the same document either serializes behind it or
// aborts and is retried by WithTransaction, rather than racing on a stale read.
func (s *MongoStore) MutateOne(ctx context.Context, collection string, filter Filter, mutate func(Doc) (Doc, error)) (Doc, error) {
	session, err := s.client.StartSession()
	if err != nil {
		return nil, err
	}
	defer session.EndSession(ctx)

	var result Doc
	_, err = session.WithTransaction(ctx, func(sessCtx mongo.SessionContext) (interface{}, error) {
		var current Doc
		if err := s.collection(collection).FindOne(sessCtx, filterToBSON(filter)).Decode(&current); err != nil {
			if err == mongo.ErrNoDocuments {
				return nil, ErrNotFound
			}
			return nil, err
		}

		updated, err := mutate(current)
		if err != nil {
			return nil, err
		}

		res, err := s.collection(collection).ReplaceOne(sessCtx, bson.M{"_id": current.ID()}, updated)
		if err != nil {
			return nil, err
		}
		if res.MatchedCount == 0 {
			return nil, ErrNotFound
		}
		result = updated
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteOne implements Store.
func (s *MongoStore) DeleteOne(ctx context.Context, collection string, filter Filter) error {
	result, err := s.collection(collection).DeleteOne(ctx, filterToBSON(filter))
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Count implements Store.
func (s *MongoStore) Count(ctx context.Context, collection string, filter Filter) (int64, error) {
	return s.collection(collection).CountDocuments(ctx, filterToBSON(filter))
}

// Close implements Store.
func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}
