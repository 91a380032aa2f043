package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"query-assistant/internal/domain"
)

// collectionAPI is the subset of *mongo.Collection used by MongoStore.
type collectionAPI interface {
	InsertOne(ctx context.Context, document any, opts ...options.Lister[options.InsertOneOptions]) (*mongo.InsertOneResult, error)
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
}

// historyDoc is the stored document shape: {user, ai, timestamp}. _id is left
// to the server; turn_id is absent on documents written by older deployments.
type historyDoc struct {
	TurnID    string    `bson:"turn_id,omitempty"`
	User      string    `bson:"user"`
	AI        string    `bson:"ai"`
	Timestamp time.Time `bson:"timestamp"`
}

// MongoStore keeps the turn log in the chat_history.history collection.
type MongoStore struct {
	coll   collectionAPI
	client *mongo.Client
}

// NewMongoStore wraps an existing collection handle.
func NewMongoStore(coll collectionAPI) (*MongoStore, error) {
	if coll == nil {
		return nil, errors.New("repository: collection must not be nil")
	}
	return &MongoStore{coll: coll}, nil
}

// ConnectMongo dials uri and returns a store bound to the fixed database and
// collection. The caller owns Close.
func ConnectMongo(ctx context.Context, uri string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("repository: mongo uri must not be empty")
	}
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("repository: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("repository: mongo ping: %w", err)
	}
	return &MongoStore{
		coll:   client.Database(DatabaseName).Collection(CollectionName),
		client: client,
	}, nil
}

// Append inserts one turn document.
func (s *MongoStore) Append(ctx context.Context, turn domain.Turn) error {
	if turn.ID == "" {
		return errors.New("repository: Append: turn id is required")
	}
	_, err := s.coll.InsertOne(ctx, historyDoc{
		TurnID:    turn.ID,
		User:      turn.Input,
		AI:        turn.Output,
		Timestamp: turn.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("repository: Append: %w", err)
	}
	return nil
}

// Recent returns up to limit turns sorted by timestamp descending.
func (s *MongoStore) Recent(ctx context.Context, limit int) ([]domain.Turn, error) {
	if limit <= 0 {
		return nil, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("repository: Recent find: %w", err)
	}
	var docs []historyDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("repository: Recent decode: %w", err)
	}

	turns := make([]domain.Turn, 0, len(docs))
	for _, d := range docs {
		turns = append(turns, domain.Turn{
			ID:        d.TurnID,
			Input:     d.User,
			Output:    d.AI,
			Timestamp: d.Timestamp,
		})
	}
	if len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

// Ping checks the server is reachable. Stores built with NewMongoStore have no
// client and always succeed.
func (s *MongoStore) Ping(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("repository: mongo ping: %w", err)
	}
	return nil
}

// Close disconnects the underlying client, if any.
func (s *MongoStore) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("repository: mongo disconnect: %w", err)
	}
	return nil
}
