// Package mongo stores the CRM refresh token as a single MongoDB document of
// shape {token, date}.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/florianilch/leadbridge/internal/tokenstore"
)

// Collection is the subset of *mongo.Collection used by Store.
type Collection interface {
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) *mongo.SingleResult
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (*mongo.UpdateResult, error)
}

type document struct {
	Token string    `bson:"token"`
	Date  time.Time `bson:"date"`
}

// Store implements tokenstore.TokenStore over a MongoDB collection that holds
// exactly one document. Both Read and Write use an empty filter.
type Store struct {
	coll   Collection
	client *mongo.Client
}

// Compile-time check to ensure Store implements tokenstore.TokenStore
var _ tokenstore.TokenStore = (*Store)(nil)

// Connect dials MongoDB and binds the store to database/collection.
func Connect(ctx context.Context, uri, database, collection string) (*Store, error) {
	if uri == "" {
		return nil, fmt.Errorf("mongodb uri cannot be empty")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongodb: %w", err)
	}

	return &Store{
		coll:   client.Database(database).Collection(collection),
		client: client,
	}, nil
}

// New binds the store to an existing collection.
func New(coll Collection) *Store {
	return &Store{coll: coll}
}

// Read returns the stored token or tokenstore.ErrNotFound.
func (s *Store) Read(ctx context.Context) (tokenstore.RefreshToken, error) {
	var doc document
	if err := s.coll.FindOne(ctx, bson.D{}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return tokenstore.RefreshToken{}, tokenstore.ErrNotFound
		}
		return tokenstore.RefreshToken{}, fmt.Errorf("finding refresh token: %w", err)
	}
	return tokenstore.RefreshToken{Value: doc.Token, IssuedAt: doc.Date}, nil
}

// Write sets token and date on the single document, inserting it if absent.
func (s *Store) Write(ctx context.Context, token tokenstore.RefreshToken) error {
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "token", Value: token.Value},
		{Key: "date", Value: token.IssuedAt.UTC()},
	}}}

	if _, err := s.coll.UpdateOne(ctx, bson.D{}, update, options.Update().SetUpsert(true)); err != nil {
		return fmt.Errorf("upserting refresh token: %w", err)
	}
	return nil
}

// Close disconnects the client created by Connect. No-op for stores built with New.
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
