package app

import (
	"context"
	"fmt"

	"github.com/florianilch/leadbridge/internal/crypto"
	"github.com/florianilch/leadbridge/internal/tokenstore"
	"github.com/florianilch/leadbridge/internal/tokenstore/dynamo"
	"github.com/florianilch/leadbridge/internal/tokenstore/mongo"
	"github.com/florianilch/leadbridge/internal/tokenstore/postgres"
	"github.com/florianilch/leadbridge/internal/tokenstore/sqlite"
)

// closeFunc releases a store's connections.
type closeFunc func(context.Context) error

func noClose(context.Context) error { return nil }

// newTokenStore creates the configured refresh token backend. Database backends
// connect and migrate here; the returned closeFunc is never nil.
func newTokenStore(ctx context.Context, cfg StorageConfig, clients *awsClients) (tokenstore.TokenStore, closeFunc, error) {
	store, closer, err := openBackend(ctx, cfg, clients)
	if err != nil {
		return nil, nil, err
	}

	if cfg.KMSKeyID == "" {
		return store, closer, nil
	}

	kmsClient, err := clients.kms()
	if err != nil {
		_ = closer(ctx)
		return nil, nil, err
	}
	encryptor, err := crypto.NewKMSService(kmsClient, cfg.KMSKeyID)
	if err != nil {
		_ = closer(ctx)
		return nil, nil, err
	}
	encrypted, err := tokenstore.NewEncryptedStore(store, encryptor)
	if err != nil {
		_ = closer(ctx)
		return nil, nil, err
	}
	return encrypted, closer, nil
}

func openBackend(ctx context.Context, cfg StorageConfig, clients *awsClients) (tokenstore.TokenStore, closeFunc, error) {
	switch cfg.Type {
	case TokenStorageTypeFile:
		store, err := tokenstore.NewFileStore(cfg.File)
		return store, noClose, err
	case TokenStorageTypeKeyring:
		store, err := tokenstore.NewKeyringStore(keyringService, cfg.KeyringUser)
		return store, noClose, err
	case TokenStorageTypeMemory:
		return tokenstore.NewMemoryStore(), noClose, nil
	case TokenStorageTypePostgres:
		store, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil
	case TokenStorageTypeSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, func(context.Context) error { return store.Close() }, nil
	case TokenStorageTypeDynamoDB:
		client, err := clients.dynamoDB()
		if err != nil {
			return nil, nil, err
		}
		store, err := dynamo.New(client, cfg.DynamoDBTable)
		return store, noClose, err
	case TokenStorageTypeMongoDB:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
