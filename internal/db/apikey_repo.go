package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"opsdeck/internal/types"
)

// APIKeyRepository provides data access for the api_keys collection. Keys
// are looked up by prefix; the full secret is verified against the stored
// bcrypt hash by the auth middleware, never by the repository.
type APIKeyRepository struct {
	coll *mongo.Collection
}

// NewAPIKeyRepository creates an APIKeyRepository on the given database.
func NewAPIKeyRepository(database *mongo.Database) *APIKeyRepository {
	return &APIKeyRepository{coll: database.Collection(collAPIKeys)}
}

// Create inserts a new API key record (prefix + hash only).
func (r *APIKeyRepository) Create(ctx context.Context, k *types.APIKey) error {
	if _, err := r.coll.InsertOne(ctx, k); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create api key", err)
	}
	return nil
}

// GetByPrefix fetches the key record matching a public prefix. Returns
// ok=false when no key carries the prefix, without an error, so the auth
// middleware can respond uniformly to unknown and invalid keys.
func (r *APIKeyRepository) GetByPrefix(ctx context.Context, prefix string) (*types.APIKey, bool, error) {
	var k types.APIKey
	err := r.coll.FindOne(ctx, bson.M{"prefix": prefix}).Decode(&k)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeInternalDB, "failed to load api key", err)
	}
	return &k, true, nil
}
