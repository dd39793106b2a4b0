package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsdeck/internal/types"
)

// ArchiveRepository stores gzip-compressed batches of pruned reminder
// payloads in the reminder_archives collection. It backs the garbage
// collector's cold-storage sink.
type ArchiveRepository struct {
	coll *mongo.Collection
}

// NewArchiveRepository creates an ArchiveRepository on the given database.
func NewArchiveRepository(database *mongo.Database) *ArchiveRepository {
	return &ArchiveRepository{coll: database.Collection(collArchives)}
}

// StoreArchive persists one compressed batch under its key. Keys carry a
// fresh UUID per sweep, so an upsert doubles as replay protection when a
// sweep is retried.
func (r *ArchiveRepository) StoreArchive(ctx context.Context, key string, data []byte) error {
	update := bson.M{"$set": bson.M{
		"key":       key,
		"data":      data,
		"size":      len(data),
		"stored_at": time.Now().UTC(),
	}}
	opts := options.Update().SetUpsert(true)
	if _, err := r.coll.UpdateOne(ctx, bson.M{"key": key}, update, opts); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store reminder archive", err)
	}
	return nil
}
