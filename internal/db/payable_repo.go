package db

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsdeck/internal/types"
)

// PayableRepository provides data access for the payables collection. It
// doubles as the reminder subsystem's document-store contract: the scheduler
// writes the scheduled_jobs mirror through ReplaceScheduledJobs, the garbage
// collector cascades removals through PullScheduledJobs, and the inspector
// hydrates jobs through GetByIDs / ListWithScheduledJobs.
type PayableRepository struct {
	coll *mongo.Collection
}

// NewPayableRepository creates a PayableRepository on the given database.
func NewPayableRepository(database *mongo.Database) *PayableRepository {
	return &PayableRepository{coll: database.Collection(collPayables)}
}

// Create inserts a new payable. The caller must set the ID and timestamps.
func (r *PayableRepository) Create(ctx context.Context, p *types.Payable) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create payable", err)
	}
	return nil
}

// GetByID fetches a payable scoped to its owning business.
func (r *PayableRepository) GetByID(ctx context.Context, id, businessID string) (*types.Payable, error) {
	var p types.Payable
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPayable, "payable not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load payable", err)
	}
	return &p, nil
}

// List returns a business's payables, most recently created first.
func (r *PayableRepository) List(ctx context.Context, businessID string, limit int) ([]*types.Payable, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list payables", err)
	}
	return decodePayables(ctx, cur)
}

// Update overwrites the mutable fields of a payable. The scheduled_jobs
// mirror is deliberately excluded; only the reminder subsystem writes it.
func (r *PayableRepository) Update(ctx context.Context, p *types.Payable) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID, "business_id": p.BusinessID},
		bson.M{"$set": bson.M{
			"vendor_name":   p.VendorName,
			"reference":     p.Reference,
			"amount_cents":  p.AmountCents,
			"currency":      p.Currency,
			"contact_phone": p.ContactPhone,
			"due_at":        p.DueAt,
			"offsets_days":  p.OffsetsDays,
			"status":        p.Status,
			"updated_at":    p.UpdatedAt,
		}},
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update payable", err)
	}
	if res.MatchedCount == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPayable, "payable not found", nil)
	}
	return nil
}

// GetByIDs batch-fetches payables by ID in a single $in query. IDs with no
// matching document are simply absent from the result.
func (r *PayableRepository) GetByIDs(ctx context.Context, ids []string) ([]*types.Payable, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to batch-load payables", err)
	}
	return decodePayables(ctx, cur)
}

// ListWithScheduledJobs returns a business's payables carrying a non-empty
// scheduled_jobs mirror, for diagnostics and UI display.
func (r *PayableRepository) ListWithScheduledJobs(ctx context.Context, businessID string, limit int) ([]*types.Payable, error) {
	filter := bson.M{
		"business_id":      businessID,
		"scheduled_jobs.0": bson.M{"$exists": true},
	}
	opts := options.Find().SetSort(bson.D{{Key: "due_at", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list scheduled-job mirrors", err)
	}
	return decodePayables(ctx, cur)
}

// ReplaceScheduledJobs overwrites the payable's scheduled_jobs array with
// the most recent scheduling output (full replace, not append) and bumps
// updated_at.
func (r *PayableRepository) ReplaceScheduledJobs(ctx context.Context, payableID string, jobs []types.ScheduledJobRef, updatedAt time.Time) error {
	_, err := r.coll.UpdateByID(ctx, payableID, bson.M{"$set": bson.M{
		"scheduled_jobs": jobs,
		"updated_at":     updatedAt,
	}})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to replace scheduled_jobs mirror", err)
	}
	return nil
}

// PullScheduledJobs removes the given job IDs from the payable's
// scheduled_jobs array, leaving other entries intact.
func (r *PayableRepository) PullScheduledJobs(ctx context.Context, payableID string, jobIDs []string) error {
	_, err := r.coll.UpdateByID(ctx, payableID, bson.M{"$pull": bson.M{
		"scheduled_jobs": bson.M{"job_id": bson.M{"$in": jobIDs}},
	}})
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to pull scheduled_jobs entries", err)
	}
	return nil
}

func decodePayables(ctx context.Context, cur *mongo.Cursor) ([]*types.Payable, error) {
	defer cur.Close(ctx)
	var out []*types.Payable
	if err := cur.All(ctx, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode payables", err)
	}
	return out, nil
}
