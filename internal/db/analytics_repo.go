package db

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"opsdeck/internal/types"
)

// AnalyticsRepository runs the aggregation pipelines behind the dashboard.
// All queries are scoped to one business and read-only.
type AnalyticsRepository struct {
	db *mongo.Database
}

// NewAnalyticsRepository creates an AnalyticsRepository on the given database.
func NewAnalyticsRepository(database *mongo.Database) *AnalyticsRepository {
	return &AnalyticsRepository{db: database}
}

// StatusCount is one bucket of a group-by-status aggregation.
type StatusCount struct {
	Status string `bson:"_id"`
	Count  int64  `bson:"count"`
	// AmountCents is populated only for payable aggregations.
	AmountCents int64 `bson:"amount_cents"`
}

// PayablesByStatus groups the business's payables by status with per-status
// amount totals.
func (r *AnalyticsRepository) PayablesByStatus(ctx context.Context, businessID string) ([]StatusCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"business_id": businessID}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          "$status",
			"count":        bson.M{"$sum": 1},
			"amount_cents": bson.M{"$sum": "$amount_cents"},
		}}},
	}
	return r.aggregateStatusCounts(ctx, collPayables, pipeline)
}

// PayablesDueWithin returns count and amount of open payables due in
// [now, now+horizon].
func (r *AnalyticsRepository) PayablesDueWithin(ctx context.Context, businessID string, now time.Time, horizon time.Duration) (count int64, amountCents int64, err error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"business_id": businessID,
			"status":      string(types.PayableOpen),
			"due_at":      bson.M{"$gte": now, "$lte": now.Add(horizon)},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":          nil,
			"count":        bson.M{"$sum": 1},
			"amount_cents": bson.M{"$sum": "$amount_cents"},
		}}},
	}
	rows, err := r.aggregateStatusCounts(ctx, collPayables, pipeline)
	if err != nil {
		return 0, 0, err
	}
	if len(rows) == 0 {
		return 0, 0, nil
	}
	return rows[0].Count, rows[0].AmountCents, nil
}

// OrdersByStatus groups the business's purchase orders by status.
func (r *AnalyticsRepository) OrdersByStatus(ctx context.Context, businessID string) ([]StatusCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"business_id": businessID}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
	return r.aggregateStatusCounts(ctx, collPurchaseOrders, pipeline)
}

// PostsByStatus groups the business's posts by status.
func (r *AnalyticsRepository) PostsByStatus(ctx context.Context, businessID string) ([]StatusCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{"business_id": businessID}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   "$status",
			"count": bson.M{"$sum": 1},
		}}},
	}
	return r.aggregateStatusCounts(ctx, collPosts, pipeline)
}

// ScheduledReminderCount counts mirror entries across the business's
// payables: the number of reminders currently registered per the document
// store's view.
func (r *AnalyticsRepository) ScheduledReminderCount(ctx context.Context, businessID string) (int64, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.M{
			"business_id":      businessID,
			"scheduled_jobs.0": bson.M{"$exists": true},
		}}},
		bson.D{{Key: "$project", Value: bson.M{
			"n": bson.M{"$size": "$scheduled_jobs"},
		}}},
		bson.D{{Key: "$group", Value: bson.M{
			"_id":   nil,
			"count": bson.M{"$sum": "$n"},
		}}},
	}
	rows, err := r.aggregateStatusCounts(ctx, collPayables, pipeline)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Count, nil
}

func (r *AnalyticsRepository) aggregateStatusCounts(ctx context.Context, coll string, pipeline mongo.Pipeline) ([]StatusCount, error) {
	cur, err := r.db.Collection(coll).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "aggregation failed", err)
	}
	defer cur.Close(ctx)
	var out []StatusCount
	if err := cur.All(ctx, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode aggregation", err)
	}
	return out, nil
}
