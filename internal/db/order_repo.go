package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsdeck/internal/types"
)

// PurchaseOrderRepository provides data access for the purchase_orders
// collection.
type PurchaseOrderRepository struct {
	coll *mongo.Collection
}

// NewPurchaseOrderRepository creates a PurchaseOrderRepository on the given
// database.
func NewPurchaseOrderRepository(database *mongo.Database) *PurchaseOrderRepository {
	return &PurchaseOrderRepository{coll: database.Collection(collPurchaseOrders)}
}

// Create inserts a new purchase order.
func (r *PurchaseOrderRepository) Create(ctx context.Context, po *types.PurchaseOrder) error {
	if _, err := r.coll.InsertOne(ctx, po); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create purchase order", err)
	}
	return nil
}

// GetByID fetches a purchase order scoped to its owning business.
func (r *PurchaseOrderRepository) GetByID(ctx context.Context, id, businessID string) (*types.PurchaseOrder, error) {
	var po types.PurchaseOrder
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&po)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPurchaseOrder, "purchase order not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load purchase order", err)
	}
	return &po, nil
}

// List returns a business's purchase orders, most recent first.
func (r *PurchaseOrderRepository) List(ctx context.Context, businessID string, limit int) ([]*types.PurchaseOrder, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list purchase orders", err)
	}
	defer cur.Close(ctx)
	var out []*types.PurchaseOrder
	if err := cur.All(ctx, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode purchase orders", err)
	}
	return out, nil
}

// Update replaces the mutable fields of a purchase order (items, status,
// received_at, updated_at).
func (r *PurchaseOrderRepository) Update(ctx context.Context, po *types.PurchaseOrder) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": po.ID, "business_id": po.BusinessID},
		bson.M{"$set": bson.M{
			"items":       po.Items,
			"status":      po.Status,
			"received_at": po.ReceivedAt,
			"updated_at":  po.UpdatedAt,
		}},
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update purchase order", err)
	}
	if res.MatchedCount == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPurchaseOrder, "purchase order not found", nil)
	}
	return nil
}
