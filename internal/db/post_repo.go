package db

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"opsdeck/internal/types"
)

// PostRepository provides data access for the posts collection.
type PostRepository struct {
	coll *mongo.Collection
}

// NewPostRepository creates a PostRepository on the given database.
func NewPostRepository(database *mongo.Database) *PostRepository {
	return &PostRepository{coll: database.Collection(collPosts)}
}

// Create inserts a new social post.
func (r *PostRepository) Create(ctx context.Context, p *types.SocialPost) error {
	if _, err := r.coll.InsertOne(ctx, p); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create post", err)
	}
	return nil
}

// GetByID fetches a post scoped to its owning business.
func (r *PostRepository) GetByID(ctx context.Context, id, businessID string) (*types.SocialPost, error) {
	var p types.SocialPost
	err := r.coll.FindOne(ctx, bson.M{"_id": id, "business_id": businessID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, types.NewAppError(types.ErrCodeNotFoundPost, "post not found", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load post", err)
	}
	return &p, nil
}

// List returns a business's posts, most recent first.
func (r *PostRepository) List(ctx context.Context, businessID string, limit int) ([]*types.SocialPost, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, bson.M{"business_id": businessID}, opts)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list posts", err)
	}
	defer cur.Close(ctx)
	var out []*types.SocialPost
	if err := cur.All(ctx, &out); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to decode posts", err)
	}
	return out, nil
}

// Update replaces the mutable fields of a post, including per-platform
// publish results.
func (r *PostRepository) Update(ctx context.Context, p *types.SocialPost) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": p.ID, "business_id": p.BusinessID},
		bson.M{"$set": bson.M{
			"body":             p.Body,
			"media_urls":       p.MediaURLs,
			"platforms":        p.Platforms,
			"status":           p.Status,
			"publish_at":       p.PublishAt,
			"published_at":     p.PublishedAt,
			"platform_results": p.PlatformResults,
			"updated_at":       p.UpdatedAt,
		}},
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update post", err)
	}
	if res.MatchedCount == 0 {
		return types.NewAppError(types.ErrCodeNotFoundPost, "post not found", nil)
	}
	return nil
}
