// Package social manages posts and their publication to external platforms.
package social

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"opsdeck/internal/external"
	"opsdeck/internal/types"
)

// maxParallelPublishes bounds the platform fan-out of one publish call.
const maxParallelPublishes = 4

// PostRepo is the persistence surface the service needs. Implemented by
// db.PostRepository.
type PostRepo interface {
	Create(ctx context.Context, p *types.SocialPost) error
	GetByID(ctx context.Context, id, businessID string) (*types.SocialPost, error)
	List(ctx context.Context, businessID string, limit int) ([]*types.SocialPost, error)
	Update(ctx context.Context, p *types.SocialPost) error
}

// Service implements post workflows: drafting, scheduling, and fan-out
// publication.
type Service struct {
	repo       PostRepo
	publishers map[types.Platform]external.SocialPublisher
	clk        clock.Clock
	logger     *slog.Logger
}

// NewService creates a social Service. Pass clock.New() in production.
func NewService(repo PostRepo, publishers map[types.Platform]external.SocialPublisher, clk clock.Clock, logger *slog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, publishers: publishers, clk: clk, logger: logger}
}

// CreatePost drafts a post for the given platforms. A future publishAt marks
// the post scheduled; publication itself happens through PublishPost.
func (s *Service) CreatePost(ctx context.Context, businessID, body string, mediaURLs []string, platforms []types.Platform, publishAt *time.Time) (*types.SocialPost, error) {
	if body == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "post body is required", nil)
	}
	if len(platforms) == 0 {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField,
			"post requires at least one platform", nil)
	}
	for _, p := range platforms {
		if _, ok := s.publishers[p]; !ok {
			return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPlatform,
				"unknown platform", nil, map[string]any{"platform": string(p)})
		}
	}

	now := s.clk.Now().UTC()
	status := types.PostDraft
	if publishAt != nil {
		if !publishAt.After(now) {
			return nil, types.NewAppError(types.ErrCodeValidationInvalidWindow,
				"publish_at must be in the future", nil)
		}
		status = types.PostScheduled
	}

	post := &types.SocialPost{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Body:       body,
		MediaURLs:  mediaURLs,
		Platforms:  platforms,
		Status:     status,
		PublishAt:  publishAt,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "post created",
		"post_id", post.ID, "business_id", businessID, "status", status)
	return post, nil
}

// GetPost fetches one post scoped to the business.
func (s *Service) GetPost(ctx context.Context, id, businessID string) (*types.SocialPost, error) {
	return s.repo.GetByID(ctx, id, businessID)
}

// ListPosts returns a business's posts, most recent first.
func (s *Service) ListPosts(ctx context.Context, businessID string, limit int) ([]*types.SocialPost, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, businessID, limit)
}

// PublishPost pushes the post to each of its platforms concurrently and
// records a per-platform result. The post ends up published when every
// platform accepted it and failed otherwise; individual platform errors are
// captured in PlatformResults rather than aborting the others.
func (s *Service) PublishPost(ctx context.Context, id, businessID string) (*types.SocialPost, error) {
	post, err := s.repo.GetByID(ctx, id, businessID)
	if err != nil {
		return nil, err
	}
	if post.Status == types.PostPublished {
		return nil, types.NewAppError(types.ErrCodeConflictAlreadyPublished,
			"post is already published", nil)
	}

	results := make(map[string]types.PublishResult, len(post.Platforms))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPublishes)
	for _, platform := range post.Platforms {
		pub, ok := s.publishers[platform]
		if !ok {
			mu.Lock()
			results[string(platform)] = types.PublishResult{
				Error: "no publisher configured",
				At:    s.clk.Now().UTC(),
			}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			externalID, pubErr := pub.Publish(gctx, post)
			res := types.PublishResult{At: s.clk.Now().UTC()}
			if pubErr != nil {
				res.Error = pubErr.Error()
				s.logger.WarnContext(gctx, "platform publish failed",
					"post_id", post.ID, "platform", platform, "error", pubErr)
			} else {
				res.ExternalID = externalID
			}
			mu.Lock()
			results[string(platform)] = res
			mu.Unlock()
			// Platform failures are recorded, not propagated, so the other
			// platforms still get their attempt.
			return nil
		})
	}
	_ = g.Wait()

	allOK := true
	for _, res := range results {
		if res.Error != "" {
			allOK = false
			break
		}
	}

	now := s.clk.Now().UTC()
	post.PlatformResults = results
	post.UpdatedAt = now
	if allOK {
		post.Status = types.PostPublished
		post.PublishedAt = &now
	} else {
		post.Status = types.PostFailed
	}

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "post publish completed",
		"post_id", post.ID, "status", post.Status, "platforms", len(results))
	return post, nil
}

// PublishDuePosts publishes every scheduled post whose publish time has
// arrived. Returns the number of posts attempted; used by the background
// worker tick.
func (s *Service) PublishDuePosts(ctx context.Context, businessID string) (int, error) {
	posts, err := s.repo.List(ctx, businessID, 0)
	if err != nil {
		return 0, err
	}
	now := s.clk.Now().UTC()
	attempted := 0
	for _, post := range posts {
		if post.Status != types.PostScheduled || post.PublishAt == nil || post.PublishAt.After(now) {
			continue
		}
		attempted++
		if _, err := s.PublishPost(ctx, post.ID, businessID); err != nil {
			s.logger.WarnContext(ctx, "scheduled publish failed",
				"post_id", post.ID, "error", err)
		}
	}
	return attempted, nil
}
