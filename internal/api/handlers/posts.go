package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"opsdeck/internal/core"
	"opsdeck/internal/types"
)

// PostService is the publishing contract for the post handler. Implemented
// by social.Service.
type PostService interface {
	CreatePost(ctx context.Context, businessID, body string, mediaURLs []string, platforms []types.Platform, publishAt *time.Time) (*types.SocialPost, error)
	GetPost(ctx context.Context, id, businessID string) (*types.SocialPost, error)
	ListPosts(ctx context.Context, businessID string, limit int) ([]*types.SocialPost, error)
	PublishPost(ctx context.Context, id, businessID string) (*types.SocialPost, error)
}

// CreatePostRequest is the request body for POST /v1/posts. A nil publish_at
// creates a draft; a future publish_at schedules the post.
type CreatePostRequest struct {
	Body      string           `json:"body" validate:"required,max=5000"`
	MediaURLs []string         `json:"media_urls,omitempty" validate:"max=10,dive,url"`
	Platforms []types.Platform `json:"platforms" validate:"required,min=1"`
	PublishAt *time.Time       `json:"publish_at,omitempty"`
}

// PostHandler manages social post creation and publication.
type PostHandler struct {
	posts     PostService
	validator *core.Validator
	logger    *slog.Logger
}

// NewPostHandler creates a PostHandler.
func NewPostHandler(posts PostService, v *core.Validator, logger *slog.Logger) *PostHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostHandler{posts: posts, validator: v, logger: logger}
}

// RegisterRoutes mounts post routes on the provided chi.Router.
func (h *PostHandler) RegisterRoutes(r chi.Router) {
	r.Route("/posts", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Post("/publish", h.Publish)
		})
	})
}

// Create handles POST /v1/posts. Platform and schedule validation beyond the
// struct tags (known publishers, future publish_at) lives in the service.
func (h *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	var req CreatePostRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	post, err := h.posts.CreatePost(r.Context(), actor.BusinessID, req.Body, req.MediaURLs, req.Platforms, req.PublishAt)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, core.APIResponse{Data: post})
}

// Get handles GET /v1/posts/{id}.
func (h *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	post, err := h.posts.GetPost(r.Context(), chi.URLParam(r, "id"), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: post})
}

// List handles GET /v1/posts.
func (h *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	posts, err := h.posts.ListPosts(r.Context(), actor.BusinessID, clampLimit(r.URL.Query().Get("limit")))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: posts})
}

// Publish handles POST /v1/posts/{id}/publish: immediate fan-out to every
// platform on the post. Per-platform failures land in platform_results
// rather than failing the request.
func (h *PostHandler) Publish(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r)
	if !ok {
		return
	}

	post, err := h.posts.PublishPost(r.Context(), chi.URLParam(r, "id"), actor.BusinessID)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: post})
}
