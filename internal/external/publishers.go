package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"opsdeck/internal/types"
)

// HTTPPublisher publishes posts to one platform's content API through the
// BaseClient. Each configured platform gets its own instance and therefore
// its own circuit breaker, so one degraded platform does not trip the others.
type HTTPPublisher struct {
	base     *BaseClient
	platform types.Platform
	endpoint string
	token    string
	logger   *slog.Logger
}

// HTTPPublisherConfig configures a single platform publisher.
type HTTPPublisherConfig struct {
	Platform types.Platform
	Endpoint string
	Token    string
	Logger   *slog.Logger
}

// NewHTTPPublisher creates a publisher for one platform.
func NewHTTPPublisher(httpClient *http.Client, cfg HTTPPublisherConfig) *HTTPPublisher {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		httpClient,
		"publisher-"+string(cfg.Platform),
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"OpsDeck/1.0",
	)
	return &HTTPPublisher{
		base:     base,
		platform: cfg.Platform,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		token:    cfg.Token,
		logger:   logger,
	}
}

func (p *HTTPPublisher) Platform() types.Platform { return p.platform }

type publishRequest struct {
	Body      string   `json:"body"`
	MediaURLs []string `json:"media_urls,omitempty"`
	Reference string   `json:"reference"`
}

type publishResponse struct {
	ID string `json:"id"`
}

// Publish posts the content and returns the platform's ID for the created
// item.
func (p *HTTPPublisher) Publish(ctx context.Context, post *types.SocialPost) (string, error) {
	payload, err := json.Marshal(publishRequest{
		Body:      post.Body,
		MediaURLs: post.MediaURLs,
		Reference: post.ID,
	})
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode publish request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/posts", bytes.NewReader(payload))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build publish request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamSocial,
			fmt.Sprintf("publish to %s failed", p.platform), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", types.NewAppErrorWithDetails(types.ErrCodeUpstreamSocial,
			fmt.Sprintf("%s returned %d", p.platform, resp.StatusCode), nil,
			map[string]any{"response": string(raw)})
	}

	var out publishResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSocial,
			fmt.Sprintf("failed to decode %s publish response", p.platform), err)
	}
	return out.ID, nil
}
