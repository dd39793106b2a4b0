package external

import (
	"log/slog"
	"net/http"
	"time"

	"opsdeck/internal/config"
	"opsdeck/internal/types"
)

// ClientRegistry is the single point of access to third-party services. The
// rest of the application receives the registry (or slices of it) instead of
// constructing vendor clients directly.
type ClientRegistry struct {
	Billing    BillingGateway
	SMS        SMSSender
	Publishers map[types.Platform]SocialPublisher

	StripeVerifier WebhookVerifier
}

// NewClientRegistry initializes every external client from configuration. In
// the local environment the registry is populated with stubs so the platform
// boots without vendor credentials; otherwise real clients with strict
// timeouts are wired.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) *ClientRegistry {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.Environment == "local" {
		logger.Info("initializing external clients in stub mode", "environment", cfg.Environment)
		return newStubRegistry(logger)
	}

	logger.Info("initializing external clients", "environment", cfg.Environment)
	reg := &ClientRegistry{
		Publishers: make(map[types.Platform]SocialPublisher),
	}

	reg.Billing = NewStripeClient(&http.Client{Timeout: 20 * time.Second}, StripeClientConfig{
		SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
		Logger:    logger.With("client", "stripe"),
	})
	reg.StripeVerifier = &StripeVerifier{}

	reg.SMS = NewSMSClient(cfg.SMS, logger.With("client", "sms"))

	// Each platform gets its own publisher and breaker. When the social
	// gateway is not configured, publishing falls back to stubs so post
	// endpoints remain usable in partial deployments.
	if cfg.Social.BaseURL != "" {
		for _, platform := range types.KnownPlatforms {
			reg.Publishers[platform] = NewHTTPPublisher(
				&http.Client{Timeout: cfg.Social.Timeout},
				HTTPPublisherConfig{
					Platform: platform,
					Endpoint: cfg.Social.BaseURL + "/" + string(platform),
					Token:    cfg.Social.Token.Unmask(),
					Logger:   logger.With("client", "publisher", "platform", platform),
				},
			)
		}
	} else {
		stubLogger := logger.With("mode", "stub")
		for _, platform := range types.KnownPlatforms {
			reg.Publishers[platform] = NewStubPublisher(platform, stubLogger)
		}
	}

	return reg
}

func newStubRegistry(logger *slog.Logger) *ClientRegistry {
	stubLogger := logger.With("mode", "stub")
	publishers := make(map[types.Platform]SocialPublisher, len(types.KnownPlatforms))
	for _, platform := range types.KnownPlatforms {
		publishers[platform] = NewStubPublisher(platform, stubLogger)
	}
	return &ClientRegistry{
		Billing:        NewStubBillingGateway(stubLogger),
		SMS:            NewStubSMSSender(stubLogger),
		Publishers:     publishers,
		StripeVerifier: NewStubWebhookVerifier(stubLogger),
	}
}
