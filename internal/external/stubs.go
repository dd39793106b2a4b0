package external

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"opsdeck/internal/types"
)

// Stub implementations let the platform boot locally with no vendor
// credentials. Every stub logs the action it would have taken and returns a
// plausible success.

// StubSMSSender records sends and returns generated message IDs.
type StubSMSSender struct {
	logger *slog.Logger
	sent   atomic.Int64
}

func NewStubSMSSender(logger *slog.Logger) *StubSMSSender {
	return &StubSMSSender{logger: logger}
}

func (s *StubSMSSender) Send(ctx context.Context, to, body string) (string, error) {
	s.sent.Add(1)
	id := "stub-sms-" + uuid.NewString()
	s.logger.InfoContext(ctx, "stub sms send", "to", to, "chars", len(body), "message_id", id)
	return id, nil
}

// SentCount reports how many messages the stub has accepted.
func (s *StubSMSSender) SentCount() int64 { return s.sent.Load() }

// StubBillingGateway simulates Stripe: every created intent succeeds
// immediately.
type StubBillingGateway struct {
	logger *slog.Logger
}

func NewStubBillingGateway(logger *slog.Logger) *StubBillingGateway {
	return &StubBillingGateway{logger: logger}
}

func (s *StubBillingGateway) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, businessID, idemKey string) (*PaymentIntent, error) {
	pi := &PaymentIntent{
		ID:          "stub-pi-" + uuid.NewString(),
		Status:      "succeeded",
		AmountCents: amountCents,
		Currency:    currency,
	}
	s.logger.InfoContext(ctx, "stub payment intent created",
		"intent_id", pi.ID, "amount_cents", amountCents, "business_id", businessID)
	return pi, nil
}

func (s *StubBillingGateway) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	return &PaymentIntent{ID: intentID, Status: "succeeded"}, nil
}

// StubPublisher accepts every post for its platform.
type StubPublisher struct {
	platform types.Platform
	logger   *slog.Logger
}

func NewStubPublisher(platform types.Platform, logger *slog.Logger) *StubPublisher {
	return &StubPublisher{platform: platform, logger: logger}
}

func (s *StubPublisher) Platform() types.Platform { return s.platform }

func (s *StubPublisher) Publish(ctx context.Context, post *types.SocialPost) (string, error) {
	id := fmt.Sprintf("stub-%s-%s", s.platform, uuid.NewString())
	s.logger.InfoContext(ctx, "stub publish", "platform", s.platform, "post_id", post.ID, "external_id", id)
	return id, nil
}

// StubWebhookVerifier accepts every payload.
type StubWebhookVerifier struct {
	logger *slog.Logger
}

func NewStubWebhookVerifier(logger *slog.Logger) *StubWebhookVerifier {
	return &StubWebhookVerifier{logger: logger}
}

func (s *StubWebhookVerifier) Verify(payload []byte, header string, secret string) error {
	s.logger.Debug("stub webhook verification", "payload_bytes", len(payload))
	return nil
}
