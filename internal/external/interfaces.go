package external

import (
	"context"

	"opsdeck/internal/types"
)

// BillingGateway is the payment-provider surface the wallet service depends
// on. The production implementation is StripeClient.
type BillingGateway interface {
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, businessID, idemKey string) (*PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error)
}

// SocialPublisher pushes one post to a single external platform.
type SocialPublisher interface {
	Platform() types.Platform
	Publish(ctx context.Context, post *types.SocialPost) (externalID string, err error)
}

// WebhookVerifier checks a webhook payload against its signature header.
type WebhookVerifier interface {
	Verify(payload []byte, header string, secret string) error
}
