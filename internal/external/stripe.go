package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"

	"opsdeck/internal/types"
)

// stripeAPIBase is the default Stripe API base URL; tests override it.
const stripeAPIBase = "https://api.stripe.com"

// PaymentIntent is the subset of a Stripe PaymentIntent the wallet service
// needs to credit a top-up.
type PaymentIntent struct {
	ID          string
	Status      string
	AmountCents int64
	Currency    string
}

// Succeeded reports whether the intent has settled and may be credited.
func (p PaymentIntent) Succeeded() bool {
	return p.Status == "succeeded"
}

// StripeClientConfig holds the configuration for creating a StripeClient.
type StripeClientConfig struct {
	SecretKey string
	BaseURL   string // override for testing; defaults to stripeAPIBase
	Logger    *slog.Logger
}

// StripeClient makes direct HTTP calls to the Stripe REST API through the
// BaseClient, so Stripe traffic shares the platform's breaker, retry, and
// error-mapping behavior and tests can point it at an httptest server.
type StripeClient struct {
	base      *BaseClient
	secretKey string
	baseURL   string
	logger    *slog.Logger
}

// NewStripeClient creates a StripeClient with default resilience settings.
func NewStripeClient(httpClient *http.Client, cfg StripeClientConfig) *StripeClient {
	base := NewBaseClient(
		httpClient,
		"stripe",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"OpsDeck/1.0",
	)
	return NewStripeClientWithBase(base, cfg)
}

// NewStripeClientWithBase creates a StripeClient around a pre-configured
// BaseClient.
func NewStripeClientWithBase(base *BaseClient, cfg StripeClientConfig) *StripeClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = stripeAPIBase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeClient{
		base:      base,
		secretKey: cfg.SecretKey,
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		logger:    logger,
	}
}

// CreatePaymentIntent opens a payment for a wallet top-up. The business ID
// rides in metadata for webhook correlation, and the caller's idempotency key
// is forwarded so Stripe deduplicates retried requests.
func (s *StripeClient) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, businessID, idemKey string) (*PaymentIntent, error) {
	params := url.Values{}
	params.Set("amount", fmt.Sprintf("%d", amountCents))
	params.Set("currency", strings.ToLower(currency))
	params.Set("metadata[business_id]", businessID)

	req, err := s.newFormRequest(ctx, "/v1/payment_intents", params)
	if err != nil {
		return nil, err
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, s.wrapTransportError("CreatePaymentIntent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "CreatePaymentIntent")
	}
	return decodePaymentIntent(resp.Body)
}

// GetPaymentIntent fetches the current state of a payment intent. The wallet
// service verifies Succeeded() before crediting the ledger.
func (s *StripeClient) GetPaymentIntent(ctx context.Context, intentID string) (*PaymentIntent, error) {
	reqURL := s.baseURL + "/v1/payment_intents/" + url.PathEscape(intentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	s.setAuthHeaders(req)

	resp, err := s.base.Do(req)
	if err != nil {
		return nil, s.wrapTransportError("GetPaymentIntent", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, s.handleErrorResponse(resp, "GetPaymentIntent")
	}
	return decodePaymentIntent(resp.Body)
}

func (s *StripeClient) newFormRequest(ctx context.Context, path string, params url.Values) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build stripe request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	s.setAuthHeaders(req)
	return req, nil
}

func (s *StripeClient) setAuthHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+s.secretKey)
	req.Header.Set("Stripe-Version", stripe.APIVersion)
}

type stripePaymentIntent struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func decodePaymentIntent(body io.Reader) (*PaymentIntent, error) {
	var pi stripePaymentIntent
	if err := json.NewDecoder(body).Decode(&pi); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
			"failed to decode stripe payment intent response", err)
	}
	return &PaymentIntent{
		ID:          pi.ID,
		Status:      pi.Status,
		AmountCents: pi.Amount,
		Currency:    strings.ToUpper(pi.Currency),
	}, nil
}

type stripeErrorResponse struct {
	Error stripeErrorBody `json:"error"`
}

type stripeErrorBody struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
}

// handleErrorResponse reads a Stripe error body and maps it to an AppError.
func (s *StripeClient) handleErrorResponse(resp *http.Response, operation string) error {
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: stripe returned status %d with unreadable body", operation, resp.StatusCode), readErr)
	}
	var stripeErr stripeErrorResponse
	if jsonErr := json.Unmarshal(raw, &stripeErr); jsonErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: stripe returned status %d with non-JSON body", operation, resp.StatusCode), jsonErr)
	}

	body := stripeErr.Error
	if body.Code == "card_declined" || body.DeclineCode != "" {
		return types.NewAppErrorWithDetails(types.ErrCodePaymentDeclined,
			fmt.Sprintf("%s: payment declined: %s", operation, body.Message), nil,
			map[string]any{"decline_code": body.DeclineCode, "stripe_code": body.Code})
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return types.NewAppError(types.ErrCodeUpstreamRateLimited,
			fmt.Sprintf("%s: stripe rate limit exceeded", operation), nil)
	case resp.StatusCode >= 500:
		return types.NewAppError(types.ErrCodeUpstreamUnavailable,
			fmt.Sprintf("%s: stripe server error: %s", operation, body.Message), nil)
	default:
		return types.NewAppError(types.ErrCodeUpstreamStripe,
			fmt.Sprintf("%s: stripe error (%d): %s", operation, resp.StatusCode, body.Message), nil)
	}
}

func (s *StripeClient) wrapTransportError(operation string, err error) error {
	if _, ok := err.(*types.AppError); ok {
		return err
	}
	return types.NewAppError(types.ErrCodeUpstreamStripe,
		fmt.Sprintf("%s: stripe request failed", operation), err)
}

// StripeVerifier validates Stripe webhook signatures using stripe-go's
// HMAC-SHA256 check with timestamp tolerance.
type StripeVerifier struct{}

func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	return stripe.ValidatePayload(payload, header, secret)
}
