package external

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdeck/internal/types"
)

func newTestStripeClient(t *testing.T, baseURL string) *StripeClient {
	t.Helper()
	base := NewBaseClient(
		&http.Client{Timeout: 5 * time.Second},
		"stripe-test-"+t.Name(),
		RetryPolicy{MaxRetries: 1, MinWait: time.Millisecond, MaxWait: time.Millisecond},
		"OpsDeck-Test/1.0",
		WithSleepFunc(func(time.Duration) {}),
	)
	return NewStripeClientWithBase(base, StripeClientConfig{
		SecretKey: "sk_test_123",
		BaseURL:   baseURL,
		Logger:    slog.New(slog.DiscardHandler),
	})
}

func TestStripeCreatePaymentIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents", r.URL.Path)
		assert.Equal(t, "Bearer sk_test_123", r.Header.Get("Authorization"))
		assert.Equal(t, "idem-42", r.Header.Get("Idempotency-Key"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "5000", r.PostForm.Get("amount"))
		assert.Equal(t, "usd", r.PostForm.Get("currency"))
		assert.Equal(t, "biz_1", r.PostForm.Get("metadata[business_id]"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"requires_payment_method","amount":5000,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv.URL)
	pi, err := c.CreatePaymentIntent(t.Context(), 5000, "USD", "biz_1", "idem-42")
	require.NoError(t, err)
	assert.Equal(t, "pi_123", pi.ID)
	assert.Equal(t, int64(5000), pi.AmountCents)
	assert.Equal(t, "USD", pi.Currency)
	assert.False(t, pi.Succeeded())
}

func TestStripeGetPaymentIntentSucceeded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment_intents/pi_123", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"pi_123","status":"succeeded","amount":5000,"currency":"usd"}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv.URL)
	pi, err := c.GetPaymentIntent(t.Context(), "pi_123")
	require.NoError(t, err)
	assert.True(t, pi.Succeeded())
}

func TestStripeCardDeclinedMapsToPaymentError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","decline_code":"insufficient_funds","message":"Your card has insufficient funds."}}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv.URL)
	_, err := c.CreatePaymentIntent(t.Context(), 5000, "USD", "biz_1", "")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodePaymentDeclined, appErr.Code)
	assert.Equal(t, "insufficient_funds", appErr.Details["decline_code"])
}

func TestStripeGenericErrorMapsToUpstream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Missing required param."}}`))
	}))
	defer srv.Close()

	c := newTestStripeClient(t, srv.URL)
	_, err := c.CreatePaymentIntent(t.Context(), 5000, "USD", "biz_1", "")
	require.Error(t, err)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeUpstreamStripe, appErr.Code)
}
