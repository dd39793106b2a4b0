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

	"opsdeck/internal/config"
	"opsdeck/internal/types"
)

// SMSSender delivers one text message and returns the gateway's message ID.
// The reminder worker depends on this interface rather than the concrete
// gateway client.
type SMSSender interface {
	Send(ctx context.Context, to, body string) (messageID string, err error)
}

// SMSClient talks to the SMS gateway's REST API through the BaseClient.
// Requests are form-encoded and authenticated with the account token, the
// scheme most hosted gateways share.
type SMSClient struct {
	base      *BaseClient
	baseURL   string
	accountID string
	authToken string
	from      string
	logger    *slog.Logger
}

// NewSMSClient creates an SMSClient from gateway configuration.
func NewSMSClient(cfg config.SMSConfig, logger *slog.Logger) *SMSClient {
	if logger == nil {
		logger = slog.Default()
	}
	base := NewBaseClient(
		&http.Client{Timeout: cfg.Timeout},
		"sms-gateway",
		RetryPolicy{MaxRetries: 2, MinWait: 500 * time.Millisecond, MaxWait: 5 * time.Second},
		"OpsDeck/1.0",
	)
	return &SMSClient{
		base:      base,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		accountID: cfg.AccountID,
		authToken: cfg.AuthToken.Unmask(),
		from:      cfg.From,
		logger:    logger,
	}
}

// NewSMSClientWithBase creates an SMSClient with a pre-configured BaseClient,
// for tests that need to control retry and breaker behavior.
func NewSMSClientWithBase(base *BaseClient, cfg config.SMSConfig, logger *slog.Logger) *SMSClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMSClient{
		base:      base,
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		accountID: cfg.AccountID,
		authToken: cfg.AuthToken.Unmask(),
		from:      cfg.From,
		logger:    logger,
	}
}

type smsMessageResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type smsErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send submits one outbound message. The returned message ID is the gateway's
// identifier, recorded on the reminder job for delivery tracing.
func (c *SMSClient) Send(ctx context.Context, to, body string) (string, error) {
	params := url.Values{}
	params.Set("from", c.from)
	params.Set("to", to)
	params.Set("body", body)

	endpoint := fmt.Sprintf("%s/v1/accounts/%s/messages", c.baseURL, c.accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build sms request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Bearer "+c.authToken)

	resp, err := c.base.Do(req)
	if err != nil {
		if _, ok := err.(*types.AppError); ok {
			return "", err
		}
		return "", types.NewAppError(types.ErrCodeUpstreamSMSGateway, "sms gateway request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", c.mapGatewayError(resp)
	}

	var msg smsMessageResponse
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamSMSGateway,
			"failed to decode sms gateway response", err)
	}
	return msg.ID, nil
}

func (c *SMSClient) mapGatewayError(resp *http.Response) error {
	raw, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamSMSGateway,
			fmt.Sprintf("sms gateway returned %d with unreadable body", resp.StatusCode), readErr)
	}
	var gwErr smsErrorResponse
	if jsonErr := json.Unmarshal(raw, &gwErr); jsonErr != nil {
		return types.NewAppError(types.ErrCodeUpstreamSMSGateway,
			fmt.Sprintf("sms gateway returned %d", resp.StatusCode), jsonErr)
	}
	if resp.StatusCode == http.StatusBadRequest {
		return types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidPhone,
			"sms gateway rejected recipient", nil,
			map[string]any{"gateway_code": gwErr.Code, "gateway_message": gwErr.Message})
	}
	return types.NewAppErrorWithDetails(types.ErrCodeUpstreamSMSGateway,
		fmt.Sprintf("sms gateway error (%d)", resp.StatusCode), nil,
		map[string]any{"gateway_code": gwErr.Code, "gateway_message": gwErr.Message})
}
