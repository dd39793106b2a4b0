// Package queue provides the SQS producer that announces dispatched reminders
// to downstream consumers (webhook fan-out, analytics ingestion).
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqsTypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"opsdeck/internal/config"
	"opsdeck/internal/types"
)

// SQSSender abstracts the SQS SendMessage operation for testability.
// Production code uses the *sqs.Client from aws-sdk-go-v2.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DispatchMessage is the envelope published for every reminder the worker
// hands to the SMS gateway. Consumers correlate on JobID.
type DispatchMessage struct {
	MessageID    string    `json:"message_id"`
	JobID        string    `json:"job_id"`
	PayableID    string    `json:"payable_id"`
	BusinessID   string    `json:"business_id"`
	OffsetDays   int       `json:"offset_days"`
	GatewayMsgID string    `json:"gateway_msg_id,omitempty"`
	Result       string    `json:"result"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// ReminderDispatcher publishes DispatchMessages to the reminder dispatch queue.
type ReminderDispatcher struct {
	client   SQSSender
	queueURL string
	logger   *slog.Logger
}

// NewReminderDispatcher creates a dispatcher bound to the configured queue.
func NewReminderDispatcher(client SQSSender, awsCfg config.AWSConfig, logger *slog.Logger) *ReminderDispatcher {
	return &ReminderDispatcher{
		client:   client,
		queueURL: awsCfg.DispatchQueueURL,
		logger:   logger,
	}
}

// Publish serializes the message and sends it to SQS. The result attribute
// ("sent" or "failed") lets consumers filter without parsing the body.
func (d *ReminderDispatcher) Publish(ctx context.Context, msg DispatchMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = uuid.NewString()
	}
	if msg.DispatchedAt.IsZero() {
		msg.DispatchedAt = time.Now().UTC()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("queue: failed to marshal dispatch message: %w", err)
	}

	input := &sqs.SendMessageInput{
		QueueUrl:    aws.String(d.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]sqsTypes.MessageAttributeValue{
			"result": {
				DataType:    aws.String("String"),
				StringValue: aws.String(msg.Result),
			},
		},
	}

	if _, err := d.client.SendMessage(ctx, input); err != nil {
		return types.NewAppError(types.ErrCodeUpstreamQueue,
			fmt.Sprintf("failed to publish dispatch message for job %s", msg.JobID), err)
	}

	d.logger.InfoContext(ctx, "dispatch message published",
		"queue_url", d.queueURL,
		"message_id", msg.MessageID,
		"job_id", msg.JobID,
		"payable_id", msg.PayableID,
		"result", msg.Result,
	)
	return nil
}
