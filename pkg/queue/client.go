package queue

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/notewellhq/notewell-backend/pkg/config"
	"github.com/notewellhq/notewell-backend/pkg/errors"
)

// sqsBatchMax is the SQS limit on entries per batch call.
const sqsBatchMax = 10

// API is the slice of the SQS client the gateway depends on.
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	SendMessageBatch(ctx context.Context, params *sqs.SendMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageBatchOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessageBatch(ctx context.Context, params *sqs.DeleteMessageBatchInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageBatchOutput, error)
	GetQueueAttributes(ctx context.Context, params *sqs.GetQueueAttributesInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueAttributesOutput, error)
}

// NewSQS builds an SQS client, honouring a local endpoint override.
func NewSQS(awsCfg aws.Config, endpoint *string) *sqs.Client {
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if endpoint != nil {
			o.BaseEndpoint = endpoint
		}
	})
}

// Client is the queue gateway. It owns envelope encoding on the way in and
// classification on the way out; callers only ever see Message values.
type Client struct {
	api API
	cfg config.QueueConfig
}

func New(api API, cfg config.QueueConfig) (*Client, error) {
	if api == nil {
		return nil, fmt.Errorf("sqs api is required")
	}
	if cfg.URL == "" {
		return nil, fmt.Errorf("queue url is required")
	}
	if cfg.MaxReceive < 1 || cfg.MaxReceive > sqsBatchMax {
		return nil, fmt.Errorf("queue max receive must be between 1 and %d", sqsBatchMax)
	}
	return &Client{api: api, cfg: cfg}, nil
}

// Enqueue publishes a single message.
func (c *Client) Enqueue(ctx context.Context, msg Message) error {
	body, err := msg.Encode()
	if err != nil {
		return errors.Wrap(errors.CodeInternal, err, "encoding queue message")
	}
	_, err = c.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(c.cfg.URL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return errors.Wrap(errors.CodeDependency, err, "sending queue message")
	}
	return nil
}

// EnqueueBatch publishes messages in chunks of the SQS batch limit. A single
// failed entry fails the whole call; producers treat enqueue as atomic.
func (c *Client) EnqueueBatch(ctx context.Context, msgs []Message) error {
	for start := 0; start < len(msgs); start += sqsBatchMax {
		end := min(start+sqsBatchMax, len(msgs))

		entries := make([]types.SendMessageBatchRequestEntry, 0, end-start)
		for i, msg := range msgs[start:end] {
			body, err := msg.Encode()
			if err != nil {
				return errors.Wrap(errors.CodeInternal, err, "encoding queue message")
			}
			entries = append(entries, types.SendMessageBatchRequestEntry{
				Id:          aws.String(strconv.Itoa(start + i)),
				MessageBody: aws.String(string(body)),
			})
		}

		out, err := c.api.SendMessageBatch(ctx, &sqs.SendMessageBatchInput{
			QueueUrl: aws.String(c.cfg.URL),
			Entries:  entries,
		})
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "sending queue batch")
		}
		if len(out.Failed) > 0 {
			return errors.New(errors.CodeDependency,
				fmt.Sprintf("queue rejected %d of %d batch entries", len(out.Failed), len(entries)))
		}
	}
	return nil
}

// ReceiveBatch long-polls for up to the configured batch size and classifies
// each raw payload. An empty slice means the poll timed out with no traffic.
func (c *Client) ReceiveBatch(ctx context.Context) ([]Message, error) {
	out, err := c.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.cfg.URL),
		MaxNumberOfMessages: int32(c.cfg.MaxReceive),
		WaitTimeSeconds:     int32(c.cfg.WaitTime.Seconds()),
		VisibilityTimeout:   int32(c.cfg.VisibilityTimeout.Seconds()),
	})
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "receiving queue batch")
	}

	msgs := make([]Message, 0, len(out.Messages))
	for _, raw := range out.Messages {
		msg := Parse([]byte(aws.ToString(raw.Body)))
		msg.ReceiptHandle = aws.ToString(raw.ReceiptHandle)
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// DeleteBatch acknowledges messages by receipt handle, in chunks of the SQS
// batch limit. Entries without a receipt handle are skipped.
func (c *Client) DeleteBatch(ctx context.Context, msgs []Message) error {
	entries := make([]types.DeleteMessageBatchRequestEntry, 0, len(msgs))
	for i, msg := range msgs {
		if msg.ReceiptHandle == "" {
			continue
		}
		entries = append(entries, types.DeleteMessageBatchRequestEntry{
			Id:            aws.String(strconv.Itoa(i)),
			ReceiptHandle: aws.String(msg.ReceiptHandle),
		})
	}

	for start := 0; start < len(entries); start += sqsBatchMax {
		end := min(start+sqsBatchMax, len(entries))

		out, err := c.api.DeleteMessageBatch(ctx, &sqs.DeleteMessageBatchInput{
			QueueUrl: aws.String(c.cfg.URL),
			Entries:  entries[start:end],
		})
		if err != nil {
			return errors.Wrap(errors.CodeDependency, err, "deleting queue batch")
		}
		if len(out.Failed) > 0 {
			return errors.New(errors.CodeDependency,
				fmt.Sprintf("queue failed to delete %d entries", len(out.Failed)))
		}
	}
	return nil
}

// Ping verifies the queue exists. Used by readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.api.GetQueueAttributes(ctx, &sqs.GetQueueAttributesInput{
		QueueUrl:       aws.String(c.cfg.URL),
		AttributeNames: []types.QueueAttributeName{types.QueueAttributeNameQueueArn},
	})
	if err != nil {
		return fmt.Errorf("pinging queue: %w", err)
	}
	return nil
}
