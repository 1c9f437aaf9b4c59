package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// Publisher ships an envelope to a downstream transport.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

type sqsAPI interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSPublisher sends envelopes as JSON message bodies to one queue.
type SQSPublisher struct {
	client   sqsAPI
	queueURL string
}

// NewSQSPublisher creates a publisher around the provided SQS client.
func NewSQSPublisher(client *sqs.Client, queueURL string) *SQSPublisher {
	if client == nil {
		panic("events: SQS client cannot be nil")
	}
	return newSQSPublisher(client, queueURL)
}

func newSQSPublisher(client sqsAPI, queueURL string) *SQSPublisher {
	if queueURL == "" {
		panic("events: SQS queueURL cannot be empty")
	}
	return &SQSPublisher{client: client, queueURL: queueURL}
}

func (p *SQSPublisher) Publish(ctx context.Context, env Envelope) error {
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: marshal envelope: %w", err)
	}
	_, err = p.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(p.queueURL),
		MessageBody: aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"event_type": {DataType: aws.String("String"), StringValue: aws.String(env.EventType)},
			"aggregate":  {DataType: aws.String("String"), StringValue: aws.String(env.Aggregate)},
		},
	})
	if err != nil {
		return fmt.Errorf("events: failed to send SQS message: %w", err)
	}
	return nil
}

// LogPublisher logs envelopes instead of shipping them. Used when no queue
// is configured.
type LogPublisher struct {
	logger *logging.Logger
}

func NewLogPublisher(logger *logging.Logger) *LogPublisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, env Envelope) error {
	p.logger.Info("event published", "event_id", env.EventID, "type", env.EventType, "aggregate", env.Aggregate)
	return nil
}

// PublishHandler adapts a Publisher to the outbox Deliverer.
type PublishHandler struct {
	publisher Publisher
}

func NewPublishHandler(p Publisher) *PublishHandler {
	return &PublishHandler{publisher: p}
}

func (h *PublishHandler) Handle(ctx context.Context, entry OutboxEntry) error {
	env, err := entry.Envelope()
	if err != nil {
		return err
	}
	return h.publisher.Publish(ctx, env)
}

// DirectSink publishes immediately instead of going through the outbox.
// It backs deployments without Postgres.
type DirectSink struct {
	publisher Publisher
}

func NewDirectSink(p Publisher) *DirectSink {
	return &DirectSink{publisher: p}
}

func (s *DirectSink) Append(ctx context.Context, aggregate, correlationID string, evt CanonicalEvent, opts ...EnvelopeOption) (Envelope, error) {
	env, err := NewEnvelope(aggregate, correlationID, evt, opts...)
	if err != nil {
		return Envelope{}, err
	}
	if err := s.publisher.Publish(ctx, env); err != nil {
		return Envelope{}, err
	}
	return env, nil
}
