package bootstrap

import (
	"context"
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/wolfman30/velo-booking/internal/config"
	"github.com/wolfman30/velo-booking/internal/confirmations"
	"github.com/wolfman30/velo-booking/internal/events"
	"github.com/wolfman30/velo-booking/internal/notify"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// AWSConfigLoader loads the AWS SDK clients on demand so deployments without
// SES or SQS never touch AWS credentials.
type AWSConfigLoader func(ctx context.Context) (sesClient *sesv2.Client, sqsClient *sqs.Client, err error)

// NewAWSClients returns a loader that builds SES and SQS clients from cfg.
// The config is loaded at most once.
func NewAWSClients(cfg *appconfig.Config) AWSConfigLoader {
	var (
		once      sync.Once
		sesClient *sesv2.Client
		sqsClient *sqs.Client
		loadErr   error
	)
	return func(ctx context.Context) (*sesv2.Client, *sqs.Client, error) {
		once.Do(func() {
			awsCfg, err := LoadAWSConfig(ctx, cfg)
			if err != nil {
				loadErr = fmt.Errorf("bootstrap: load aws config: %w", err)
				return
			}
			sesClient = sesv2.NewFromConfig(awsCfg)
			sqsClient = sqs.NewFromConfig(awsCfg)
		})
		return sesClient, sqsClient, loadErr
	}
}

// BuildEmailSender picks the confirmation email transport from EMAIL_PROVIDER.
// Misconfigured providers fall back to the logging stub.
func BuildEmailSender(ctx context.Context, cfg *appconfig.Config, aws AWSConfigLoader, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	from := notify.Identity{Address: cfg.EmailFromAddress, Name: cfg.EmailFromName}
	switch cfg.EmailProvider {
	case "sendgrid":
		if sender := notify.NewSendGridSender(cfg.SendGridAPIKey, from, logger); sender != nil {
			logger.Info("confirmation email via sendgrid")
			return sender
		}
		logger.Warn("EMAIL_PROVIDER=sendgrid but SENDGRID_API_KEY is empty; using stub")
	case "ses":
		if aws != nil {
			sesClient, _, err := aws(ctx)
			if err == nil {
				if sender := notify.NewSESSender(sesClient, from, logger); sender != nil {
					logger.Info("confirmation email via ses")
					return sender
				}
			}
			logger.Warn("ses unavailable; using stub", "error", err)
		}
	}
	return notify.NewStubEmailSender(logger)
}

// BuildEventPublisher returns an SQS publisher when a queue is configured and
// a logging publisher otherwise.
func BuildEventPublisher(ctx context.Context, cfg *appconfig.Config, aws AWSConfigLoader, logger *logging.Logger) (events.Publisher, error) {
	if cfg.BookingEventsQueueURL == "" || aws == nil {
		return events.NewLogPublisher(logger), nil
	}
	_, sqsClient, err := aws(ctx)
	if err != nil {
		return nil, err
	}
	return events.NewSQSPublisher(sqsClient, cfg.BookingEventsQueueURL), nil
}

// BuildEventSink wires BookingConfirmedV1 delivery. With Postgres, events go
// through the outbox and the returned deliverer must be started; without it
// they are published inline and the deliverer is nil.
func BuildEventSink(pool *pgxpool.Pool, publisher events.Publisher, logger *logging.Logger) (confirmations.EventSink, *events.Deliverer) {
	if pool == nil {
		return events.NewDirectSink(publisher), nil
	}
	store := events.NewOutboxStore(pool)
	return store, events.NewDeliverer(store, events.NewPublishHandler(publisher), logger)
}

// BuildConfirmationRepository returns the Postgres repository, or an
// in-memory one when no database is configured.
func BuildConfirmationRepository(pool *pgxpool.Pool) confirmations.Repository {
	if pool == nil {
		return confirmations.NewMemoryRepository()
	}
	return confirmations.NewPostgresRepository(pool)
}
