package confirmations

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/events"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

var tracer = otel.Tracer("velo.internal.confirmations")

// Notifier tells the customer about a confirmed booking.
type Notifier interface {
	NotifyBookingConfirmed(ctx context.Context, b booking.ConfirmedBooking) error
}

// EventSink accepts domain events for delivery.
type EventSink interface {
	Append(ctx context.Context, aggregate, correlationID string, evt events.CanonicalEvent, opts ...events.EnvelopeOption) (events.Envelope, error)
}

// Service records confirmed bookings, emails the customer and emits
// BookingConfirmedV1. Only the receipt write is fatal; email and event
// failures are logged.
type Service struct {
	repo     Repository
	notifier Notifier
	sink     EventSink
	logger   *logging.Logger
}

func NewService(repo Repository, notifier Notifier, sink EventSink, logger *logging.Logger) *Service {
	if repo == nil {
		panic("confirmations: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, notifier: notifier, sink: sink, logger: logger}
}

// RecordConfirmation persists the receipt and fans out notifications.
func (s *Service) RecordConfirmation(ctx context.Context, b booking.ConfirmedBooking) error {
	ctx, span := tracer.Start(ctx, "confirmations.record")
	defer span.End()
	span.SetAttributes(
		attribute.String("velo.store_id", b.Store.ID),
		attribute.String("velo.booking_id", b.Confirmation.BookingID),
		attribute.String("velo.service_id", b.Service.ID),
	)

	rec := FromConfirmedBooking(b)
	if err := s.repo.Record(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "record receipt")
		return fmt.Errorf("confirmations: record: %w", err)
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyBookingConfirmed(ctx, b); err != nil {
			span.RecordError(err)
			s.logger.Warn("confirmation email failed", "booking_id", rec.BookingID, "error", err)
		}
	}
	if s.sink != nil {
		env, err := s.sink.Append(ctx, events.StoreAggregate(rec.StoreID), rec.BookingID, events.NewBookingConfirmed(b))
		if err != nil {
			span.RecordError(err)
			s.logger.Warn("booking event append failed", "booking_id", rec.BookingID, "error", err)
		} else {
			span.SetAttributes(attribute.String("velo.event_id", env.EventID.String()))
		}
	}

	s.logger.Info("confirmation recorded", "booking_id", rec.BookingID, "store_id", rec.StoreID, "service_id", rec.ServiceID)
	return nil
}

// GetByToken returns the receipt for a confirmation token.
func (s *Service) GetByToken(ctx context.Context, token string) (*Receipt, error) {
	return s.repo.GetByToken(ctx, token)
}

// List returns a store's receipts matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Receipt, error) {
	return s.repo.ListByStore(ctx, f)
}
