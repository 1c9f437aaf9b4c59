package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// Service sends booking notifications to customers.
type Service struct {
	email    EmailSender
	fallback *time.Location
	logger   *logging.Logger
}

// NewService creates a notification service. Appointment times are rendered
// in the store's time zone, or fallback when the store publishes none.
func NewService(email EmailSender, fallback *time.Location, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	if fallback == nil {
		fallback = time.UTC
	}
	return &Service{
		email:    email,
		fallback: fallback,
		logger:   logger,
	}
}

// NotifyBookingConfirmed emails the customer their confirmation.
func (s *Service) NotifyBookingConfirmed(ctx context.Context, b booking.ConfirmedBooking) error {
	if s.email == nil {
		s.logger.Debug("notify: email sender not configured, skipping confirmation")
		return nil
	}
	to := strings.TrimSpace(b.Customer.Email)
	if to == "" {
		s.logger.Warn("notify: booking has no customer email", "booking_id", b.Confirmation.BookingID)
		return nil
	}

	msg := confirmationMessage(b, b.Store.Location(s.fallback))
	if err := s.email.Send(ctx, msg); err != nil {
		s.logger.Error("notify: failed to send confirmation email", "error", err, "booking_id", b.Confirmation.BookingID)
		return fmt.Errorf("notify: confirmation email: %w", err)
	}
	s.logger.Info("notify: confirmation email sent", "booking_id", b.Confirmation.BookingID, "store_id", b.Store.ID)
	return nil
}

func confirmationMessage(b booking.ConfirmedBooking, loc *time.Location) EmailMessage {
	start := b.Slot.Start.In(loc)
	when := start.Format("Monday, 2 January 2006 at 15:04")
	name := b.Customer.FullName()
	greeting := "Hello"
	if b.Customer.FirstName != "" {
		greeting = "Hello " + b.Customer.FirstName
	}

	subject := fmt.Sprintf("Your %s at %s is booked", b.Service.Name, b.Store.Name)
	body := fmt.Sprintf(`%s,

your appointment is confirmed.

Service: %s
When: %s
Where: %s%s
Confirmation: %s

If you need to change the appointment, reply to this email or call the store.

%s`, greeting, b.Service.Name, when, b.Store.Name, textAddress(b.Store), b.Confirmation.ConfirmationToken, b.Store.Name)

	htmlBody := fmt.Sprintf(`<div style="font-family: sans-serif; max-width: 600px;">
<h2>Your appointment is confirmed</h2>
<p>%s,</p>
<table style="border-collapse: collapse; margin: 20px 0;">
  <tr><td style="padding: 8px;"><strong>Service:</strong></td><td style="padding: 8px;">%s</td></tr>
  <tr><td style="padding: 8px;"><strong>When:</strong></td><td style="padding: 8px;">%s</td></tr>
  <tr><td style="padding: 8px;"><strong>Where:</strong></td><td style="padding: 8px;">%s%s</td></tr>
  <tr><td style="padding: 8px;"><strong>Confirmation:</strong></td><td style="padding: 8px;"><code>%s</code></td></tr>
</table>
<p style="color: #6b7280; font-size: 12px;">%s</p>
</div>`,
		html.EscapeString(greeting),
		html.EscapeString(b.Service.Name),
		html.EscapeString(when),
		html.EscapeString(b.Store.Name), htmlAddress(b.Store),
		html.EscapeString(b.Confirmation.ConfirmationToken),
		html.EscapeString(b.Store.Name))

	return EmailMessage{
		To:      b.Customer.Email,
		ToName:  name,
		Subject: subject,
		Text:    body,
		HTML:    htmlBody,
		Tags: map[string]string{
			"booking_id": b.Confirmation.BookingID,
			"store_id":   b.Store.ID,
		},
	}
}

func addressLines(store booking.Store) []string {
	var lines []string
	if store.Street != "" {
		lines = append(lines, store.Street)
	}
	if city := strings.TrimSpace(store.PostalCode + " " + store.City); city != "" {
		lines = append(lines, city)
	}
	return lines
}

func textAddress(store booking.Store) string {
	lines := addressLines(store)
	if len(lines) == 0 {
		return ""
	}
	return ", " + strings.Join(lines, ", ")
}

func htmlAddress(store booking.Store) string {
	var b strings.Builder
	for _, line := range addressLines(store) {
		b.WriteString("<br>")
		b.WriteString(html.EscapeString(line))
	}
	return b.String()
}
