package notify

import (
	"context"
	"fmt"
	"sort"

	"github.com/wolfman30/velo-booking/pkg/logging"
)

const defaultFromName = "Velo Booking"

// EmailSender delivers a single email. SendGrid, SES, and the logging stub
// implement it.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is one outgoing email. Tags are attached as provider
// metadata (SendGrid custom args, SES message tags) so deliveries can be
// traced back to a booking.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Text    string
	HTML    string
	Tags    map[string]string
}

// Identity is the sender shown to recipients.
type Identity struct {
	Address string
	Name    string
}

func (id Identity) withDefaults() Identity {
	if id.Name == "" {
		id.Name = defaultFromName
	}
	return id
}

// String formats the identity as an RFC 5322 mailbox.
func (id Identity) String() string {
	if id.Name == "" {
		return id.Address
	}
	return fmt.Sprintf("%s <%s>", id.Name, id.Address)
}

func sortedTagKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StubEmailSender logs instead of sending. It is used when no provider is
// configured.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(_ context.Context, msg EmailMessage) error {
	args := []any{"to", msg.To, "subject", msg.Subject}
	for _, k := range sortedTagKeys(msg.Tags) {
		args = append(args, k, msg.Tags[k])
	}
	s.logger.Info("email not sent (stub provider)", args...)
	return nil
}

var _ EmailSender = (*StubEmailSender)(nil)
