// Package availability holds the slot list for the wizard's current
// (service, date) selection together with the fully-booked date marker.
package availability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/observability/metrics"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// ErrStale is returned by Fetch when the ticket was superseded before the
// backend answered. The result has been discarded.
var ErrStale = errors.New("availability: result superseded")

// Key identifies a slot list.
type Key struct {
	ServiceID string
	Date      booking.Date
}

// Ticket is issued by Begin and redeemed by Fetch.
type Ticket struct {
	seq uint64
	key Key
}

// Key returns the key the ticket was issued for.
func (t Ticket) Key() Key { return t.key }

// View is a read-only copy of the current slot list.
type View struct {
	Key     Key
	Slots   []booking.TimeSlot
	Loading bool
	Err     error
}

// Cache is safe for concurrent use.
type Cache struct {
	storeID string
	source  booking.AvailabilitySource
	logger  *logging.Logger
	metrics *metrics.WizardMetrics
	now     func() time.Time

	mu          sync.Mutex
	seq         uint64
	current     *Key
	slots       []booking.TimeSlot
	loading     bool
	err         error
	fullyBooked map[booking.Date]struct{}
}

// New builds a cache for one store.
func New(storeID string, source booking.AvailabilitySource, logger *logging.Logger, m *metrics.WizardMetrics) *Cache {
	if logger == nil {
		logger = logging.Default()
	}
	return &Cache{
		storeID:     storeID,
		source:      source,
		logger:      logger,
		metrics:     m,
		now:         time.Now,
		fullyBooked: make(map[booking.Date]struct{}),
	}
}

// Begin makes key current, drops the previous slot list and returns the
// ticket for the fetch that will populate it. Any ticket issued earlier
// becomes stale.
func (c *Cache) Begin(key Key) Ticket {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	k := key
	c.current = &k
	c.slots = nil
	c.err = nil
	c.loading = true
	return Ticket{seq: c.seq, key: key}
}

// Fetch asks the backend for the ticket's slots and applies them if the
// ticket is still current. A superseded result is dropped without touching
// the displayed slots or the fully-booked marker, and ErrStale is returned.
func (c *Cache) Fetch(ctx context.Context, t Ticket) error {
	started := c.now()
	slots, err := c.source.GetAvailability(ctx, c.storeID, t.key.ServiceID, t.key.Date)
	elapsed := c.now().Sub(started).Seconds()

	c.mu.Lock()
	defer c.mu.Unlock()

	if t.seq != c.seq {
		c.metrics.ObserveSlotFetch("stale", elapsed)
		c.logger.Debug("discarding stale availability result",
			"store_id", c.storeID,
			"service_id", t.key.ServiceID,
			"date", t.key.Date.String(),
		)
		return ErrStale
	}

	c.loading = false
	if err != nil {
		c.metrics.ObserveSlotFetch("error", elapsed)
		c.err = err
		c.slots = nil
		c.logger.Warn("availability fetch failed",
			"store_id", c.storeID,
			"service_id", t.key.ServiceID,
			"date", t.key.Date.String(),
			"error", err,
		)
		return fmt.Errorf("availability: fetch %s: %w", t.key.Date, err)
	}

	c.metrics.ObserveSlotFetch("applied", elapsed)
	c.slots = slots
	c.err = nil
	if allUnavailable(slots) {
		c.fullyBooked[t.key.Date] = struct{}{}
	} else {
		delete(c.fullyBooked, t.key.Date)
	}
	return nil
}

// Reset abandons the current key. In-flight fetches become stale.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.current = nil
	c.slots = nil
	c.err = nil
	c.loading = false
}

// ClearMarker forgets every fully-booked date.
func (c *Cache) ClearMarker() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fullyBooked = make(map[booking.Date]struct{})
}

// View returns a copy of the current slot list.
func (c *Cache) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := View{Loading: c.loading, Err: c.err}
	if c.current != nil {
		v.Key = *c.current
	}
	if len(c.slots) > 0 {
		v.Slots = append([]booking.TimeSlot(nil), c.slots...)
	}
	return v
}

// Find looks up a slot in the current list.
func (c *Cache) Find(technicianID string, start time.Time) (booking.TimeSlot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.slots {
		if s.Matches(technicianID, start) {
			return s, true
		}
	}
	return booking.TimeSlot{}, false
}

// IsFullyBooked reports whether date is in the fully-booked marker.
func (c *Cache) IsFullyBooked(date booking.Date) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.fullyBooked[date]
	return ok
}

// FullyBooked returns the marker as a sorted slice.
func (c *Cache) FullyBooked() []booking.Date {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]booking.Date, 0, len(c.fullyBooked))
	for d := range c.fullyBooked {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// RestoreFullyBooked seeds the marker from a snapshot.
func (c *Cache) RestoreFullyBooked(dates []booking.Date) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range dates {
		c.fullyBooked[d] = struct{}{}
	}
}

func allUnavailable(slots []booking.TimeSlot) bool {
	if len(slots) == 0 {
		return false
	}
	for _, s := range slots {
		if s.Available {
			return false
		}
	}
	return true
}
