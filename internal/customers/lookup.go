// Package customers implements the staff-only search-as-you-type lookup used
// to prefill booking contact details.
package customers

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/debounce"
	"github.com/wolfman30/velo-booking/internal/observability/metrics"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// DefaultDelay is the quiet period before a search is issued.
const DefaultDelay = 300 * time.Millisecond

// MinQueryLength is the shortest trimmed query that triggers a search.
const MinQueryLength = 2

// Options configure a Lookup.
type Options struct {
	Delay     time.Duration
	Scheduler debounce.Scheduler
	Logger    *logging.Logger
	Metrics   *metrics.WizardMetrics
	// OnChange is called, without locks held, after a search result or
	// failure has been applied.
	OnChange func()
}

// View is a copy of the lookup state.
type View struct {
	Query   string             `json:"query"`
	Results []booking.Customer `json:"results"`
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
}

// Lookup debounces queries and applies only the latest issued search.
type Lookup struct {
	storeID   string
	directory booking.CustomerDirectory
	debouncer *debounce.Debouncer
	logger    *logging.Logger
	metrics   *metrics.WizardMetrics
	onChange  func()

	mu      sync.Mutex
	query   string
	results []booking.Customer
	loading bool
	err     error
	seq     uint64
	closed  bool
}

// NewLookup builds a lookup for one store.
func NewLookup(storeID string, directory booking.CustomerDirectory, opts Options) *Lookup {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	return &Lookup{
		storeID:   storeID,
		directory: directory,
		debouncer: debounce.New(opts.Delay, opts.Scheduler),
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onChange:  opts.OnChange,
	}
}

// SetQuery records the query. Short queries clear the results immediately
// and never search; anything else restarts the debounce window.
func (l *Lookup) SetQuery(q string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.query = q
	if len([]rune(strings.TrimSpace(q))) < MinQueryLength {
		l.debouncer.Cancel()
		l.resetLocked()
		return
	}
	l.debouncer.Trigger(l.search)
}

// Clear empties the query and results and drops any pending search.
func (l *Lookup) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debouncer.Cancel()
	l.query = ""
	l.resetLocked()
}

// Close stops the lookup; late results are ignored.
func (l *Lookup) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.debouncer.Cancel()
	l.closed = true
	l.seq++
}

// View returns a copy of the current state.
func (l *Lookup) View() View {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := View{Query: l.query, Loading: l.loading}
	if len(l.results) > 0 {
		v.Results = append([]booking.Customer(nil), l.results...)
	}
	if l.err != nil {
		v.Error = l.err.Error()
	}
	return v
}

// Find returns a customer from the displayed results.
func (l *Lookup) Find(id string) (booking.Customer, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.results {
		if c.ID == id {
			return c, true
		}
	}
	return booking.Customer{}, false
}

func (l *Lookup) resetLocked() {
	l.seq++
	l.results = nil
	l.loading = false
	l.err = nil
}

func (l *Lookup) search() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.seq++
	seq := l.seq
	query := strings.TrimSpace(l.query)
	l.loading = true
	l.mu.Unlock()

	results, err := l.directory.SearchCustomers(context.Background(), l.storeID, query)

	l.mu.Lock()
	if seq != l.seq {
		l.mu.Unlock()
		l.metrics.ObserveCustomerSearch("stale")
		return
	}
	l.loading = false
	if err != nil {
		l.err = err
		l.results = nil
		l.mu.Unlock()
		l.metrics.ObserveCustomerSearch("error")
		l.logger.Warn("customer search failed", "store_id", l.storeID, "error", err)
	} else {
		l.err = nil
		l.results = results
		l.mu.Unlock()
		l.metrics.ObserveCustomerSearch("ok")
	}
	if l.onChange != nil {
		l.onChange()
	}
}
