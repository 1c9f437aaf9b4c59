package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/velo-booking/internal/observability/metrics"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// SnapshotStore persists wizard snapshots between requests and restarts.
type SnapshotStore interface {
	Save(ctx context.Context, id string, data []byte) error
	Load(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

// ViewPublisher receives the view of a wizard after every change.
type ViewPublisher interface {
	Publish(wizardID string, v any)
}

// RegistryOptions configure a Registry.
type RegistryOptions struct {
	Snapshots SnapshotStore
	Publisher ViewPublisher
	IdleTTL   time.Duration
	// SweepInterval is how often Run evicts idle wizards.
	SweepInterval time.Duration
}

// Registry owns the live wizards, addressable by id.
type Registry struct {
	deps      Deps
	snapshots SnapshotStore
	publisher ViewPublisher
	idleTTL   time.Duration
	interval  time.Duration
	logger    *logging.Logger
	metrics   *metrics.WizardMetrics

	mu      sync.Mutex
	wizards map[string]*Wizard
}

// NewRegistry builds a registry. deps.OnChange is owned by the registry.
func NewRegistry(deps Deps, opts RegistryOptions) *Registry {
	deps = deps.withDefaults()
	r := &Registry{
		snapshots: opts.Snapshots,
		publisher: opts.Publisher,
		idleTTL:   opts.IdleTTL,
		interval:  opts.SweepInterval,
		logger:    deps.Logger,
		metrics:   deps.Metrics,
		wizards:   make(map[string]*Wizard),
	}
	if r.interval <= 0 {
		r.interval = time.Minute
	}
	deps.OnChange = r.onChange
	r.deps = deps
	return r
}

// Create starts a new wizard and registers it.
func (r *Registry) Create(ctx context.Context, p Params) (*Wizard, error) {
	w, err := Start(ctx, r.deps, p)
	if err != nil {
		return nil, err
	}
	r.add(w)
	r.persist(ctx, w)
	return w, nil
}

// Get returns a live wizard, restoring it from its snapshot when it is no
// longer held in memory.
func (r *Registry) Get(ctx context.Context, id string) (*Wizard, error) {
	r.mu.Lock()
	w, ok := r.wizards[id]
	r.mu.Unlock()
	if ok {
		return w, nil
	}
	if r.snapshots == nil {
		return nil, ErrNotFound
	}

	data, err := r.snapshots.Load(ctx, id)
	if err != nil {
		r.logger.Debug("wizard snapshot unavailable", "wizard_id", id, "error", err)
		return nil, ErrNotFound
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("wizard: decode snapshot %s: %w", id, err)
	}
	if snap.Step == Confirmed {
		return nil, ErrNotFound
	}
	restored, err := Restore(ctx, r.deps, snap)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.wizards[id]; ok {
		r.mu.Unlock()
		restored.Close()
		return existing, nil
	}
	r.wizards[id] = restored
	n := len(r.wizards)
	r.mu.Unlock()
	r.metrics.SetActiveWizards(n)
	return restored, nil
}

// Remove drops a wizard and its snapshot.
func (r *Registry) Remove(ctx context.Context, id string) {
	r.mu.Lock()
	w, ok := r.wizards[id]
	delete(r.wizards, id)
	n := len(r.wizards)
	r.mu.Unlock()
	if ok {
		w.Close()
	}
	r.metrics.SetActiveWizards(n)
	if r.snapshots != nil {
		if err := r.snapshots.Delete(ctx, id); err != nil {
			r.logger.Warn("failed to delete wizard snapshot", "wizard_id", id, "error", err)
		}
	}
}

// Len returns the number of wizards held in memory.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.wizards)
}

// EvictIdle releases wizards idle for longer than the TTL. Their snapshots
// stay in the store until they expire there.
func (r *Registry) EvictIdle(now time.Time) int {
	if r.idleTTL <= 0 {
		return 0
	}
	r.mu.Lock()
	var idle []*Wizard
	for id, w := range r.wizards {
		if now.Sub(w.LastActive()) > r.idleTTL {
			idle = append(idle, w)
			delete(r.wizards, id)
		}
	}
	n := len(r.wizards)
	r.mu.Unlock()

	for _, w := range idle {
		w.Close()
	}
	if len(idle) > 0 {
		r.logger.Info("evicted idle wizards", "count", len(idle))
	}
	r.metrics.SetActiveWizards(n)
	return len(idle)
}

// Run evicts idle wizards until ctx is done.
func (r *Registry) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.EvictIdle(r.deps.Now())
		}
	}
}

func (r *Registry) add(w *Wizard) {
	r.mu.Lock()
	r.wizards[w.ID()] = w
	n := len(r.wizards)
	r.mu.Unlock()
	r.metrics.SetActiveWizards(n)
}

func (r *Registry) onChange(w *Wizard) {
	if r.publisher != nil {
		r.publisher.Publish(w.ID(), w.View())
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if w.Step() == Confirmed {
		r.Remove(ctx, w.ID())
		return
	}
	r.persist(ctx, w)
}

func (r *Registry) persist(ctx context.Context, w *Wizard) {
	if r.snapshots == nil {
		return
	}
	data, err := json.Marshal(w.Snapshot())
	if err != nil {
		r.logger.Error("failed to encode wizard snapshot", "wizard_id", w.ID(), "error", err)
		return
	}
	if err := r.snapshots.Save(ctx, w.ID(), data); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Warn("failed to save wizard snapshot", "wizard_id", w.ID(), "error", err)
	}
}

// CurrentView returns the view of a wizard for stream subscribers.
func (r *Registry) CurrentView(ctx context.Context, id string) (any, error) {
	w, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return w.View(), nil
}
