package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/NeodarZ/prefect/internal/event"
	"github.com/NeodarZ/prefect/internal/incident"
)

// Firing is one trigger activation: which rule fired, for which resource,
// and the evidence events inside the window.
type Firing struct {
	Trigger    *Trigger
	ResourceID string
	EventIDs   []string
	OccurredAt time.Time
}

// ErrDuplicate is returned when a trigger name is already registered.
var ErrDuplicate = errors.New("trigger already exists")

// IncidentDeclarer is the slice of the incident service the engine needs.
type IncidentDeclarer interface {
	Declare(ctx context.Context, name, summary string, sev incident.Severity, declaredBy string) (*incident.Incident, error)
	AttachEvent(ctx context.Context, id, eventID, detail string) error
}

// FiringNotifier delivers firing notifications (e.g. Slack).
type FiringNotifier interface {
	NotifyFiring(ctx context.Context, f *Firing) error
}

// bucket is the per-resource evaluation state of one trigger.
type bucket struct {
	times    []time.Time // reactive: expected-event timestamps in window
	eventIDs []string
	lastSeen time.Time // proactive: last expected event
	fired    bool      // proactive: already fired for the current quiet period
}

type triggerState struct {
	trigger Trigger
	buckets map[string]*bucket // resource id -> state
}

// Engine evaluates triggers against the event stream. Reactive triggers are
// evaluated on ingest; proactive ones by a periodic sweep.
type Engine struct {
	logger   log.Logger
	metrics  *Metrics
	declarer IncidentDeclarer
	notifier FiringNotifier
	now      func() time.Time

	mu       sync.Mutex
	triggers []*triggerState
}

// NewEngine creates an engine. metrics and notifier may be nil; declarer may
// be nil only if no trigger uses declare-incident actions.
func NewEngine(logger log.Logger, metrics *Metrics, declarer IncidentDeclarer, notifier FiringNotifier) *Engine {
	if logger == nil {
		logger = log.Nop()
	}
	return &Engine{
		logger:   logger,
		metrics:  metrics,
		declarer: declarer,
		notifier: notifier,
		now:      time.Now,
	}
}

// AddTrigger validates and registers a trigger.
func (e *Engine) AddTrigger(t Trigger) error {
	if err := t.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, st := range e.triggers {
		if st.trigger.Name == t.Name {
			return fmt.Errorf("%w: %q", ErrDuplicate, t.Name)
		}
	}
	e.triggers = append(e.triggers, &triggerState{
		trigger: t,
		buckets: make(map[string]*bucket),
	})
	return nil
}

// Triggers returns a snapshot of the registered triggers.
func (e *Engine) Triggers() []Trigger {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Trigger, 0, len(e.triggers))
	for _, st := range e.triggers {
		out = append(out, st.trigger)
	}
	return out
}

// Ingest evaluates one event against all triggers. Firings run their actions
// before Ingest returns; callers on a request path should already be on a
// detached context.
func (e *Engine) Ingest(ctx context.Context, ev *event.Event) {
	if e.metrics != nil {
		e.metrics.EventsTotal.Inc()
	}

	resourceID := ev.ResourceID()
	now := e.now()

	var firings []*Firing

	e.mu.Lock()
	for _, st := range e.triggers {
		t := &st.trigger
		if !matchResource(t.Match, ev.Resource) {
			continue
		}
		if e.metrics != nil {
			e.metrics.EvaluationsTotal.WithLabelValues(t.Name).Inc()
		}

		b := st.buckets[resourceID]
		if b == nil {
			b = &bucket{}
			st.buckets[resourceID] = b
		}

		expected := t.expects(ev.Name)

		if t.Posture == PostureProactive {
			// any expected event re-arms the quiet timer
			if expected {
				b.lastSeen = now
				b.fired = false
			} else if b.lastSeen.IsZero() {
				// first sighting of the resource starts the clock
				b.lastSeen = now
			}
			continue
		}

		if !expected {
			continue
		}

		b.times = append(b.times, now)
		b.eventIDs = append(b.eventIDs, ev.ID)
		pruneWindow(b, now, t.Within)

		if len(b.times) >= t.Threshold {
			firings = append(firings, &Firing{
				Trigger:    t,
				ResourceID: resourceID,
				EventIDs:   append([]string(nil), b.eventIDs...),
				OccurredAt: now,
			})
			b.times = nil
			b.eventIDs = nil
		}
	}
	e.mu.Unlock()

	for _, f := range firings {
		e.fire(ctx, f)
	}
}

// Sweep fires proactive triggers whose resources have gone quiet. Called
// periodically by Run; exported for tests.
func (e *Engine) Sweep(ctx context.Context) {
	now := e.now()

	var firings []*Firing

	e.mu.Lock()
	for _, st := range e.triggers {
		t := &st.trigger
		if t.Posture != PostureProactive {
			continue
		}
		window := time.Duration(t.Within) * time.Second
		for resourceID, b := range st.buckets {
			if b.fired || b.lastSeen.IsZero() {
				continue
			}
			if now.Sub(b.lastSeen) > window {
				b.fired = true
				firings = append(firings, &Firing{
					Trigger:    t,
					ResourceID: resourceID,
					OccurredAt: now,
				})
			}
		}
	}
	e.mu.Unlock()

	for _, f := range firings {
		e.fire(ctx, f)
	}
}

// Run sweeps proactive triggers until ctx is cancelled.
func (e *Engine) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info(ctx, "automation sweep started", "interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Info(context.Background(), "automation sweep stopped")
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

func (e *Engine) fire(ctx context.Context, f *Firing) {
	t := f.Trigger
	if e.metrics != nil {
		e.metrics.FiringsTotal.WithLabelValues(t.Name, string(t.Posture)).Inc()
	}
	e.logger.Info(ctx, "trigger fired",
		"trigger", t.Name,
		"posture", t.Posture,
		"resource_id", f.ResourceID,
		"events", len(f.EventIDs),
	)

	for _, spec := range t.Actions {
		var err error
		switch spec.Type {
		case ActionDeclareIncident:
			err = e.declareIncident(ctx, f, spec)
		case ActionNotify:
			err = e.notify(ctx, f)
		}

		status := "success"
		if err != nil {
			status = "error"
			e.logger.Error(ctx, err, "trigger action failed",
				"trigger", t.Name,
				"action", spec.Type,
			)
		}
		if e.metrics != nil {
			e.metrics.ActionsTotal.WithLabelValues(spec.Type, status).Inc()
		}
	}
}

func (e *Engine) declareIncident(ctx context.Context, f *Firing, spec ActionSpec) error {
	if e.declarer == nil {
		return fmt.Errorf("no incident service configured")
	}

	t := f.Trigger
	name := fmt.Sprintf("%s: %s", t.Name, f.ResourceID)
	summary := fmt.Sprintf("trigger %q fired for %s", t.Name, f.ResourceID)
	if t.Posture == PostureProactive {
		summary = fmt.Sprintf("trigger %q saw no expected events from %s for %ds", t.Name, f.ResourceID, t.Within)
	}

	inc, err := e.declarer.Declare(ctx, name, summary, spec.Severity, "automation/"+t.Name)
	if err != nil {
		return fmt.Errorf("declare incident: %w", err)
	}
	for _, id := range f.EventIDs {
		if err := e.declarer.AttachEvent(ctx, inc.ID, id, "matched by "+t.Name); err != nil {
			return fmt.Errorf("attach event %s: %w", id, err)
		}
	}
	return nil
}

func (e *Engine) notify(ctx context.Context, f *Firing) error {
	if e.notifier == nil {
		return fmt.Errorf("no notifier configured")
	}
	return e.notifier.NotifyFiring(ctx, f)
}

// pruneWindow drops timestamps (and their event IDs) outside the window.
// within <= 0 keeps only the newest event: each event is its own window.
func pruneWindow(b *bucket, now time.Time, within int) {
	if within <= 0 {
		n := len(b.times)
		b.times = b.times[n-1:]
		b.eventIDs = b.eventIDs[n-1:]
		return
	}
	cutoff := now.Add(-time.Duration(within) * time.Second)
	i := 0
	for i < len(b.times) && !b.times[i].After(cutoff) {
		i++
	}
	b.times = b.times[i:]
	b.eventIDs = b.eventIDs[i:]
}
