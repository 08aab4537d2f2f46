package automation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/NeodarZ/prefect/internal/event"
	"github.com/NeodarZ/prefect/internal/incident"
)

// fakeDeclarer records declared incidents and attached events.
type fakeDeclarer struct {
	mu        sync.Mutex
	declared  []*incident.Incident
	attached  map[string][]string // incident ID -> event IDs
	declError error
}

func newFakeDeclarer() *fakeDeclarer {
	return &fakeDeclarer{attached: make(map[string][]string)}
}

func (d *fakeDeclarer) Declare(_ context.Context, name, summary string, sev incident.Severity, declaredBy string) (*incident.Incident, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.declError != nil {
		return nil, d.declError
	}
	inc := &incident.Incident{
		ID:         fmt.Sprintf("inc-%d", len(d.declared)+1),
		Name:       name,
		Summary:    summary,
		Severity:   sev,
		Status:     incident.StatusDeclared,
		DeclaredBy: declaredBy,
	}
	d.declared = append(d.declared, inc)
	return inc, nil
}

func (d *fakeDeclarer) AttachEvent(_ context.Context, id, eventID, _ string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attached[id] = append(d.attached[id], eventID)
	return nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	firings []*Firing
}

func (n *fakeNotifier) NotifyFiring(_ context.Context, f *Firing) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.firings = append(n.firings, f)
	return nil
}

func poolEvent(id, name, pool string) *event.Event {
	return &event.Event{
		ID:   id,
		Name: name,
		Resource: map[string]string{
			event.ResourceIDKey: "prefect.work-pool." + pool,
		},
	}
}

// fixedClock lets tests drive engine time.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, declarer IncidentDeclarer, notifier FiringNotifier) (*Engine, *fixedClock) {
	t.Helper()
	e := NewEngine(nil, nil, declarer, notifier)
	clock := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	e.now = clock.now
	return e, clock
}

func TestIngest_ReactiveSingleEvent(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	e, _ := newTestEngine(t, declarer, nil)

	tr := validTrigger() // threshold 1, within 0
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	e.Ingest(context.Background(), poolEvent("e1", "prefect.work-pool.not-ready", "k8s"))

	if len(declarer.declared) != 1 {
		t.Fatalf("declared = %d, want 1", len(declarer.declared))
	}
	inc := declarer.declared[0]
	if inc.Severity != incident.SeverityMajor {
		t.Errorf("severity = %q, want major", inc.Severity)
	}
	if inc.DeclaredBy != "automation/pool-not-ready" {
		t.Errorf("declared_by = %q", inc.DeclaredBy)
	}
	if got := declarer.attached[inc.ID]; len(got) != 1 || got[0] != "e1" {
		t.Errorf("attached events = %v, want [e1]", got)
	}
}

func TestIngest_IgnoresUnexpectedAndUnmatched(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	e, _ := newTestEngine(t, declarer, nil)
	if err := e.AddTrigger(validTrigger()); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	// wrong event name
	e.Ingest(context.Background(), poolEvent("e1", "prefect.work-pool.ready", "k8s"))
	// wrong resource
	e.Ingest(context.Background(), &event.Event{
		ID: "e2", Name: "prefect.work-pool.not-ready",
		Resource: map[string]string{event.ResourceIDKey: "prefect.flow-run.abc"},
	})

	if len(declarer.declared) != 0 {
		t.Errorf("declared = %d, want 0", len(declarer.declared))
	}
}

func TestIngest_ThresholdWithinWindow(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	e, clock := newTestEngine(t, declarer, nil)

	tr := validTrigger()
	tr.Threshold = 3
	tr.Within = 60
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	ctx := context.Background()
	e.Ingest(ctx, poolEvent("e1", "prefect.work-pool.not-ready", "k8s"))
	clock.advance(10 * time.Second)
	e.Ingest(ctx, poolEvent("e2", "prefect.work-pool.not-ready", "k8s"))
	if len(declarer.declared) != 0 {
		t.Fatal("fired below threshold")
	}

	clock.advance(10 * time.Second)
	e.Ingest(ctx, poolEvent("e3", "prefect.work-pool.not-ready", "k8s"))
	if len(declarer.declared) != 1 {
		t.Fatalf("declared = %d, want 1 after threshold", len(declarer.declared))
	}
	if got := declarer.attached["inc-1"]; len(got) != 3 {
		t.Errorf("attached = %v, want all three evidence events", got)
	}

	// bucket reset: the next event starts counting from scratch
	e.Ingest(ctx, poolEvent("e4", "prefect.work-pool.not-ready", "k8s"))
	if len(declarer.declared) != 1 {
		t.Errorf("declared = %d, want still 1 after reset", len(declarer.declared))
	}
}

func TestIngest_WindowExpiry(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	e, clock := newTestEngine(t, declarer, nil)

	tr := validTrigger()
	tr.Threshold = 2
	tr.Within = 30
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	ctx := context.Background()
	e.Ingest(ctx, poolEvent("e1", "prefect.work-pool.not-ready", "k8s"))
	clock.advance(45 * time.Second) // first event falls out of the window
	e.Ingest(ctx, poolEvent("e2", "prefect.work-pool.not-ready", "k8s"))

	if len(declarer.declared) != 0 {
		t.Errorf("declared = %d, want 0 when events straddle the window", len(declarer.declared))
	}
}

func TestIngest_PerResourceBuckets(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	e, _ := newTestEngine(t, declarer, nil)

	tr := validTrigger()
	tr.Threshold = 2
	tr.Within = 60
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	ctx := context.Background()
	e.Ingest(ctx, poolEvent("e1", "prefect.work-pool.not-ready", "k8s"))
	e.Ingest(ctx, poolEvent("e2", "prefect.work-pool.not-ready", "docker"))

	if len(declarer.declared) != 0 {
		t.Fatal("events for different resources must not share a bucket")
	}

	e.Ingest(ctx, poolEvent("e3", "prefect.work-pool.not-ready", "k8s"))
	if len(declarer.declared) != 1 {
		t.Fatalf("declared = %d, want 1 for the k8s pool", len(declarer.declared))
	}
	if declarer.declared[0].Name != "pool-not-ready: prefect.work-pool.k8s" {
		t.Errorf("incident name = %q", declarer.declared[0].Name)
	}
}

func TestSweep_ProactiveQuietResource(t *testing.T) {
	t.Parallel()

	notifier := &fakeNotifier{}
	e, clock := newTestEngine(t, nil, notifier)

	tr := Trigger{
		Name:    "pool-gone-quiet",
		Match:   map[string]string{event.ResourceIDKey: "prefect.work-pool.*"},
		Expect:  []string{"prefect.work-pool.ready"},
		Posture: PostureProactive,
		Within:  300,
		Actions: []ActionSpec{{Type: ActionNotify}},
	}
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	ctx := context.Background()
	e.Ingest(ctx, poolEvent("e1", "prefect.work-pool.ready", "k8s"))

	clock.advance(200 * time.Second)
	e.Sweep(ctx)
	if len(notifier.firings) != 0 {
		t.Fatal("fired before the window elapsed")
	}

	clock.advance(200 * time.Second)
	e.Sweep(ctx)
	if len(notifier.firings) != 1 {
		t.Fatalf("firings = %d, want 1 after quiet window", len(notifier.firings))
	}
	if notifier.firings[0].ResourceID != "prefect.work-pool.k8s" {
		t.Errorf("resource = %q", notifier.firings[0].ResourceID)
	}

	// quiet period already fired: no repeat
	clock.advance(400 * time.Second)
	e.Sweep(ctx)
	if len(notifier.firings) != 1 {
		t.Errorf("firings = %d, want 1 (no repeat while quiet)", len(notifier.firings))
	}

	// an expected event re-arms the trigger
	e.Ingest(ctx, poolEvent("e2", "prefect.work-pool.ready", "k8s"))
	clock.advance(400 * time.Second)
	e.Sweep(ctx)
	if len(notifier.firings) != 2 {
		t.Errorf("firings = %d, want 2 after re-arm", len(notifier.firings))
	}
}

func TestAddTrigger_DuplicateName(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, newFakeDeclarer(), nil)
	if err := e.AddTrigger(validTrigger()); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}
	if err := e.AddTrigger(validTrigger()); err == nil {
		t.Error("expected error for duplicate trigger name")
	}
}

func TestAddTrigger_Invalid(t *testing.T) {
	t.Parallel()

	e, _ := newTestEngine(t, newFakeDeclarer(), nil)
	tr := validTrigger()
	tr.Match = nil
	if err := e.AddTrigger(tr); err == nil {
		t.Error("expected validation error")
	}
}

func TestFire_ActionErrorDoesNotStopOthers(t *testing.T) {
	t.Parallel()

	declarer := newFakeDeclarer()
	declarer.declError = errors.New("store down")
	notifier := &fakeNotifier{}
	e, _ := newTestEngine(t, declarer, notifier)

	tr := validTrigger()
	tr.Actions = []ActionSpec{
		{Type: ActionDeclareIncident, Severity: incident.SeverityMajor},
		{Type: ActionNotify},
	}
	if err := e.AddTrigger(tr); err != nil {
		t.Fatalf("AddTrigger: %v", err)
	}

	e.Ingest(context.Background(), poolEvent("e1", "prefect.work-pool.not-ready", "k8s"))

	if len(notifier.firings) != 1 {
		t.Errorf("notify did not run after declare-incident failed")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	t.Parallel()

	e := NewEngine(nil, nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		e.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}
