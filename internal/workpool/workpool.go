// Package workpool tracks work pools: named execution environments whose
// readiness is derived from worker heartbeats. Status changes are published
// as events for the automation engine.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"

	"github.com/NeodarZ/prefect/internal/event"
)

// Status of a work pool.
type Status string

const (
	StatusReady    Status = "ready"
	StatusNotReady Status = "not_ready"
	StatusPaused   Status = "paused"
)

// Event names published on status changes.
const (
	EventReady    = "prefect.work-pool.ready"
	EventNotReady = "prefect.work-pool.not-ready"
)

// ResourceID returns the event resource identity for a pool name.
func ResourceID(name string) string {
	return "prefect.work-pool." + name
}

// WorkPool is a target execution environment for scheduled runs.
type WorkPool struct {
	Name          string    `json:"name"`
	Type          string    `json:"type"`
	Status        Status    `json:"status"`
	Concurrency   int       `json:"concurrency"`
	CreatedAt     time.Time `json:"created_at"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	LastWorkerID  string    `json:"last_worker_id,omitempty"`
}

// ErrNotFound is returned when a pool name does not exist.
var ErrNotFound = errors.New("work pool not found")

// ErrExists is returned when a pool name is already registered.
var ErrExists = errors.New("work pool already exists")

// Publisher is where pool status events go.
type Publisher interface {
	Publish(ctx context.Context, e *event.Event)
}

// Service owns the in-memory pool registry. Readiness is liveness state
// rebuilt from heartbeats, so nothing here needs to survive a restart.
type Service struct {
	logger    log.Logger
	publisher Publisher
	staleness time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	pools map[string]*WorkPool
}

// NewService creates a work pool service. Pools whose last heartbeat is older
// than staleness are marked not_ready by the monitor.
func NewService(logger log.Logger, publisher Publisher, staleness time.Duration) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		logger:    logger,
		publisher: publisher,
		staleness: staleness,
		now:       time.Now,
		pools:     make(map[string]*WorkPool),
	}
}

// Create registers a new pool. New pools start not_ready until a worker
// heartbeats.
func (s *Service) Create(ctx context.Context, name, poolType string, concurrency int) (*WorkPool, error) {
	if name == "" {
		return nil, errors.New("work pool name is required")
	}
	if concurrency < 1 {
		return nil, fmt.Errorf("concurrency %d must be >= 1", concurrency)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pools[name]; ok {
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}

	p := &WorkPool{
		Name:        name,
		Type:        poolType,
		Status:      StatusNotReady,
		Concurrency: concurrency,
		CreatedAt:   s.now().UTC(),
	}
	s.pools[name] = p

	s.logger.Info(ctx, "work pool created", "pool", name, "type", poolType, "concurrency", concurrency)
	cp := *p
	return &cp, nil
}

// Get returns a copy of the named pool.
func (s *Service) Get(_ context.Context, name string) (*WorkPool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[name]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// List returns all pools sorted by name.
func (s *Service) List(_ context.Context) []*WorkPool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*WorkPool, 0, len(s.pools))
	for _, p := range s.pools {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Heartbeat records a worker poll. A stale or new pool becomes ready and the
// transition is published.
func (s *Service) Heartbeat(ctx context.Context, name, workerID string) (*WorkPool, error) {
	s.mu.Lock()
	p, ok := s.pools[name]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}

	p.LastHeartbeat = s.now().UTC()
	p.LastWorkerID = workerID

	becameReady := p.Status == StatusNotReady
	if becameReady {
		p.Status = StatusReady
	}
	cp := *p
	s.mu.Unlock()

	if becameReady {
		s.publishStatus(ctx, &cp, EventReady)
		s.logger.Info(ctx, "work pool ready", "pool", name, "worker_id", workerID)
	}
	return &cp, nil
}

// Pause takes the pool out of monitoring; it stays paused until Resume.
func (s *Service) Pause(ctx context.Context, name string) (*WorkPool, error) {
	return s.setPaused(ctx, name, true)
}

// Resume puts the pool back under monitoring as not_ready until the next
// heartbeat.
func (s *Service) Resume(ctx context.Context, name string) (*WorkPool, error) {
	return s.setPaused(ctx, name, false)
}

func (s *Service) setPaused(ctx context.Context, name string, paused bool) (*WorkPool, error) {
	s.mu.Lock()
	p, ok := s.pools[name]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if paused {
		p.Status = StatusPaused
	} else if p.Status == StatusPaused {
		p.Status = StatusNotReady
	}
	cp := *p
	s.mu.Unlock()

	s.logger.Info(ctx, "work pool pause state changed", "pool", name, "paused", paused)
	return &cp, nil
}

// CheckStaleness marks pools whose heartbeat is older than the staleness
// threshold as not_ready and publishes the transition. Called periodically
// by Run; exported for tests.
func (s *Service) CheckStaleness(ctx context.Context) {
	cutoff := s.now().Add(-s.staleness)

	var wentStale []*WorkPool

	s.mu.Lock()
	for _, p := range s.pools {
		if p.Status != StatusReady {
			continue
		}
		if p.LastHeartbeat.Before(cutoff) {
			p.Status = StatusNotReady
			cp := *p
			wentStale = append(wentStale, &cp)
		}
	}
	s.mu.Unlock()

	for _, p := range wentStale {
		s.publishStatus(ctx, p, EventNotReady)
		s.logger.Warn(ctx, "work pool went stale",
			"pool", p.Name,
			"last_heartbeat", p.LastHeartbeat,
			"staleness", s.staleness.String(),
		)
	}
}

// Run checks pool staleness until ctx is cancelled.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info(ctx, "work pool monitor started", "interval", interval.String(), "staleness", s.staleness.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(context.Background(), "work pool monitor stopped")
			return
		case <-ticker.C:
			s.CheckStaleness(ctx)
		}
	}
}

func (s *Service) publishStatus(ctx context.Context, p *WorkPool, name string) {
	if s.publisher == nil {
		return
	}
	e := &event.Event{
		Name: name,
		Resource: map[string]string{
			event.ResourceIDKey:      ResourceID(p.Name),
			"prefect.work-pool.type": p.Type,
		},
	}
	e.Normalize(s.now().UTC())
	s.publisher.Publish(ctx, e)
}
