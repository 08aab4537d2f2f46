package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/oklog/ulid/v2"
)

// ErrNotFound is returned when an incident ID does not exist.
var ErrNotFound = errors.New("incident not found")

// ErrBadTransition is returned for status changes the lifecycle forbids.
var ErrBadTransition = errors.New("illegal status transition")

// ErrInvalid is returned for requests that fail input validation.
var ErrInvalid = errors.New("invalid input")

// Notifier delivers incident notifications. Implementations must be safe for
// concurrent use.
type Notifier interface {
	NotifyDeclared(ctx context.Context, inc *Incident) error
	NotifyResolved(ctx context.Context, inc *Incident) error
}

// Service is the business boundary for incident operations.
type Service struct {
	store    Store
	logger   log.Logger
	metrics  *Metrics
	notifier Notifier

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService creates a new incident service. metrics and notifier may be nil.
func NewService(store Store, logger log.Logger, metrics *Metrics, notifier Notifier) *Service {
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		logger:   logger,
		metrics:  metrics,
		notifier: notifier,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lockIncident serializes mutations of a single incident. Every mutation is
// a read-modify-write against the store; concurrent writers on the same
// incident would otherwise append at the same Seq and drop each other's Put.
func (s *Service) lockIncident(id string) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Declare creates a new incident in status declared.
func (s *Service) Declare(ctx context.Context, name, summary string, sev Severity, declaredBy string) (*Incident, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: incident name is required", ErrInvalid)
	}
	if !ValidSeverity(sev) {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalid, sev)
	}

	now := time.Now().UTC()
	inc := &Incident{
		ID:         ulid.Make().String(),
		Name:       name,
		Summary:    summary,
		Severity:   sev,
		Status:     StatusDeclared,
		DeclaredBy: declaredBy,
		CreatedAt:  now,
		Timeline: []TimelineEntry{{
			Seq:        1,
			Kind:       EntryDeclared,
			Actor:      declaredBy,
			Detail:     string(sev),
			OccurredAt: now,
		}},
	}

	if err := s.store.Put(ctx, inc); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.DeclaredTotal.WithLabelValues(string(sev)).Inc()
		s.observeOpen(ctx)
	}
	s.logger.Info(ctx, "incident declared",
		"incident_id", inc.ID,
		"name", inc.Name,
		"severity", sev,
		"declared_by", declaredBy,
	)
	s.notify(ctx, inc, true)

	return inc, nil
}

// Get retrieves an incident by ID.
func (s *Service) Get(ctx context.Context, id string) (*Incident, bool, error) {
	return s.store.Get(ctx, id)
}

// List returns incidents matching the filter, newest first.
func (s *Service) List(ctx context.Context, f ListFilter) ([]*Incident, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrInvalid, f.Status)
	}
	if f.Severity != "" && !ValidSeverity(f.Severity) {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalid, f.Severity)
	}
	return s.store.List(ctx, f)
}

// SetStatus moves an incident through its lifecycle.
func (s *Service) SetStatus(ctx context.Context, id string, to Status, actor string) (*Incident, error) {
	if !ValidStatus(to) {
		return nil, fmt.Errorf("%w: invalid status %q", ErrInvalid, to)
	}

	defer s.lockIncident(id)()

	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	if !legalTransition(inc.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrBadTransition, inc.Status, to)
	}

	now := time.Now().UTC()
	from := inc.Status
	inc.Status = to
	switch to {
	case StatusResolved:
		inc.ResolvedAt = now
	case StatusInvestigating:
		// reopen clears the resolution time
		inc.ResolvedAt = time.Time{}
	}
	inc.Timeline = append(inc.Timeline, TimelineEntry{
		Seq:        inc.nextSeq(),
		Kind:       EntryStatusChanged,
		Actor:      actor,
		Detail:     fmt.Sprintf("%s -> %s", from, to),
		OccurredAt: now,
	})

	if err := s.store.Put(ctx, inc); err != nil {
		return nil, err
	}

	if to == StatusResolved {
		if s.metrics != nil {
			s.metrics.ResolvedTotal.WithLabelValues(string(inc.Severity)).Inc()
			s.metrics.TimeToResolve.Observe(now.Sub(inc.CreatedAt).Seconds())
		}
		s.notify(ctx, inc, false)
	}
	if s.metrics != nil {
		s.observeOpen(ctx)
	}
	s.logger.Info(ctx, "incident status changed",
		"incident_id", inc.ID,
		"from", from,
		"to", to,
		"actor", actor,
	)

	return inc, nil
}

// SetSeverity changes an incident's severity.
func (s *Service) SetSeverity(ctx context.Context, id string, sev Severity, actor string) (*Incident, error) {
	if !ValidSeverity(sev) {
		return nil, fmt.Errorf("%w: invalid severity %q", ErrInvalid, sev)
	}

	defer s.lockIncident(id)()

	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	from := inc.Severity
	inc.Severity = sev
	inc.Timeline = append(inc.Timeline, TimelineEntry{
		Seq:        inc.nextSeq(),
		Kind:       EntrySeverityChanged,
		Actor:      actor,
		Detail:     fmt.Sprintf("%s -> %s", from, sev),
		OccurredAt: time.Now().UTC(),
	})

	if err := s.store.Put(ctx, inc); err != nil {
		return nil, err
	}
	return inc, nil
}

// AddComment appends a comment and its timeline entry.
func (s *Service) AddComment(ctx context.Context, id, author, body string) (*Comment, error) {
	if body == "" {
		return nil, fmt.Errorf("%w: comment body is required", ErrInvalid)
	}

	defer s.lockIncident(id)()

	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}

	now := time.Now().UTC()
	c := Comment{
		ID:        ulid.Make().String(),
		Author:    author,
		Body:      body,
		CreatedAt: now,
	}
	inc.Comments = append(inc.Comments, c)
	inc.Timeline = append(inc.Timeline, TimelineEntry{
		Seq:        inc.nextSeq(),
		Kind:       EntryCommentAdded,
		Actor:      author,
		Detail:     c.ID,
		OccurredAt: now,
	})

	if err := s.store.Put(ctx, inc); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.CommentsTotal.Inc()
	}
	return &c, nil
}

// AttachEvent records an emitted event as evidence on the incident timeline.
func (s *Service) AttachEvent(ctx context.Context, id, eventID, detail string) error {
	defer s.lockIncident(id)()

	inc, ok, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	inc.Timeline = append(inc.Timeline, TimelineEntry{
		Seq:        inc.nextSeq(),
		Kind:       EntryEventAttached,
		Actor:      eventID,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	})
	return s.store.Put(ctx, inc)
}

// notify sends best-effort notifications; failures are logged, never returned.
func (s *Service) notify(ctx context.Context, inc *Incident, declared bool) {
	if s.notifier == nil {
		return
	}
	var err error
	if declared {
		err = s.notifier.NotifyDeclared(ctx, inc)
	} else {
		err = s.notifier.NotifyResolved(ctx, inc)
	}
	if err != nil {
		s.logger.Error(ctx, err, "incident notification failed", "incident_id", inc.ID)
	}
}

func (s *Service) observeOpen(ctx context.Context) {
	n, err := s.store.CountOpen(ctx)
	if err != nil {
		s.logger.Error(ctx, err, "count open incidents")
		return
	}
	s.metrics.OpenIncidents.Set(float64(n))
}
