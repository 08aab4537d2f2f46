// Package orchapi exposes the orchestration HTTP API: incidents, events,
// automations, and work pools.
package orchapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/NeodarZ/prefect/internal/automation"
	"github.com/NeodarZ/prefect/internal/event"
	"github.com/NeodarZ/prefect/internal/incident"
	"github.com/NeodarZ/prefect/internal/workpool"
)

// IncidentService defines the incident operations orchapi needs.
type IncidentService interface {
	Declare(ctx context.Context, name, summary string, sev incident.Severity, declaredBy string) (*incident.Incident, error)
	Get(ctx context.Context, id string) (*incident.Incident, bool, error)
	List(ctx context.Context, f incident.ListFilter) ([]*incident.Incident, error)
	SetStatus(ctx context.Context, id string, to incident.Status, actor string) (*incident.Incident, error)
	SetSeverity(ctx context.Context, id string, sev incident.Severity, actor string) (*incident.Incident, error)
	AddComment(ctx context.Context, id, author, body string) (*incident.Comment, error)
}

// WorkPoolService defines the work pool operations orchapi needs.
type WorkPoolService interface {
	Create(ctx context.Context, name, poolType string, concurrency int) (*workpool.WorkPool, error)
	Get(ctx context.Context, name string) (*workpool.WorkPool, bool)
	List(ctx context.Context) []*workpool.WorkPool
	Heartbeat(ctx context.Context, name, workerID string) (*workpool.WorkPool, error)
	Pause(ctx context.Context, name string) (*workpool.WorkPool, error)
	Resume(ctx context.Context, name string) (*workpool.WorkPool, error)
}

// TriggerRegistry defines the automation operations orchapi needs.
type TriggerRegistry interface {
	AddTrigger(t automation.Trigger) error
	Triggers() []automation.Trigger
}

// EventPublisher accepts emitted events for evaluation.
type EventPublisher interface {
	Publish(ctx context.Context, e *event.Event)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger    log.Logger
	incidents IncidentService
	pools     WorkPoolService
	triggers  TriggerRegistry
	events    EventPublisher
}

// New creates a new API handler.
func New(logger log.Logger, incidents IncidentService, pools WorkPoolService, triggers TriggerRegistry, events EventPublisher) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if incidents == nil {
		panic(xerrors.New("incident service is required"))
	}
	if pools == nil {
		panic(xerrors.New("work pool service is required"))
	}
	if triggers == nil {
		panic(xerrors.New("trigger registry is required"))
	}
	if events == nil {
		panic(xerrors.New("event publisher is required"))
	}
	return &API{
		logger:    logger,
		incidents: incidents,
		pools:     pools,
		triggers:  triggers,
		events:    events,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/incidents", func(r chi.Router) {
			r.Post("/", a.handleDeclareIncident)
			r.Get("/", a.handleListIncidents)
			r.Get("/{id}", a.handleGetIncident)
			r.Post("/{id}/status", a.handleSetStatus)
			r.Post("/{id}/severity", a.handleSetSeverity)
			r.Post("/{id}/comments", a.handleAddComment)
		})

		r.Post("/events", a.handleEmitEvent)

		r.Route("/automations", func(r chi.Router) {
			r.Post("/", a.handleCreateTrigger)
			r.Get("/", a.handleListTriggers)
		})

		r.Route("/work-pools", func(r chi.Router) {
			r.Post("/", a.handleCreatePool)
			r.Get("/", a.handleListPools)
			r.Get("/{name}", a.handleGetPool)
			r.Post("/{name}/heartbeat", a.handlePoolHeartbeat)
			r.Post("/{name}/pause", a.handlePausePool)
			r.Post("/{name}/resume", a.handleResumePool)
		})
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
