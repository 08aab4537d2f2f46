package orchapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/NeodarZ/prefect/internal/incident"
)

type declareIncidentRequest struct {
	Name       string            `json:"name"`
	Summary    string            `json:"summary"`
	Severity   incident.Severity `json:"severity"`
	DeclaredBy string            `json:"declared_by"`
}

func (a *API) handleDeclareIncident(w http.ResponseWriter, r *http.Request) {
	var req declareIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.incidents.Declare(r.Context(), req.Name, req.Summary, req.Severity, req.DeclaredBy)
	if err != nil {
		a.incidentError(w, r, err, "declare incident")
		return
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("prefect.incident.id", inc.ID))

	writeJSON(w, http.StatusCreated, inc)
}

func (a *API) handleListIncidents(w http.ResponseWriter, r *http.Request) {
	f := incident.ListFilter{
		Status:   incident.Status(r.URL.Query().Get("status")),
		Severity: incident.Severity(r.URL.Query().Get("severity")),
	}

	list, err := a.incidents.List(r.Context(), f)
	if err != nil {
		a.incidentError(w, r, err, "list incidents")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"incidents": list})
}

func (a *API) handleGetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("prefect.incident.id", id))

	inc, ok, err := a.incidents.Get(r.Context(), id)
	if err != nil {
		a.logger.Error(r.Context(), err, "failed to get incident", "incident_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	span.SetAttributes(attribute.String("prefect.incident.status", string(inc.Status)))
	writeJSON(w, http.StatusOK, inc)
}

type setStatusRequest struct {
	Status incident.Status `json:"status"`
	Actor  string          `json:"actor"`
}

func (a *API) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.incidents.SetStatus(r.Context(), chi.URLParam(r, "id"), req.Status, req.Actor)
	if err != nil {
		a.incidentError(w, r, err, "set incident status")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type setSeverityRequest struct {
	Severity incident.Severity `json:"severity"`
	Actor    string            `json:"actor"`
}

func (a *API) handleSetSeverity(w http.ResponseWriter, r *http.Request) {
	var req setSeverityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	inc, err := a.incidents.SetSeverity(r.Context(), chi.URLParam(r, "id"), req.Severity, req.Actor)
	if err != nil {
		a.incidentError(w, r, err, "set incident severity")
		return
	}
	writeJSON(w, http.StatusOK, inc)
}

type addCommentRequest struct {
	Author string `json:"author"`
	Body   string `json:"body"`
}

func (a *API) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var req addCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	c, err := a.incidents.AddComment(r.Context(), chi.URLParam(r, "id"), req.Author, req.Body)
	if err != nil {
		a.incidentError(w, r, err, "add comment")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// incidentError maps service errors onto HTTP statuses. Unknown errors are
// logged and hidden behind a 500.
func (a *API) incidentError(w http.ResponseWriter, r *http.Request, err error, op string) {
	switch {
	case errors.Is(err, incident.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, incident.ErrBadTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, incident.ErrInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		a.logger.Error(r.Context(), err, "failed to "+op)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
