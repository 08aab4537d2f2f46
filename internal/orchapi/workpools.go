package orchapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/go-chi/chi/v5"

	"github.com/NeodarZ/prefect/internal/workpool"
)

type createPoolRequest struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Concurrency int    `json:"concurrency"`
}

func (a *API) handleCreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Concurrency == 0 {
		req.Concurrency = 1
	}

	p, err := a.pools.Create(r.Context(), req.Name, req.Type, req.Concurrency)
	if err != nil {
		if errors.Is(err, workpool.ErrExists) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (a *API) handleListPools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"work_pools": a.pools.List(r.Context())})
}

func (a *API) handleGetPool(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.String("prefect.work_pool.name", name))

	p, ok := a.pools.Get(r.Context(), name)
	if !ok {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type heartbeatRequest struct {
	WorkerID string `json:"worker_id"`
}

func (a *API) handlePoolHeartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	p, err := a.pools.Heartbeat(r.Context(), chi.URLParam(r, "name"), req.WorkerID)
	if err != nil {
		a.poolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handlePausePool(w http.ResponseWriter, r *http.Request) {
	p, err := a.pools.Pause(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.poolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleResumePool(w http.ResponseWriter, r *http.Request) {
	p, err := a.pools.Resume(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		a.poolError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) poolError(w http.ResponseWriter, err error) {
	if errors.Is(err, workpool.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	writeError(w, http.StatusBadRequest, err.Error())
}
