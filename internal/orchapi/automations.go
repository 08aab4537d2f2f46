package orchapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/NeodarZ/prefect/internal/automation"
)

func (a *API) handleCreateTrigger(w http.ResponseWriter, r *http.Request) {
	var t automation.Trigger
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	// Validate here so the echoed trigger carries the filled defaults.
	if err := t.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := a.triggers.AddTrigger(t); err != nil {
		if errors.Is(err, automation.ErrDuplicate) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.logger.Info(r.Context(), "trigger registered", "trigger", t.Name, "posture", t.Posture)
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleListTriggers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"triggers": a.triggers.Triggers()})
}
