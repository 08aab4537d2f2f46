package orchapi

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NeodarZ/prefect/internal/event"
)

// handleEmitEvent accepts one emitted event or an {"events":[...]} batch and
// hands them to the bus. The response carries the normalized IDs so clients
// can correlate.
func (a *API) handleEmitEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	var batch struct {
		Events []event.Event `json:"events"`
	}
	if err := json.Unmarshal(body, &batch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	evs := batch.Events
	if len(evs) == 0 {
		var single event.Event
		if err := json.Unmarshal(body, &single); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		evs = []event.Event{single}
	}

	now := time.Now().UTC()
	for i := range evs {
		evs[i].Normalize(now)
		if err := evs[i].Validate(); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	span := trace.SpanFromContext(r.Context())
	span.SetAttributes(attribute.Int("prefect.events.count", len(evs)))

	accepted := make([]string, 0, len(evs))
	for i := range evs {
		a.events.Publish(r.Context(), &evs[i])
		accepted = append(accepted, evs[i].ID)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
}
