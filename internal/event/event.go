// Package event defines the emitted-event model consumed by the automation
// engine and an in-process bus for fanning events out to subscribers.
package event

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

// ResourceIDKey is the resource attribute holding the event's identity.
const ResourceIDKey = "prefect.resource.id"

// Event is a single occurrence emitted by a component or posted by a client.
type Event struct {
	ID         string            `json:"id"`
	Name       string            `json:"event"`
	Resource   map[string]string `json:"resource"`
	OccurredAt time.Time         `json:"occurred"`
	Payload    json.RawMessage   `json:"payload,omitempty"`
}

// ResourceID returns the event's resource identity, or "" when absent.
func (e *Event) ResourceID() string {
	return e.Resource[ResourceIDKey]
}

// Validate checks the fields a client must supply.
func (e *Event) Validate() error {
	var errs []error
	if e.Name == "" {
		errs = append(errs, errors.New("event name is required"))
	}
	if e.ResourceID() == "" {
		errs = append(errs, errors.New("resource is missing "+ResourceIDKey))
	}
	return errors.Join(errs...)
}

// Normalize fills in server-assigned fields: a ULID when the client did not
// send an ID, and the ingest time when occurred is unset.
func (e *Event) Normalize(now time.Time) {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = now
	}
}
