package incident

import "context"

// ListFilter narrows List results. Zero values mean "any".
type ListFilter struct {
	Status   Status
	Severity Severity
}

// Store is the persistence interface for incidents.
type Store interface {
	Get(ctx context.Context, id string) (*Incident, bool, error)
	List(ctx context.Context, f ListFilter) ([]*Incident, error)
	Put(ctx context.Context, inc *Incident) error
	CountOpen(ctx context.Context) (int, error)
}
