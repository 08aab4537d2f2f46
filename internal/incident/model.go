package incident

import "time"

// Severity ranks how disruptive an incident is.
type Severity string

const (
	SeverityMinor    Severity = "minor"
	SeverityModerate Severity = "moderate"
	SeverityMajor    Severity = "major"
	SeverityCritical Severity = "critical"
)

// ValidSeverity reports whether s is a known severity.
func ValidSeverity(s Severity) bool {
	switch s {
	case SeverityMinor, SeverityModerate, SeverityMajor, SeverityCritical:
		return true
	}
	return false
}

// Status tracks where an incident is in its lifecycle.
type Status string

const (
	// StatusDeclared means reported, nobody actively working it yet
	StatusDeclared Status = "declared"

	// StatusInvestigating means someone is actively working the incident
	StatusInvestigating Status = "investigating"

	// StatusResolved means the disruption is over
	StatusResolved Status = "resolved"
)

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDeclared, StatusInvestigating, StatusResolved:
		return true
	}
	return false
}

// legalTransition reports whether an incident may move from one status to
// another. Resolved incidents may be reopened into investigating.
func legalTransition(from, to Status) bool {
	switch from {
	case StatusDeclared:
		return to == StatusInvestigating || to == StatusResolved
	case StatusInvestigating:
		return to == StatusResolved
	case StatusResolved:
		return to == StatusInvestigating
	}
	return false
}

// EntryKind labels a timeline entry.
type EntryKind string

const (
	EntryDeclared        EntryKind = "declared"
	EntryStatusChanged   EntryKind = "status_changed"
	EntrySeverityChanged EntryKind = "severity_changed"
	EntryCommentAdded    EntryKind = "comment_added"
	EntryEventAttached   EntryKind = "event_attached"
)

// Comment is a note left on an incident.
type Comment struct {
	ID        string    `json:"id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// TimelineEntry records a single change to an incident. Seq is assigned per
// incident and strictly increases.
type TimelineEntry struct {
	Seq        int       `json:"seq"`
	Kind       EntryKind `json:"kind"`
	Actor      string    `json:"actor,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Incident is a declared workflow disruption.
type Incident struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Summary    string          `json:"summary,omitempty"`
	Severity   Severity        `json:"severity"`
	Status     Status          `json:"status"`
	DeclaredBy string          `json:"declared_by,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ResolvedAt time.Time       `json:"resolved_at,omitempty"`
	Comments   []Comment       `json:"comments,omitempty"`
	Timeline   []TimelineEntry `json:"timeline,omitempty"`
}

// nextSeq returns the Seq for the next timeline entry.
func (i *Incident) nextSeq() int {
	if n := len(i.Timeline); n > 0 {
		return i.Timeline[n-1].Seq + 1
	}
	return 1
}
