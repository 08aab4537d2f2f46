package automation

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/NeodarZ/prefect/internal/incident"
)

// Posture describes when a trigger evaluates relative to events.
type Posture string

const (
	// PostureReactive fires when matching events happen.
	PostureReactive Posture = "Reactive"

	// PostureProactive fires when expected events fail to happen in time.
	PostureProactive Posture = "Proactive"
)

// Action types understood by the engine.
const (
	ActionDeclareIncident = "declare-incident"
	ActionNotify          = "notify"
)

// ActionSpec configures one reaction to a trigger firing.
type ActionSpec struct {
	Type string `json:"type" yaml:"type"`

	// Severity applies to declare-incident actions. Defaults to moderate.
	Severity incident.Severity `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Trigger is an event-matching rule. Match patterns select events by
// resource attributes (patterns may contain * wildcards), expect names the
// event types listened for, and threshold/within define how many matching
// events inside the window cause a firing.
type Trigger struct {
	Name      string            `json:"name" yaml:"name"`
	Match     map[string]string `json:"match" yaml:"match"`
	Expect    []string          `json:"expect,omitempty" yaml:"expect,omitempty"`
	Posture   Posture           `json:"posture" yaml:"posture"`
	Threshold int               `json:"threshold" yaml:"threshold"`
	Within    int               `json:"within" yaml:"within"`
	Actions   []ActionSpec      `json:"actions" yaml:"actions"`
}

// Validate checks the trigger and fills defaults (threshold 1, severity
// moderate on declare-incident actions).
func (t *Trigger) Validate() error {
	var errs []error

	if t.Name == "" {
		errs = append(errs, errors.New("trigger name is required"))
	}
	if len(t.Match) == 0 {
		errs = append(errs, errors.New("match must select at least one resource attribute"))
	}
	switch t.Posture {
	case PostureReactive, PostureProactive:
	default:
		errs = append(errs, fmt.Errorf("invalid posture %q", t.Posture))
	}
	if t.Threshold == 0 {
		t.Threshold = 1
	}
	if t.Threshold < 1 {
		errs = append(errs, fmt.Errorf("threshold %d must be >= 1", t.Threshold))
	}
	if t.Within < 0 {
		errs = append(errs, fmt.Errorf("within %d must be >= 0", t.Within))
	}
	if t.Posture == PostureReactive && t.Threshold > 1 && t.Within <= 0 {
		errs = append(errs, errors.New("reactive triggers with threshold > 1 need within > 0"))
	}
	if t.Posture == PostureProactive {
		if t.Within <= 0 {
			errs = append(errs, errors.New("proactive triggers need within > 0"))
		}
		if len(t.Expect) == 0 {
			errs = append(errs, errors.New("proactive triggers need expect"))
		}
	}
	if len(t.Actions) == 0 {
		errs = append(errs, errors.New("trigger needs at least one action"))
	}
	for i := range t.Actions {
		a := &t.Actions[i]
		switch a.Type {
		case ActionDeclareIncident:
			if a.Severity == "" {
				a.Severity = incident.SeverityModerate
			}
			if !incident.ValidSeverity(a.Severity) {
				errs = append(errs, fmt.Errorf("action %d: invalid severity %q", i, a.Severity))
			}
		case ActionNotify:
		default:
			errs = append(errs, fmt.Errorf("action %d: unknown type %q", i, a.Type))
		}
	}

	return errors.Join(errs...)
}

// expects reports whether the trigger listens for the event name.
// An empty expect list means any event name.
func (t *Trigger) expects(name string) bool {
	if len(t.Expect) == 0 {
		return true
	}
	for _, e := range t.Expect {
		if e == name {
			return true
		}
	}
	return false
}

// triggerFile is the on-disk shape of the automations file.
type triggerFile struct {
	Triggers []Trigger `yaml:"triggers"`
}

// LoadFile reads and validates triggers from a YAML automations file.
func LoadFile(path string) ([]Trigger, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // G304: path is from trusted config, not user input
	if err != nil {
		return nil, fmt.Errorf("read automations file: %w", err)
	}

	var f triggerFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse automations file: %w", err)
	}

	for i := range f.Triggers {
		if err := f.Triggers[i].Validate(); err != nil {
			return nil, fmt.Errorf("trigger %d (%q): %w", i, f.Triggers[i].Name, err)
		}
	}
	return f.Triggers, nil
}
