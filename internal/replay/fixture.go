package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region fixture-types

// Step kinds.
const (
	KindSignal   = "signal"
	KindText     = "text"
	KindCheckIn  = "checkin"
	KindAction   = "action"
	KindTick     = "tick"
	KindFeedback = "feedback"
)

// Fixture is the top-level JSON structure for a replay fixture: a timeline
// of inputs with the results each step is expected to produce.
type Fixture struct {
	Description string        `json:"description"`
	Start       time.Time     `json:"start"`
	Config      FixtureConfig `json:"config"`
	Steps       []Step        `json:"steps"`
}

// FixtureConfig overrides engine settings for the run.
type FixtureConfig struct {
	Seed      uint64   `json:"seed"`
	Epsilon   *float64 `json:"epsilon,omitempty"`
	Behaviors []string `json:"behaviors,omitempty"`
	// Catalog is a path to a catalog file, relative to the fixture. Empty
	// uses the built-in catalog.
	Catalog string `json:"catalog,omitempty"`
}

// Step is one timeline entry. After advances the clock before the step runs.
type Step struct {
	After    Duration         `json:"after"`
	Kind     string           `json:"kind"`
	Signal   *FixtureSignal   `json:"signal,omitempty"`
	Text     string           `json:"text,omitempty"`
	CheckIn  *signals.CheckIn `json:"checkin,omitempty"`
	Action   *FixtureAction   `json:"action,omitempty"`
	Feedback *FixtureFeedback `json:"feedback,omitempty"`
	Expect   *Expect          `json:"expect,omitempty"`
}

// FixtureSignal is a signal stamped with the step's clock.
type FixtureSignal struct {
	Source     signals.Source    `json:"source"`
	Dimension  signals.Dimension `json:"dimension"`
	Value      float64           `json:"value"`
	Confidence float64           `json:"confidence"`
}

// FixtureAction is an action stamped with the step's clock. Qualifies
// defaults to true.
type FixtureAction struct {
	BehaviorID string `json:"behavior_id"`
	Qualifies  *bool  `json:"qualifies,omitempty"`
}

// FixtureFeedback answers a command issued by an earlier tick step, or names
// a correlation ID directly.
type FixtureFeedback struct {
	Outcome       string `json:"outcome"`
	CorrelationID string `json:"correlation_id,omitempty"`
	TickStep      int    `json:"tick_step"`
	Behavior      int    `json:"behavior"`
	Command       int    `json:"command"`
}

// Expect lists the checks for a step. Unset fields are not checked.
type Expect struct {
	Error           string   `json:"error,omitempty"` // substring of the step's error
	Inserted        *bool    `json:"inserted,omitempty"`
	Decision        string   `json:"decision,omitempty"`
	InterventionID  string   `json:"intervention_id,omitempty"`
	Bucket          string   `json:"bucket,omitempty"`
	Explored        *bool    `json:"explored,omitempty"`
	Devices         []string `json:"devices,omitempty"`
	MessageContains string   `json:"message_contains,omitempty"`
	Transition      string   `json:"transition,omitempty"`
	StreakLength    *int     `json:"streak_length,omitempty"`
	Score           *float64 `json:"score,omitempty"`
	Duplicate       *bool    `json:"duplicate,omitempty"`
}

// Duration is a time.Duration written as a string such as "90m".
type Duration time.Duration

// UnmarshalJSON parses a Go duration string.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalJSON writes the duration string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("fixture %s: %w", path, err)
	}
	return &f, nil
}

func (f *Fixture) validate() error {
	if f.Start.IsZero() {
		return fmt.Errorf("start time is required")
	}
	for i, s := range f.Steps {
		var missing bool
		switch s.Kind {
		case KindSignal:
			missing = s.Signal == nil
		case KindText:
			missing = s.Text == ""
		case KindCheckIn:
			missing = s.CheckIn == nil
		case KindAction, KindTick:
		case KindFeedback:
			missing = s.Feedback == nil
			if !missing && s.Feedback.CorrelationID == "" && (s.Feedback.TickStep < 0 || s.Feedback.TickStep >= i) {
				return fmt.Errorf("step %d: feedback must reference an earlier tick step", i)
			}
		default:
			return fmt.Errorf("step %d: unknown kind %q", i, s.Kind)
		}
		if missing {
			return fmt.Errorf("step %d: %s step is missing its %s body", i, s.Kind, s.Kind)
		}
	}
	return nil
}

// #endregion fixture-loader
