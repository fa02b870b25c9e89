package logging

import "time"

// #region config
// Config selects the global zerolog level and output.
type Config struct {
	Level  string // "debug" | "info" | "warn" | "error"
	Format string // "console" | "json"
	File   string // optional; appended to in addition to stderr
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}
// #endregion config

// #region decision
// Decision is the outcome recorded for one behaviour in one tick.
type Decision string

const (
	DecisionSelected  Decision = "selected"  // an intervention was issued
	DecisionNone      Decision = "none"      // nothing applicable
	DecisionAbandoned Decision = "abandoned" // context canceled before recording
	DecisionFailed    Decision = "failed"
)

// Entry is a single row in the decision_log table.
type Entry struct {
	TickID         string
	BehaviorID     string
	Decision       Decision
	InterventionID string
	SuggestionID   string
	Bucket         string
	Explored       bool
	Reason         string
	InputsJSON     string // serialized selection inputs, for replaying the decision
	CreatedAt      time.Time
}
// #endregion decision
