package feedback

import (
	"errors"
	"time"
)

// ErrUnknownOutcome is returned for an outcome with no configured reward.
var ErrUnknownOutcome = errors.New("unknown feedback outcome")

// #region outcome
// Outcome is what the person did with a suggestion.
type Outcome string

const (
	OutcomeAccepted          Outcome = "accepted"
	OutcomeIgnored           Outcome = "ignored"
	OutcomeReportedUnhelpful Outcome = "reported_unhelpful"
	OutcomeReportedHelpful   Outcome = "reported_helpful"
)

// Valid reports whether o is one of the known outcomes.
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeAccepted, OutcomeIgnored, OutcomeReportedUnhelpful, OutcomeReportedHelpful:
		return true
	}
	return false
}
// #endregion outcome

// #region event
// Event is delayed feedback on one issued command or suggestion.
type Event struct {
	CorrelationID string    `json:"correlation_id"`
	Outcome       Outcome   `json:"outcome"`
	Timestamp     time.Time `json:"timestamp"`
}

// Key identifies an event for duplicate suppression.
func (e Event) Key() string {
	return e.CorrelationID + "|" + e.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + string(e.Outcome)
}

// Link is what a correlation ID resolves to.
type Link struct {
	SuggestionID   string `json:"suggestion_id"`
	BehaviorID     string `json:"behavior_id"`
	InterventionID string `json:"intervention_id"`
	Bucket         string `json:"bucket"`
}
// #endregion event

// #region record
// Record is the learned efficacy of one intervention in one context bucket.
type Record struct {
	InterventionID string    `json:"intervention_id"`
	Bucket         string    `json:"bucket"`
	Score          float64   `json:"score"`
	SampleCount    int       `json:"sample_count"`
	UpdatedAt      time.Time `json:"updated_at"`
	Version        int64     `json:"version"` // optimistic concurrency token, owned by the store
}

// NeutralPrior is the score assumed before any feedback.
const NeutralPrior = 0.5

// Neutral returns the lazily-created record for a pair with no history.
func Neutral(interventionID, bucket string) Record {
	return Record{InterventionID: interventionID, Bucket: bucket, Score: NeutralPrior}
}
// #endregion record

// #region config
// Config holds learning parameters.
type Config struct {
	Alpha   float64             // EMA step size (default 0.2)
	Rewards map[Outcome]float64 // reward per outcome, each in [0, 1]
}

// DefaultConfig returns sensible defaults. Ignored is treated as weak
// evidence of a poor fit rather than outright failure.
func DefaultConfig() Config {
	return Config{
		Alpha: 0.2,
		Rewards: map[Outcome]float64{
			OutcomeAccepted:          1.0,
			OutcomeReportedHelpful:   1.0,
			OutcomeReportedUnhelpful: 0.0,
			OutcomeIgnored:           0.4,
		},
	}
}
// #endregion config
