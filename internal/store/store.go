package store

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region errors
var (
	// ErrWriteConflict is returned when a compare-and-swap write loses a race:
	// the stored version no longer matches the version that was read.
	ErrWriteConflict = errors.New("store write conflict")
	// ErrNotFound is returned when a keyed lookup has no row.
	ErrNotFound = errors.New("not found")
)
// #endregion errors

// #region records
// Suggestion is one issued intervention, kept for cooldown, exposure counts
// and resolving feedback correlation IDs.
type Suggestion struct {
	ID             string    `json:"id"`
	BehaviorID     string    `json:"behavior_id"`
	InterventionID string    `json:"intervention_id"`
	Bucket         string    `json:"bucket"`
	Explored       bool      `json:"explored"`
	Message        string    `json:"message,omitempty"`
	IssuedAt       time.Time `json:"issued_at"`
	CorrelationIDs []string  `json:"correlation_ids"`
}

// Summary holds entry counts for the overview endpoint.
type Summary struct {
	Signals         int `json:"signals"`
	ManualSignals   int `json:"manual_signals"`
	InferredSignals int `json:"inferred_signals"`
	Actions         int `json:"actions"`
	Suggestions     int `json:"suggestions"`
	FeedbackEvents  int `json:"feedback_events"`
}
// #endregion records

// #region interface
// Store is the persistence boundary of the engine. Writes are last-write-wins
// at key granularity except PutStreak and PutEfficacy, which compare the
// record's Version with the stored one and fail with ErrWriteConflict on
// mismatch. A Version of 0 means "create"; successful writes return the
// record with its new Version.
type Store interface {
	// PutSignal appends a signal; an identical record already stored is a
	// no-op reported as inserted=false.
	PutSignal(ctx context.Context, r signals.Record) (inserted bool, err error)
	// PutSignals appends all records or none; inserted[i] reports whether
	// rs[i] was new.
	PutSignals(ctx context.Context, rs []signals.Record) (inserted []bool, err error)
	// RecentSignals returns signals with Timestamp >= since, oldest first.
	RecentSignals(ctx context.Context, since time.Time) ([]signals.Record, error)
	// SignalHistory returns up to limit signals, newest first.
	SignalHistory(ctx context.Context, limit int) ([]signals.Record, error)

	PutSnapshot(ctx context.Context, s state.Snapshot) error
	LatestSnapshot(ctx context.Context) (state.Snapshot, error)

	// RecordAction appends an action; a replay of the same action is
	// reported as inserted=false.
	RecordAction(ctx context.Context, a streak.Action) (inserted bool, err error)
	// ForgetAction removes a logged action so a later replay of it is new
	// again. Removing an action that is not logged is a no-op.
	ForgetAction(ctx context.Context, a streak.Action) error
	// ActionHistory returns up to limit actions, newest first.
	ActionHistory(ctx context.Context, limit int) ([]streak.Action, error)

	// GetStreak returns the stored streak, or streak.Zero with Version 0.
	GetStreak(ctx context.Context, behaviorID string) (streak.State, error)
	PutStreak(ctx context.Context, s streak.State) (streak.State, error)
	ListStreaks(ctx context.Context) ([]streak.State, error)

	// GetEfficacy returns ok=false when no feedback has been recorded for the pair.
	GetEfficacy(ctx context.Context, interventionID, bucket string) (rec feedback.Record, ok bool, err error)
	PutEfficacy(ctx context.Context, r feedback.Record) (feedback.Record, error)
	ListEfficacy(ctx context.Context) ([]feedback.Record, error)

	RecordSuggestion(ctx context.Context, s Suggestion) error
	// RecentSuggestions returns suggestions issued at or after since, oldest first.
	RecentSuggestions(ctx context.Context, since time.Time) ([]Suggestion, error)
	// ResolveCorrelation returns the suggestion a command correlation ID (or
	// the suggestion ID itself) belongs to, or ErrNotFound.
	ResolveCorrelation(ctx context.Context, correlationID string) (feedback.Link, error)
	// RecordFeedback appends a feedback event; a duplicate is inserted=false.
	RecordFeedback(ctx context.Context, e feedback.Event) (inserted bool, err error)
	// ForgetFeedback removes a recorded event so it can be applied again.
	ForgetFeedback(ctx context.Context, e feedback.Event) error

	Summary(ctx context.Context) (Summary, error)
	Close() error
}
// #endregion interface

// #region time-format
// tsLayout is fixed-width so stored timestamps sort lexically in time order.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTS(t time.Time) string {
	return t.UTC().Format(tsLayout)
}

func parseTS(s string) time.Time {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
// #endregion time-format
