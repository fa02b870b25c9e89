package engine

import (
	"context"
	"errors"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/selector"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region errors
var (
	// ErrDataUnavailable wraps a store read that failed or timed out. Inside a
	// tick it degrades to a default instead of surfacing.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrUnresolvedFeedback is returned when a feedback correlation ID matches
	// no issued suggestion.
	ErrUnresolvedFeedback = errors.New("unresolved feedback")
)
// #endregion errors

// #region collaborators
// Dispatcher delivers compiled commands to devices. Delivery is fire and
// forget; the engine does not retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmds []actuation.Command) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, cmds []actuation.Command) error

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, cmds []actuation.Command) error {
	return f(ctx, cmds)
}

// Journal records tick decisions.
type Journal interface {
	Log(ctx context.Context, e logging.Entry) error
}
// #endregion collaborators

// #region config
// Config holds engine wiring parameters plus the configs of every stage.
type Config struct {
	Behaviors    []string      // behaviours evaluated on each tick
	StoreTimeout time.Duration // bound on every store call (default 2s)
	Parallelism  int           // max behaviours evaluated at once (default 4)
	Seed         uint64        // selector random seed; 0 seeds from the clock

	Estimator state.Config
	Streak    streak.Config
	Selector  selector.Config
	Feedback  feedback.Config
	Producer  signals.ProducerConfig
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Behaviors:    []string{"daily_action"},
		StoreTimeout: 2 * time.Second,
		Parallelism:  4,
		Estimator:    state.DefaultConfig(),
		Streak:       streak.DefaultConfig(),
		Selector:     selector.DefaultConfig(),
		Feedback:     feedback.DefaultConfig(),
		Producer:     signals.DefaultProducerConfig(),
	}
}
// #endregion config

// #region reports
// BehaviorReport is the outcome of one behaviour within a tick.
type BehaviorReport struct {
	BehaviorID     string              `json:"behavior_id"`
	Decision       logging.Decision    `json:"decision"`
	InterventionID string              `json:"intervention_id,omitempty"`
	SuggestionID   string              `json:"suggestion_id,omitempty"`
	Bucket         string              `json:"bucket"`
	Explored       bool                `json:"explored"`
	Reason         string              `json:"reason,omitempty"`
	Message        string              `json:"message,omitempty"`
	Streak         streak.State        `json:"streak"`
	Commands       []actuation.Command `json:"commands,omitempty"`
	Skipped        []actuation.Skipped `json:"skipped,omitempty"`
	Degraded       []string            `json:"degraded,omitempty"`
	DispatchError  string              `json:"dispatch_error,omitempty"`
	Error          string              `json:"error,omitempty"`
	Err            error               `json:"-"`
}

// TickReport is the outcome of one tick. Behaviour failures are reported
// per entry and never abort the others.
type TickReport struct {
	TickID    string           `json:"tick_id"`
	At        time.Time        `json:"at"`
	Snapshot  state.Snapshot   `json:"snapshot"`
	Degraded  []string         `json:"degraded,omitempty"`
	Behaviors []BehaviorReport `json:"behaviors"`
}

// Failed returns the behaviours whose evaluation failed.
func (r TickReport) Failed() []BehaviorReport {
	var out []BehaviorReport
	for _, b := range r.Behaviors {
		if b.Decision == logging.DecisionFailed {
			out = append(out, b)
		}
	}
	return out
}

// ActionResult is the outcome of logging one action.
type ActionResult struct {
	Streak     streak.State      `json:"streak"`
	Transition streak.Transition `json:"transition"`
	Tier       string            `json:"tier"`
}

// FeedbackResult is the outcome of applying one feedback event.
type FeedbackResult struct {
	Link      feedback.Link   `json:"link"`
	Efficacy  feedback.Record `json:"efficacy"`
	Duplicate bool            `json:"duplicate"`
}

// CoachView is the person-facing summary: current state, streak and the
// message the engine would give right now.
type CoachView struct {
	Snapshot       state.Snapshot `json:"snapshot"`
	Streak         streak.State   `json:"streak"`
	Tier           string         `json:"tier"`
	InterventionID string         `json:"intervention_id,omitempty"`
	Message        string         `json:"message"`
}
// #endregion reports
