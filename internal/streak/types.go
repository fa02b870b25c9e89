package streak

import "time"

// #region status
// Status is the coarse streak state.
type Status string

const (
	StatusActive Status = "active"
	StatusBroken Status = "broken"
)
// #endregion status

// #region state
// State is the consistency counter for one behaviour.
// Invariants: CurrentLength >= 0; BestLength never decreases.
type State struct {
	BehaviorID       string    `json:"behavior_id"`
	CurrentLength    int       `json:"current_length"`
	BestLength       int       `json:"best_length"`
	LastQualifyingAt time.Time `json:"last_qualifying_at"`
	LastActionAt     time.Time `json:"last_action_at"`
	Status           Status    `json:"status"`
	Breaks           int       `json:"breaks"`
	LastBreakAt      time.Time `json:"last_break_at,omitempty"`
	LastBrokenLength int       `json:"last_broken_length"`
	Version          int64     `json:"version"` // optimistic concurrency token, owned by the store
}

// Zero returns the empty streak for a behaviour that has never been seen.
func Zero(behaviorID string) State {
	return State{BehaviorID: behaviorID, Status: StatusBroken}
}
// #endregion state

// #region action
// Action is one logged user action against a behaviour.
type Action struct {
	BehaviorID string    `json:"behavior_id"`
	At         time.Time `json:"at"`
	Qualifies  bool      `json:"qualifies"`
}
// #endregion action

// #region transition
// Transition describes what an update did.
type Transition string

const (
	TransitionStarted   Transition = "started"   // first qualifying period
	TransitionExtended  Transition = "extended"  // new consecutive period
	TransitionRefreshed Transition = "refreshed" // another qualifying action in the same period
	TransitionBroken    Transition = "broken"    // grace elapsed; break recorded and streak re-opened at 1
	TransitionNoChange  Transition = "no_change" // non-qualifying action
	TransitionDuplicate Transition = "duplicate" // replayed or out-of-order action, ignored
)
// #endregion transition

// #region tier
// Tier buckets a streak length for conditioning suggestions:
// "none" (0), "short" (1-2), "established" (3+).
func Tier(length int) string {
	switch {
	case length <= 0:
		return "none"
	case length < 3:
		return "short"
	default:
		return "established"
	}
}
// #endregion tier

// #region config
// Config holds period and grace parameters.
type Config struct {
	Grace    time.Duration  // max gap between qualifying actions (default 36h)
	Period   time.Duration  // 24h means a calendar day in Location; otherwise fixed windows
	Location *time.Location // calendar for day periods (default UTC)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Grace:    36 * time.Hour,
		Period:   24 * time.Hour,
		Location: time.UTC,
	}
}
// #endregion config
