package streak

import "time"

// #region tracker
// Tracker applies the streak state machine. It holds no state of its own;
// persistence and per-key serialization belong to the store.
type Tracker struct {
	cfg Config
}

// NewTracker creates a Tracker, filling zero config fields with defaults.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.Grace <= 0 {
		cfg.Grace = def.Grace
	}
	if cfg.Period <= 0 {
		cfg.Period = def.Period
	}
	if cfg.Location == nil {
		cfg.Location = def.Location
	}
	return &Tracker{cfg: cfg}
}

// Config returns the effective configuration.
func (t *Tracker) Config() Config {
	return t.cfg
}
// #endregion tracker

// #region update
// Update applies one action to prev and returns the next state. It is pure.
// Actions at or before prev.LastActionAt are duplicates and leave prev untouched.
func (t *Tracker) Update(prev State, a Action) (State, Transition) {
	if prev.BehaviorID == "" {
		prev.BehaviorID = a.BehaviorID
	}
	if prev.Status == "" {
		prev.Status = StatusBroken
	}
	if !prev.LastActionAt.IsZero() && !a.At.After(prev.LastActionAt) {
		return prev, TransitionDuplicate
	}

	next := prev
	next.LastActionAt = a.At
	if !a.Qualifies {
		return next, TransitionNoChange
	}

	var tr Transition
	switch {
	case next.CurrentLength == 0 || next.LastQualifyingAt.IsZero():
		next.CurrentLength = 1
		tr = TransitionStarted
	case a.At.Sub(next.LastQualifyingAt) > t.cfg.Grace:
		next.Breaks++
		next.LastBreakAt = next.LastQualifyingAt.Add(t.cfg.Grace)
		next.LastBrokenLength = next.CurrentLength
		next.CurrentLength = 1
		tr = TransitionBroken
	case t.samePeriod(a.At, next.LastQualifyingAt):
		tr = TransitionRefreshed
	default:
		next.CurrentLength++
		tr = TransitionExtended
	}

	next.Status = StatusActive
	next.LastQualifyingAt = a.At
	if next.CurrentLength > next.BestLength {
		next.BestLength = next.CurrentLength
	}
	return next, tr
}
// #endregion update

// #region expire
// Expire returns the read-time view of s at now: an active streak whose grace
// window has elapsed reads as broken with length 0. The second result reports
// whether the view differs from s. Break bookkeeping is recorded by the next
// qualifying Update, not here.
func (t *Tracker) Expire(s State, now time.Time) (State, bool) {
	if s.Status != StatusActive || s.CurrentLength == 0 || s.LastQualifyingAt.IsZero() {
		return s, false
	}
	if now.Sub(s.LastQualifyingAt) <= t.cfg.Grace {
		return s, false
	}
	s.Status = StatusBroken
	s.CurrentLength = 0
	return s, true
}
// #endregion expire

// #region period
func (t *Tracker) samePeriod(a, b time.Time) bool {
	if t.cfg.Period == 24*time.Hour {
		ay, am, ad := a.In(t.cfg.Location).Date()
		by, bm, bd := b.In(t.cfg.Location).Date()
		return ay == by && am == bm && ad == bd
	}
	return a.Truncate(t.cfg.Period).Equal(b.Truncate(t.cfg.Period))
}
// #endregion period
