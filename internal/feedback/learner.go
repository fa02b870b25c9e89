package feedback

import (
	"fmt"
	"math"
)

// #region learner
// Learner turns feedback events into efficacy updates. It is pure: storage,
// correlation lookup and duplicate suppression are the caller's concern.
type Learner struct {
	cfg Config
}

// NewLearner creates a Learner. Missing rewards fall back to the defaults.
func NewLearner(cfg Config) *Learner {
	def := DefaultConfig()
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = def.Alpha
	}
	rewards := make(map[Outcome]float64, len(def.Rewards))
	for o, r := range def.Rewards {
		rewards[o] = r
	}
	for o, r := range cfg.Rewards {
		rewards[o] = math.Max(0, math.Min(1, r))
	}
	cfg.Rewards = rewards
	return &Learner{cfg: cfg}
}

// Reward returns the reward for outcome.
func (l *Learner) Reward(o Outcome) (float64, error) {
	r, ok := l.cfg.Rewards[o]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownOutcome, o)
	}
	return r, nil
}
// #endregion learner

// #region apply
// Apply folds one event into prior: score' = score + alpha*(reward - score).
// prior must belong to link's (intervention, bucket); a zero prior is
// replaced with the neutral one.
func (l *Learner) Apply(ev Event, link Link, prior Record) (Record, error) {
	reward, err := l.Reward(ev.Outcome)
	if err != nil {
		return prior, err
	}
	if prior.InterventionID == "" {
		v := prior.Version
		prior = Neutral(link.InterventionID, link.Bucket)
		prior.Version = v
	}

	next := prior
	next.Score = prior.Score + l.cfg.Alpha*(reward-prior.Score)
	next.Score = math.Max(0, math.Min(1, next.Score))
	next.SampleCount = prior.SampleCount + 1
	next.UpdatedAt = ev.Timestamp.UTC()
	return next, nil
}
// #endregion apply
