package selector

import (
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region config
// Config holds explore/exploit and cooldown parameters.
type Config struct {
	Epsilon             float64       // exploration probability (default 0.1)
	LowSampleThreshold  float64       // mean samples below this boosts exploration (default 3)
	LowSampleMultiplier float64       // epsilon multiplier under low samples (default 2)
	MaxEpsilon          float64       // cap on boosted epsilon (default 0.5)
	Cooldown            time.Duration // per-behaviour repeat suppression (default 2h)
	ExposureWindow      time.Duration // window for exposure tie-breaks (default 7d)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Epsilon:             0.1,
		LowSampleThreshold:  3,
		LowSampleMultiplier: 2,
		MaxEpsilon:          0.5,
		Cooldown:            2 * time.Hour,
		ExposureWindow:      7 * 24 * time.Hour,
	}
}
// #endregion config

// #region input
// Lookup reads the efficacy of one intervention in one bucket. ok=false means
// no record exists; the selector then assumes the neutral prior.
type Lookup func(interventionID, bucket string) (rec feedback.Record, ok bool)

// Exposure is one past selection.
type Exposure struct {
	InterventionID string
	BehaviorID     string
	At             time.Time
}

// Input is everything one selection depends on.
type Input struct {
	Snapshot   state.Snapshot
	BehaviorID string
	Streak     streak.State
	Catalog    *catalog.Catalog
	Efficacy   Lookup
	History    []Exposure
	Now        time.Time
}
// #endregion input

// #region result
// Candidate is an applicable intervention with the numbers the choice used.
type Candidate struct {
	InterventionID string  `json:"intervention_id"`
	Score          float64 `json:"score"`
	Samples        int     `json:"samples"`
	Exposures      int     `json:"exposures"`
	CoolingDown    bool    `json:"cooling_down"`
}

// Result is the outcome of one selection. A nil Spec means no intervention
// applies, which is a valid result rather than an error.
type Result struct {
	Spec           *catalog.Spec `json:"-"`
	InterventionID string        `json:"intervention_id,omitempty"`
	Bucket         string        `json:"bucket"`
	Explored       bool          `json:"explored"`
	Epsilon        float64       `json:"epsilon"`
	CooldownWaived bool          `json:"cooldown_waived"`
	Candidates     []Candidate   `json:"candidates"`
	Reason         string        `json:"reason"`
}
// #endregion result
