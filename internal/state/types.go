package state

import (
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region estimate
// Estimate is the decayed, trust-weighted reading of one dimension.
// Known is false when no signal contributed; Value is then 0 and must not be
// read as a neutral reading.
type Estimate struct {
	Value      float64 `json:"value"`
	Known      bool    `json:"known"`
	Confidence float64 `json:"confidence"`
	Weight     float64 `json:"weight"`  // sum of base (untrusted) weights
	Samples    int     `json:"samples"` // distinct contributing records
}
// #endregion estimate

// #region snapshot
// Snapshot is the engine's view of mood, energy and focus at one instant.
type Snapshot struct {
	Timestamp  time.Time `json:"timestamp"`
	Mood       Estimate  `json:"mood"`
	Energy     Estimate  `json:"energy"`
	Focus      Estimate  `json:"focus"`
	Confidence float64   `json:"confidence"`
}

// Get returns the estimate for dimension d. Unknown dimensions yield a zero
// (unknown) estimate.
func (s Snapshot) Get(d signals.Dimension) Estimate {
	switch d {
	case signals.Mood:
		return s.Mood
	case signals.Energy:
		return s.Energy
	case signals.Focus:
		return s.Focus
	}
	return Estimate{}
}

func (s *Snapshot) set(d signals.Dimension, e Estimate) {
	switch d {
	case signals.Mood:
		s.Mood = e
	case signals.Energy:
		s.Energy = e
	case signals.Focus:
		s.Focus = e
	}
}

// Known reports whether at least one dimension has a reading.
func (s Snapshot) Known() bool {
	return s.Mood.Known || s.Energy.Known || s.Focus.Known
}
// #endregion snapshot

// #region config
// Config holds decay and trust parameters for the estimator.
type Config struct {
	HalfLife      time.Duration // weight halves every HalfLife (default 72h)
	Lookback      time.Duration // signals older than this contribute nothing (default 14d)
	ManualTrust   float64       // trust multiplier for manual signals (default 1.0)
	InferredTrust float64       // trust multiplier for inferred signals (default 0.5)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HalfLife:      72 * time.Hour,
		Lookback:      14 * 24 * time.Hour,
		ManualTrust:   1.0,
		InferredTrust: 0.5,
	}
}

// Trust returns the multiplier applied to signals from src.
func (c Config) Trust(src signals.Source) float64 {
	if src == signals.SourceManual {
		return c.ManualTrust
	}
	return c.InferredTrust
}
// #endregion config
