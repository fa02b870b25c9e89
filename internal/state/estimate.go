package state

import (
	"math"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
)

// #region estimate-function
// Compute is a pure function that fuses recent signals into a Snapshot at now.
//
// Per dimension, each signal inside [now-Lookback, now] gets a base weight
// w = confidence * 2^(-age/HalfLife) and a trusted weight tw = trust(source) * w.
// Value = Σ tw·v / Σ w, confidence = min(1, Σ tw). Records with identical
// identity count once. Empty input yields an all-unknown snapshot.
func Compute(records []signals.Record, now time.Time, cfg Config) Snapshot {
	snap := Snapshot{Timestamp: now.UTC()}

	type acc struct {
		weight  float64
		trusted float64
		sum     float64
		samples int
	}
	accs := make(map[signals.Dimension]*acc, len(signals.Dimensions))
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		if !r.Dimension.Valid() {
			continue
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}

		w := decayWeight(r, now, cfg)
		if w <= 0 {
			continue
		}
		a := accs[r.Dimension]
		if a == nil {
			a = &acc{}
			accs[r.Dimension] = a
		}
		tw := cfg.Trust(r.Source) * w
		a.weight += w
		a.trusted += tw
		a.sum += tw * r.Value
		a.samples++
	}

	var confSum float64
	for _, d := range signals.Dimensions {
		a := accs[d]
		if a == nil || a.weight == 0 {
			continue
		}
		e := Estimate{
			Value:      a.sum / a.weight,
			Known:      true,
			Confidence: math.Min(1, a.trusted),
			Weight:     a.weight,
			Samples:    a.samples,
		}
		snap.set(d, e)
		confSum += e.Confidence
	}
	snap.Confidence = confSum / float64(len(signals.Dimensions))
	return snap
}
// #endregion estimate-function

// #region decay
// decayWeight returns the base weight of r at now: zero for future signals,
// signals past the lookback, or non-positive confidence.
func decayWeight(r signals.Record, now time.Time, cfg Config) float64 {
	age := now.Sub(r.Timestamp)
	if age < 0 || (cfg.Lookback > 0 && age > cfg.Lookback) {
		return 0
	}
	if r.Confidence <= 0 {
		return 0
	}
	if cfg.HalfLife <= 0 {
		return r.Confidence
	}
	return r.Confidence * math.Exp2(-float64(age)/float64(cfg.HalfLife))
}
// #endregion decay
