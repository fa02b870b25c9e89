package selector

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region selector
// Selector picks one intervention per behaviour with epsilon-greedy
// exploration over learned efficacy. Safe for concurrent use; the random
// source is shared and serialized.
type Selector struct {
	cfg Config

	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a Selector whose exploration draws are fully determined by seed.
func New(cfg Config, seed uint64) *Selector {
	return &Selector{cfg: cfg, rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Config returns the selector configuration.
func (s *Selector) Config() Config {
	return s.cfg
}
// #endregion selector

// #region bucket
// Bucket discretizes state and streak into the context key that conditions
// efficacy, e.g. "mood:low|energy:unk|focus:mid|streak:short".
func Bucket(snap state.Snapshot, streakLength int) string {
	return fmt.Sprintf("mood:%s|energy:%s|focus:%s|streak:%s",
		level(signals.Mood, snap.Mood),
		level(signals.Energy, snap.Energy),
		level(signals.Focus, snap.Focus),
		streak.Tier(streakLength))
}

func level(d signals.Dimension, e state.Estimate) string {
	if !e.Known {
		return "unk"
	}
	lo, hi := -0.2, 0.2
	if d != signals.Mood {
		lo, hi = 0.35, 0.65
	}
	switch {
	case e.Value <= lo:
		return "low"
	case e.Value >= hi:
		return "high"
	}
	return "mid"
}
// #endregion bucket

// #region select
// Select runs filter → bucket → cooldown → explore/exploit. A nil Spec in
// the result means no intervention is due.
func (s *Selector) Select(in Input) Result {
	ctx := catalog.EvalContext{State: in.Snapshot, Streak: in.Streak}
	bucket := Bucket(in.Snapshot, in.Streak.CurrentLength)
	res := Result{Bucket: bucket}

	applicable := in.Catalog.Applicable(in.BehaviorID, ctx)
	if len(applicable) == 0 {
		res.Reason = "no applicable intervention"
		return res
	}

	// Past selections for this behaviour.
	exposures := map[string]int{}
	lastAt := map[string]time.Time{}
	for _, h := range in.History {
		if h.BehaviorID != in.BehaviorID || h.At.After(in.Now) {
			continue
		}
		if in.Now.Sub(h.At) <= s.cfg.ExposureWindow {
			exposures[h.InterventionID]++
		}
		if h.At.After(lastAt[h.InterventionID]) {
			lastAt[h.InterventionID] = h.At
		}
	}

	cands := make([]Candidate, len(applicable))
	var sampleSum int
	for i, spec := range applicable {
		rec := feedback.Neutral(spec.ID, bucket)
		if in.Efficacy != nil {
			if r, ok := in.Efficacy(spec.ID, bucket); ok {
				rec = r
			}
		}
		c := Candidate{
			InterventionID: spec.ID,
			Score:          rec.Score,
			Samples:        rec.SampleCount,
			Exposures:      exposures[spec.ID],
		}
		if last, ok := lastAt[spec.ID]; ok && in.Now.Sub(last) < s.cfg.Cooldown {
			c.CoolingDown = true
		}
		cands[i] = c
		sampleSum += rec.SampleCount
	}
	res.Candidates = cands

	var survivors []int
	for i, c := range cands {
		if !c.CoolingDown {
			survivors = append(survivors, i)
		}
	}
	switch {
	case len(survivors) > 0:
	case len(cands) == 1:
		// A sole applicable candidate is never cooled down.
		res.CooldownWaived = true
		survivors = []int{0}
	default:
		res.Reason = fmt.Sprintf("all %d applicable interventions cooling down", len(cands))
		return res
	}

	eps := s.cfg.Epsilon
	if float64(sampleSum)/float64(len(cands)) < s.cfg.LowSampleThreshold && s.cfg.LowSampleMultiplier > 0 {
		eps *= s.cfg.LowSampleMultiplier
	}
	if s.cfg.MaxEpsilon > 0 && eps > s.cfg.MaxEpsilon {
		eps = s.cfg.MaxEpsilon
	}
	res.Epsilon = eps

	pick := -1
	if eps > 0 && len(survivors) > 1 {
		s.mu.Lock()
		if s.rng.Float64() < eps {
			pick = survivors[s.rng.IntN(len(survivors))]
			res.Explored = true
		}
		s.mu.Unlock()
	}
	if pick < 0 {
		pick = exploit(cands, survivors)
	}

	spec := applicable[pick]
	res.Spec = &spec
	res.InterventionID = spec.ID
	if res.Explored {
		res.Reason = fmt.Sprintf("explored among %d candidates", len(survivors))
	} else {
		res.Reason = fmt.Sprintf("best score %.3f among %d candidates", cands[pick].Score, len(survivors))
	}
	return res
}

// exploit returns the survivor with the highest score; ties go to fewer
// exposures, then catalog order (candidates are already in catalog order).
func exploit(cands []Candidate, survivors []int) int {
	order := append([]int(nil), survivors...)
	sort.SliceStable(order, func(a, b int) bool {
		ca, cb := cands[order[a]], cands[order[b]]
		if ca.Score != cb.Score {
			return ca.Score > cb.Score
		}
		if ca.Exposures != cb.Exposures {
			return ca.Exposures < cb.Exposures
		}
		return order[a] < order[b]
	})
	return order[0]
}
// #endregion select
