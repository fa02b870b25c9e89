package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// #region producer

// Producer turns raw input (check-ins, free text) into signal records.
type Producer struct {
	inferrer Inferrer
	fallback Inferrer
	config   ProducerConfig
}

// NewProducer creates a Producer. inferrer may be nil, in which case text goes
// straight to fallback; fallback may be nil too (text then yields no records).
func NewProducer(inferrer, fallback Inferrer, config ProducerConfig) *Producer {
	return &Producer{inferrer: inferrer, fallback: fallback, config: config}
}

// #endregion producer

// #region from-text

// ErrNoInferrer is returned when text arrives but no inferrer is configured.
var ErrNoInferrer = errors.New("no text inferrer configured")

// FromText infers state hints from text and converts them into inferred records
// stamped at the given time. When the primary inferrer fails the fallback is
// tried before giving up.
func (p *Producer) FromText(ctx context.Context, text string, at time.Time) ([]Record, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInvalidSignal)
	}

	var hints []Hint
	var err error
	switch {
	case p.inferrer != nil:
		hints, err = p.inferrer.Infer(ctx, text)
		if err != nil && p.fallback != nil {
			hints, err = p.fallback.Infer(ctx, text)
		}
	case p.fallback != nil:
		hints, err = p.fallback.Infer(ctx, text)
	default:
		return nil, ErrNoInferrer
	}
	if err != nil {
		return nil, fmt.Errorf("infer: %w", err)
	}
	return p.FromHints(hints, at), nil
}

// #endregion from-text

// #region from-hints

// FromHints converts untrusted hints into inferred records. Values are clamped
// into the dimension range and confidence is capped; hints with an unknown
// dimension, a non-finite value, or too little confidence are dropped.
func (p *Producer) FromHints(hints []Hint, at time.Time) []Record {
	out := make([]Record, 0, len(hints))
	for _, h := range hints {
		if !h.Dimension.Valid() || math.IsNaN(h.Value) || math.IsInf(h.Value, 0) || math.IsNaN(h.Confidence) {
			continue
		}
		conf := clampRange(h.Confidence, 0, p.config.MaxHintConfidence)
		if conf < p.config.MinHintConfidence {
			continue
		}
		lo, hi := h.Dimension.Range()
		out = append(out, Record{
			Timestamp:  at.UTC(),
			Source:     SourceInferred,
			Dimension:  h.Dimension,
			Value:      clampRange(h.Value, lo, hi),
			Confidence: conf,
		})
	}
	return out
}

// #endregion from-hints

// #region from-check-in

var moodLabels = map[string]float64{"low": -0.6, "neutral": 0, "good": 0.6}
var energyLabels = map[string]float64{"low": 0.2, "medium": 0.5, "high": 0.8}
var focusLabels = map[string]float64{"drifting": 0.2, "ok": 0.5, "locked-in": 0.9}

// FromCheckIn maps a categorical check-in onto manual records with full
// confidence. Empty fields are skipped; unrecognised labels are rejected.
func FromCheckIn(c CheckIn, at time.Time) ([]Record, error) {
	type field struct {
		dim    Dimension
		label  string
		labels map[string]float64
	}
	fields := []field{
		{Mood, c.Mood, moodLabels},
		{Energy, c.Energy, energyLabels},
		{Focus, c.Focus, focusLabels},
	}

	var out []Record
	for _, f := range fields {
		label := strings.ToLower(strings.TrimSpace(f.label))
		if label == "" {
			continue
		}
		v, ok := f.labels[label]
		if !ok {
			return nil, fmt.Errorf("%w: unknown %s label %q", ErrInvalidSignal, f.dim, f.label)
		}
		out = append(out, Record{
			Timestamp:  at.UTC(),
			Source:     SourceManual,
			Dimension:  f.dim,
			Value:      v,
			Confidence: 1,
		})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty check-in", ErrInvalidSignal)
	}
	return out, nil
}

// #endregion from-check-in

// #region helpers

// clampRange restricts v to [lo, hi].
func clampRange(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// #endregion helpers
