package signals

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// #region dimension

// Dimension names one axis of the behavioural state.
type Dimension string

const (
	Mood   Dimension = "mood"
	Energy Dimension = "energy"
	Focus  Dimension = "focus"
)

// Dimensions lists every tracked dimension in canonical order.
var Dimensions = []Dimension{Mood, Energy, Focus}

// Valid reports whether d is a known dimension.
func (d Dimension) Valid() bool {
	switch d {
	case Mood, Energy, Focus:
		return true
	}
	return false
}

// Range returns the closed value range for d.
// Mood is signed (-1..1); energy and focus are magnitudes (0..1).
func (d Dimension) Range() (lo, hi float64) {
	if d == Mood {
		return -1, 1
	}
	return 0, 1
}

// #endregion dimension

// #region source

// Source records where a signal came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceInferred Source = "inferred"
)

// Valid reports whether s is a known source.
func (s Source) Valid() bool {
	return s == SourceManual || s == SourceInferred
}

// #endregion source

// #region record

// Record is a single immutable observation of one dimension.
type Record struct {
	Timestamp  time.Time `json:"timestamp"`
	Source     Source    `json:"source"`
	Dimension  Dimension `json:"dimension"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
}

// Key returns the identity used for duplicate suppression: two records with the
// same timestamp and content are the same fact.
func (r Record) Key() string {
	return r.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + string(r.Source) + "|" + string(r.Dimension) +
		"|" + strconv.FormatFloat(r.Value, 'g', -1, 64) + "|" + strconv.FormatFloat(r.Confidence, 'g', -1, 64)
}

// #endregion record

// #region errors

// ErrInvalidSignal is returned for records rejected at the ingestion boundary.
var ErrInvalidSignal = errors.New("invalid signal")

// Validate checks a record against the data model. Nothing should be stored for
// a record that fails validation.
func Validate(r Record) error {
	if r.Timestamp.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidSignal)
	}
	if !r.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidSignal, r.Source)
	}
	if !r.Dimension.Valid() {
		return fmt.Errorf("%w: unknown dimension %q", ErrInvalidSignal, r.Dimension)
	}
	if math.IsNaN(r.Value) || math.IsInf(r.Value, 0) {
		return fmt.Errorf("%w: %s value is not finite", ErrInvalidSignal, r.Dimension)
	}
	lo, hi := r.Dimension.Range()
	if r.Value < lo || r.Value > hi {
		return fmt.Errorf("%w: %s value %.3f outside [%.0f, %.0f]", ErrInvalidSignal, r.Dimension, r.Value, lo, hi)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %.3f outside [0, 1]", ErrInvalidSignal, r.Confidence)
	}
	return nil
}

// #endregion errors

// #region inferrer-interface

// Hint is one (dimension, value, confidence) triple produced by text inference.
type Hint struct {
	Dimension  Dimension `json:"dimension"`
	Value      float64   `json:"value"`
	Confidence float64   `json:"confidence"`
}

// Inferrer abstracts the text-to-state classifier so the engine can be tested
// without the inference service.
type Inferrer interface {
	Infer(ctx context.Context, text string) ([]Hint, error)
}

// #endregion inferrer-interface

// #region config

// ProducerConfig holds tuning knobs for turning untrusted hints into records.
type ProducerConfig struct {
	MinHintConfidence float64 // hints below this are dropped
	MaxHintConfidence float64 // inferred confidence is capped here
}

// DefaultProducerConfig returns sensible defaults.
func DefaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		MinHintConfidence: 0.05,
		MaxHintConfidence: 0.9,
	}
}

// #endregion config

// #region check-in

// CheckIn is a categorical self-report as collected by the mood check-in form.
type CheckIn struct {
	Mood   string `json:"mood"`   // "low" | "neutral" | "good"
	Energy string `json:"energy"` // "low" | "medium" | "high"
	Focus  string `json:"focus"`  // "drifting" | "ok" | "locked-in"
}

// #endregion check-in
