package catalog

import (
	"errors"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// ErrInvalidCatalog is returned when a catalog fails schema or semantic checks.
var ErrInvalidCatalog = errors.New("invalid catalog")

// #region category

// Category is the kind of intervention an entry represents.
type Category string

const (
	CategoryCoaching Category = "coaching_message"
	CategoryLighting Category = "lighting"
	CategoryAudio    Category = "audio"
	CategoryRobotCue Category = "robot_cue"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCoaching, CategoryLighting, CategoryAudio, CategoryRobotCue:
		return true
	}
	return false
}

// #endregion category

// #region spec

// Spec is one catalog entry. Specs are static configuration: the engine
// reads them but never mutates them.
type Spec struct {
	ID       string     `json:"id"`
	Category Category   `json:"category"`
	Behavior string     `json:"behavior,omitempty"` // empty = applies to every behaviour
	When     *Predicate `json:"when,omitempty"`     // nil = always applicable
	Message  string     `json:"message,omitempty"`
	Targets  []Target   `json:"targets"`
}

// Applies reports whether the spec is in scope for behaviorID and its
// predicate holds in ctx.
func (s Spec) Applies(behaviorID string, ctx EvalContext) bool {
	if s.Behavior != "" && s.Behavior != behaviorID {
		return false
	}
	return s.When.Eval(ctx)
}

// Target is one device-class command emitted when the spec is selected.
type Target struct {
	Device  string           `json:"device"`
	Payload map[string]Param `json:"payload"`
}

// Param is one payload field. Exactly one of Value, From, Text is set.
//
//	value: literal copied as-is
//	from:  dimension mapped linearly from its range into Range (Inverse flips it)
//	text:  text/template rendered over the state and streak
type Param struct {
	Value   any               `json:"value,omitempty"`
	From    signals.Dimension `json:"from,omitempty"`
	Range   []float64         `json:"range,omitempty"`
	Inverse bool              `json:"inverse,omitempty"`
	Round   *int              `json:"round,omitempty"` // decimal places
	Text    string            `json:"text,omitempty"`
}

// #endregion spec

// #region predicate

// Predicate is a tagged applicability condition: exactly one field is set.
// A nil predicate is always true.
type Predicate struct {
	All     []*Predicate      `json:"all,omitempty"`
	Any     []*Predicate      `json:"any,omitempty"`
	Not     *Predicate        `json:"not,omitempty"`
	Range   *RangeCond        `json:"range,omitempty"`
	Known   signals.Dimension `json:"known,omitempty"`
	Unknown signals.Dimension `json:"unknown,omitempty"`
	Streak  *StreakCond       `json:"streak,omitempty"`
	Always  bool              `json:"always,omitempty"`
}

// RangeCond holds when the dimension is known and Min <= value <= Max.
type RangeCond struct {
	Dim           signals.Dimension `json:"dim"`
	Min           *float64          `json:"min,omitempty"`
	Max           *float64          `json:"max,omitempty"`
	MinConfidence float64           `json:"min_confidence,omitempty"`
}

// StreakCond holds on the behaviour's current streak.
type StreakCond struct {
	MinLength *int   `json:"min_length,omitempty"`
	MaxLength *int   `json:"max_length,omitempty"`
	Tier      string `json:"tier,omitempty"` // none | short | established
}

// EvalContext is what predicates and templates see.
type EvalContext struct {
	State  state.Snapshot
	Streak streak.State
}

// #endregion predicate

// #region catalog

// Catalog is an ordered set of specs. Order is significant: it is the final
// tie-breaker during selection.
type Catalog struct {
	Version       int    `json:"version"`
	Interventions []Spec `json:"interventions"`

	index map[string]int
}

// Get returns the spec with the given ID.
func (c *Catalog) Get(id string) (Spec, bool) {
	if c == nil {
		return Spec{}, false
	}
	if c.index == nil {
		c.buildIndex()
	}
	i, ok := c.index[id]
	if !ok {
		return Spec{}, false
	}
	return c.Interventions[i], true
}

// Position returns the catalog order of id, or -1.
func (c *Catalog) Position(id string) int {
	if c == nil {
		return -1
	}
	if c.index == nil {
		c.buildIndex()
	}
	if i, ok := c.index[id]; ok {
		return i
	}
	return -1
}

// Applicable returns the specs in catalog order that apply to behaviorID.
func (c *Catalog) Applicable(behaviorID string, ctx EvalContext) []Spec {
	if c == nil {
		return nil
	}
	var out []Spec
	for _, s := range c.Interventions {
		if s.Applies(behaviorID, ctx) {
			out = append(out, s)
		}
	}
	return out
}

func (c *Catalog) buildIndex() {
	c.index = make(map[string]int, len(c.Interventions))
	for i, s := range c.Interventions {
		c.index[s.ID] = i
	}
}

// #endregion catalog
