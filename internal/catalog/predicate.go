package catalog

import (
	"fmt"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region operators

type operator struct {
	eval     func(p *Predicate, ctx EvalContext) bool
	validate func(p *Predicate) error
}

// operators is the single evaluation table for every predicate tag.
var operators map[string]operator

func init() {
	operators = map[string]operator{
		"all": {
			eval: func(p *Predicate, ctx EvalContext) bool {
				for _, c := range p.All {
					if !c.Eval(ctx) {
						return false
					}
				}
				return true
			},
			validate: func(p *Predicate) error { return validateChildren("all", p.All) },
		},
		"any": {
			eval: func(p *Predicate, ctx EvalContext) bool {
				for _, c := range p.Any {
					if c.Eval(ctx) {
						return true
					}
				}
				return false
			},
			validate: func(p *Predicate) error { return validateChildren("any", p.Any) },
		},
		"not": {
			eval:     func(p *Predicate, ctx EvalContext) bool { return !p.Not.Eval(ctx) },
			validate: func(p *Predicate) error { return p.Not.validate() },
		},
		"range": {
			eval:     evalRange,
			validate: validateRange,
		},
		"known": {
			eval: func(p *Predicate, ctx EvalContext) bool { return ctx.State.Get(p.Known).Known },
			validate: func(p *Predicate) error {
				if !p.Known.Valid() {
					return fmt.Errorf("known: unknown dimension %q", p.Known)
				}
				return nil
			},
		},
		"unknown": {
			eval: func(p *Predicate, ctx EvalContext) bool { return !ctx.State.Get(p.Unknown).Known },
			validate: func(p *Predicate) error {
				if !p.Unknown.Valid() {
					return fmt.Errorf("unknown: unknown dimension %q", p.Unknown)
				}
				return nil
			},
		},
		"streak": {
			eval:     evalStreak,
			validate: validateStreak,
		},
		"always": {
			eval:     func(*Predicate, EvalContext) bool { return true },
			validate: func(*Predicate) error { return nil },
		},
	}
}

// #endregion operators

// #region eval

// Eval evaluates the predicate. A nil predicate is true; a predicate with no
// recognised tag is false.
func (p *Predicate) Eval(ctx EvalContext) bool {
	if p == nil {
		return true
	}
	op, ok := operators[p.tag()]
	if !ok {
		return false
	}
	return op.eval(p, ctx)
}

// tag returns the name of the single set field, "" if none, or "multiple".
func (p *Predicate) tag() string {
	var tags []string
	if p.All != nil {
		tags = append(tags, "all")
	}
	if p.Any != nil {
		tags = append(tags, "any")
	}
	if p.Not != nil {
		tags = append(tags, "not")
	}
	if p.Range != nil {
		tags = append(tags, "range")
	}
	if p.Known != "" {
		tags = append(tags, "known")
	}
	if p.Unknown != "" {
		tags = append(tags, "unknown")
	}
	if p.Streak != nil {
		tags = append(tags, "streak")
	}
	if p.Always {
		tags = append(tags, "always")
	}
	switch len(tags) {
	case 0:
		return ""
	case 1:
		return tags[0]
	}
	return "multiple"
}

func evalRange(p *Predicate, ctx EvalContext) bool {
	r := p.Range
	e := ctx.State.Get(r.Dim)
	if !e.Known || e.Confidence < r.MinConfidence {
		return false
	}
	if r.Min != nil && e.Value < *r.Min {
		return false
	}
	if r.Max != nil && e.Value > *r.Max {
		return false
	}
	return true
}

func evalStreak(p *Predicate, ctx EvalContext) bool {
	s := p.Streak
	n := ctx.Streak.CurrentLength
	if s.MinLength != nil && n < *s.MinLength {
		return false
	}
	if s.MaxLength != nil && n > *s.MaxLength {
		return false
	}
	if s.Tier != "" && streak.Tier(n) != s.Tier {
		return false
	}
	return true
}

// #endregion eval

// #region validate

func (p *Predicate) validate() error {
	if p == nil {
		return nil
	}
	tag := p.tag()
	op, ok := operators[tag]
	if !ok {
		if tag == "multiple" {
			return fmt.Errorf("predicate sets more than one operator")
		}
		return fmt.Errorf("predicate sets no operator")
	}
	return op.validate(p)
}

func validateChildren(name string, children []*Predicate) error {
	if len(children) == 0 {
		return fmt.Errorf("%s: needs at least one condition", name)
	}
	for i, c := range children {
		if c == nil {
			return fmt.Errorf("%s[%d]: empty condition", name, i)
		}
		if err := c.validate(); err != nil {
			return fmt.Errorf("%s[%d]: %w", name, i, err)
		}
	}
	return nil
}

func validateRange(p *Predicate) error {
	r := p.Range
	if !r.Dim.Valid() {
		return fmt.Errorf("range: unknown dimension %q", r.Dim)
	}
	if r.Min == nil && r.Max == nil {
		return fmt.Errorf("range %s: needs min or max", r.Dim)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("range %s: min %.3f > max %.3f", r.Dim, *r.Min, *r.Max)
	}
	return nil
}

func validateStreak(p *Predicate) error {
	s := p.Streak
	switch s.Tier {
	case "", "none", "short", "established":
	default:
		return fmt.Errorf("streak: unknown tier %q", s.Tier)
	}
	if s.MinLength != nil && s.MaxLength != nil && *s.MinLength > *s.MaxLength {
		return fmt.Errorf("streak: min_length > max_length")
	}
	return nil
}

// #endregion validate
