package actuation

import (
	"bytes"
	"fmt"
	"math"
	"sort"
	"sync"
	"text/template"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region compiler
// Compiler expands a selected spec into concrete commands.
type Compiler struct {
	newID     func() string
	templates sync.Map // template text -> *template.Template
}

// NewCompiler creates a Compiler that mints UUID correlation IDs.
func NewCompiler() *Compiler {
	return &Compiler{newID: func() string { return uuid.New().String() }}
}

// templateData is what payload text templates see.
type templateData struct {
	Message    string
	BehaviorID string
	State      state.Snapshot
	Streak     streak.State
	Tier       string
}
// #endregion compiler

// #region compile
// Compile emits one command per target in declaration order. A target whose
// params cannot be resolved (a dimension bound with "from" is unknown, or a
// template fails) is skipped on its own; the rest still compile.
func (c *Compiler) Compile(spec catalog.Spec, snap state.Snapshot, meta Meta) ([]Command, []Skipped) {
	data := templateData{
		Message:    spec.Message,
		BehaviorID: meta.BehaviorID,
		State:      snap,
		Streak:     meta.Streak,
		Tier:       streak.Tier(meta.Streak.CurrentLength),
	}

	var cmds []Command
	var skipped []Skipped
	for _, t := range spec.Targets {
		payload, skip := c.resolve(t, snap, data)
		if skip != nil {
			skipped = append(skipped, *skip)
			continue
		}
		cmds = append(cmds, Command{
			CorrelationID:  c.newID(),
			SuggestionID:   meta.SuggestionID,
			InterventionID: spec.ID,
			BehaviorID:     meta.BehaviorID,
			Category:       spec.Category,
			Device:         t.Device,
			Payload:        payload,
			IssuedAt:       meta.IssuedAt.UTC(),
		})
	}
	return cmds, skipped
}

func (c *Compiler) resolve(t catalog.Target, snap state.Snapshot, data templateData) (map[string]any, *Skipped) {
	// Sorted so a skip reason is stable across runs.
	names := make([]string, 0, len(t.Payload))
	for name := range t.Payload {
		names = append(names, name)
	}
	sort.Strings(names)

	payload := make(map[string]any, len(names))
	for _, name := range names {
		p := t.Payload[name]
		switch {
		case p.From != "":
			e := snap.Get(p.From)
			if !e.Known {
				return nil, &Skipped{Device: t.Device, Param: name, Reason: fmt.Sprintf("%s unknown", p.From)}
			}
			payload[name] = mapRange(p, e.Value)
		case p.Text != "":
			out, err := c.render(p.Text, data)
			if err != nil {
				return nil, &Skipped{Device: t.Device, Param: name, Reason: err.Error()}
			}
			payload[name] = out
		default:
			payload[name] = p.Value
		}
	}
	return payload, nil
}
// #endregion compile

// #region mapping
// mapRange maps v from the dimension's range into p.Range.
func mapRange(p catalog.Param, v float64) any {
	dlo, dhi := p.From.Range()
	frac := (v - dlo) / (dhi - dlo)
	frac = math.Max(0, math.Min(1, frac))
	if p.Inverse {
		frac = 1 - frac
	}
	lo, hi := p.Range[0], p.Range[1]
	out := lo + frac*(hi-lo)
	if p.Round == nil {
		return out
	}
	if *p.Round == 0 {
		return int(math.Round(out))
	}
	scale := math.Pow(10, float64(*p.Round))
	return math.Round(out*scale) / scale
}
// #endregion mapping

// #region templates
func (c *Compiler) render(text string, data templateData) (string, error) {
	var tmpl *template.Template
	if cached, ok := c.templates.Load(text); ok {
		tmpl = cached.(*template.Template)
	} else {
		parsed, err := template.New("payload").Option("missingkey=error").Parse(text)
		if err != nil {
			return "", fmt.Errorf("parse template: %w", err)
		}
		c.templates.Store(text, parsed)
		tmpl = parsed
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return buf.String(), nil
}
// #endregion templates
