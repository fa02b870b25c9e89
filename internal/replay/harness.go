// Package replay runs a recorded timeline of signals, actions, ticks and
// feedback through an engine on an in-memory store with a fake clock, and
// checks each step against its expected outcome.
package replay

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region types

// StepResult captures the outcome of one fixture step.
type StepResult struct {
	Index      int
	Kind       string
	At         time.Time
	Inserted   bool
	Tick       *engine.TickReport
	Action     *engine.ActionResult
	Feedback   *engine.FeedbackResult
	Err        error
	Mismatches []string
}

// OK reports whether the step matched its expectations.
func (r StepResult) OK() bool {
	return len(r.Mismatches) == 0
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	TotalSteps int
	Ticks      int
	Selections int
	Explored   int
	Feedback   int
	Failed     int // steps with at least one mismatch
	Efficacy   []feedback.Record
}

// clock is the fake time source shared with the engine.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// #endregion types

// #region replay

// Run replays f. dir resolves a relative catalog path; the built-in catalog
// is used when the fixture names none. The returned engine's store holds the
// final state of the run.
func Run(ctx context.Context, f *Fixture, dir string) ([]StepResult, *engine.Engine, error) {
	cat, err := fixtureCatalog(f, dir)
	if err != nil {
		return nil, nil, err
	}

	cfg := engine.DefaultConfig()
	cfg.Seed = f.Config.Seed
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	if f.Config.Epsilon != nil {
		cfg.Selector.Epsilon = *f.Config.Epsilon
	}
	if len(f.Config.Behaviors) > 0 {
		cfg.Behaviors = f.Config.Behaviors
	}

	clk := &clock{now: f.Start.UTC()}
	seq := 0
	var idMu sync.Mutex
	nextID := func() string {
		idMu.Lock()
		defer idMu.Unlock()
		seq++
		return "r" + strconv.Itoa(seq)
	}
	eng := engine.New(store.NewMemory(), catalog.Static{C: cat}, cfg,
		engine.WithClock(clk.Now), engine.WithIDs(nextID))

	results := make([]StepResult, 0, len(f.Steps))
	for i, step := range f.Steps {
		at := clk.advance(time.Duration(step.After))
		res := StepResult{Index: i, Kind: step.Kind, At: at}
		res.Err = runStep(ctx, eng, step, &res, results, cfg.Behaviors)
		if step.Expect != nil {
			res.Mismatches = check(*step.Expect, res)
		} else if res.Err != nil {
			res.Mismatches = []string{"unexpected error: " + res.Err.Error()}
		}
		results = append(results, res)

		if ctx.Err() != nil {
			return results, eng, ctx.Err()
		}
	}
	return results, eng, nil
}

func fixtureCatalog(f *Fixture, dir string) (*catalog.Catalog, error) {
	if f.Config.Catalog == "" {
		return catalog.Default()
	}
	path := f.Config.Catalog
	if !filepath.IsAbs(path) {
		path = filepath.Join(dir, path)
	}
	return catalog.LoadFile(path)
}

func runStep(ctx context.Context, eng *engine.Engine, step Step, res *StepResult, prior []StepResult, behaviors []string) error {
	at := res.At
	switch step.Kind {
	case KindSignal:
		sig := step.Signal
		inserted, err := eng.IngestSignal(ctx, signals.Record{
			Timestamp: at, Source: sig.Source, Dimension: sig.Dimension, Value: sig.Value, Confidence: sig.Confidence,
		})
		res.Inserted = inserted
		return err
	case KindText:
		recs, err := eng.IngestText(ctx, step.Text, at)
		res.Inserted = len(recs) > 0
		return err
	case KindCheckIn:
		recs, err := eng.IngestCheckIn(ctx, *step.CheckIn, at)
		res.Inserted = len(recs) > 0
		return err
	case KindAction:
		a := streak.Action{BehaviorID: behaviors[0], At: at, Qualifies: true}
		if step.Action != nil {
			if step.Action.BehaviorID != "" {
				a.BehaviorID = step.Action.BehaviorID
			}
			if step.Action.Qualifies != nil {
				a.Qualifies = *step.Action.Qualifies
			}
		}
		out, err := eng.RecordAction(ctx, a)
		if err == nil {
			res.Action = &out
		}
		return err
	case KindTick:
		report, err := eng.Tick(ctx)
		res.Tick = &report
		return err
	case KindFeedback:
		id, err := correlationFor(*step.Feedback, prior)
		if err != nil {
			return err
		}
		out, err := eng.ApplyFeedback(ctx, feedback.Event{
			CorrelationID: id, Outcome: feedback.Outcome(step.Feedback.Outcome), Timestamp: at,
		})
		if err == nil {
			res.Feedback = &out
		}
		return err
	}
	return fmt.Errorf("unknown step kind %q", step.Kind)
}

// correlationFor resolves the command a feedback step answers.
func correlationFor(fb FixtureFeedback, prior []StepResult) (string, error) {
	if fb.CorrelationID != "" {
		return fb.CorrelationID, nil
	}
	if fb.TickStep < 0 || fb.TickStep >= len(prior) || prior[fb.TickStep].Tick == nil {
		return "", fmt.Errorf("step %d is not a tick", fb.TickStep)
	}
	report := prior[fb.TickStep].Tick
	if fb.Behavior < 0 || fb.Behavior >= len(report.Behaviors) {
		return "", fmt.Errorf("tick step %d has no behavior %d", fb.TickStep, fb.Behavior)
	}
	cmds := report.Behaviors[fb.Behavior].Commands
	if fb.Command < 0 || fb.Command >= len(cmds) {
		return "", fmt.Errorf("tick step %d issued no command %d", fb.TickStep, fb.Command)
	}
	return cmds[fb.Command].CorrelationID, nil
}

// #endregion replay

// #region checks

// check compares one step's outcome with its expectations.
func check(want Expect, res StepResult) []string {
	var out []string
	fail := func(format string, args ...any) {
		out = append(out, fmt.Sprintf(format, args...))
	}

	if want.Error != "" {
		if res.Err == nil || !strings.Contains(res.Err.Error(), want.Error) {
			fail("error: want %q, got %v", want.Error, res.Err)
		}
		return out
	}
	if res.Err != nil {
		fail("unexpected error: %v", res.Err)
		return out
	}
	if want.Inserted != nil && res.Inserted != *want.Inserted {
		fail("inserted: want %v, got %v", *want.Inserted, res.Inserted)
	}

	if res.Tick != nil && len(res.Tick.Behaviors) > 0 {
		b := res.Tick.Behaviors[0]
		if want.Decision != "" && string(b.Decision) != want.Decision {
			fail("decision: want %s, got %s", want.Decision, b.Decision)
		}
		if want.InterventionID != "" && b.InterventionID != want.InterventionID {
			fail("intervention: want %s, got %s (%s)", want.InterventionID, b.InterventionID, b.Reason)
		}
		if want.Bucket != "" && b.Bucket != want.Bucket {
			fail("bucket: want %s, got %s", want.Bucket, b.Bucket)
		}
		if want.Explored != nil && b.Explored != *want.Explored {
			fail("explored: want %v, got %v", *want.Explored, b.Explored)
		}
		if want.Devices != nil {
			got := make([]string, len(b.Commands))
			for i, c := range b.Commands {
				got[i] = c.Device
			}
			if strings.Join(got, ",") != strings.Join(want.Devices, ",") {
				fail("devices: want %v, got %v", want.Devices, got)
			}
		}
		if want.MessageContains != "" && !strings.Contains(b.Message, want.MessageContains) {
			fail("message: want it to contain %q, got %q", want.MessageContains, b.Message)
		}
	}

	if res.Action != nil {
		if want.Transition != "" && string(res.Action.Transition) != want.Transition {
			fail("transition: want %s, got %s", want.Transition, res.Action.Transition)
		}
		if want.StreakLength != nil && res.Action.Streak.CurrentLength != *want.StreakLength {
			fail("streak length: want %d, got %d", *want.StreakLength, res.Action.Streak.CurrentLength)
		}
	}

	if res.Feedback != nil {
		if want.Duplicate != nil && res.Feedback.Duplicate != *want.Duplicate {
			fail("duplicate: want %v, got %v", *want.Duplicate, res.Feedback.Duplicate)
		}
		if want.Score != nil && !res.Feedback.Duplicate && math.Abs(res.Feedback.Efficacy.Score-*want.Score) > 1e-6 {
			fail("score: want %.4f, got %.4f", *want.Score, res.Feedback.Efficacy.Score)
		}
	}
	return out
}

// #endregion checks

// #region summary

// Summarize computes aggregate stats from replay results. efficacy is the
// final efficacy table, usually from the run's store.
func Summarize(results []StepResult, efficacy []feedback.Record) Summary {
	s := Summary{TotalSteps: len(results), Efficacy: efficacy}
	for _, r := range results {
		if !r.OK() {
			s.Failed++
		}
		switch {
		case r.Tick != nil:
			s.Ticks++
			for _, b := range r.Tick.Behaviors {
				if b.Decision == logging.DecisionSelected {
					s.Selections++
					if b.Explored {
						s.Explored++
					}
				}
			}
		case r.Feedback != nil && !r.Feedback.Duplicate:
			s.Feedback++
		}
	}
	return s
}

// #endregion summary
