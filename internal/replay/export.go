package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region export

// ExportOptions shape an exported fixture.
type ExportOptions struct {
	Limit     int      // most recent signals and actions to read, each
	Seed      uint64   // exploration seed for the replay
	Epsilon   *float64 // nil keeps the engine default
	Behaviors []string

	// TickAfter appends a tick this long after the last exported entry.
	// Zero appends none.
	TickAfter time.Duration
}

type timelineEntry struct {
	at     time.Time
	signal *signals.Record
	action *streak.Action
}

// Export builds a fixture from the newest signals and actions in st, in time
// order. Steps carry no expectations: replaying the export shows what the
// current catalog and configuration make of a recorded session.
func Export(ctx context.Context, st store.Store, opts ExportOptions) (*Fixture, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	recs, err := st.SignalHistory(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("signal history: %w", err)
	}
	acts, err := st.ActionHistory(ctx, opts.Limit)
	if err != nil {
		return nil, fmt.Errorf("action history: %w", err)
	}

	entries := make([]timelineEntry, 0, len(recs)+len(acts))
	// Histories are newest first.
	for i := len(recs) - 1; i >= 0; i-- {
		entries = append(entries, timelineEntry{at: recs[i].Timestamp, signal: &recs[i]})
	}
	for i := len(acts) - 1; i >= 0; i-- {
		entries = append(entries, timelineEntry{at: acts[i].At, action: &acts[i]})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no signals or actions to export")
	}
	// Signals sort before actions at the same instant.
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].at.Equal(entries[j].at) {
			return entries[i].at.Before(entries[j].at)
		}
		return entries[i].signal != nil && entries[j].signal == nil
	})

	f := &Fixture{
		Description: fmt.Sprintf("Session export: %d signals, %d actions", len(recs), len(acts)),
		Start:       entries[0].at.UTC(),
		Config: FixtureConfig{
			Seed:      opts.Seed,
			Epsilon:   opts.Epsilon,
			Behaviors: opts.Behaviors,
		},
	}
	prev := f.Start
	for _, e := range entries {
		step := Step{After: Duration(e.at.Sub(prev))}
		prev = e.at
		switch {
		case e.signal != nil:
			step.Kind = KindSignal
			step.Signal = &FixtureSignal{
				Source:     e.signal.Source,
				Dimension:  e.signal.Dimension,
				Value:      e.signal.Value,
				Confidence: e.signal.Confidence,
			}
		default:
			qualifies := e.action.Qualifies
			step.Kind = KindAction
			step.Action = &FixtureAction{BehaviorID: e.action.BehaviorID, Qualifies: &qualifies}
		}
		f.Steps = append(f.Steps, step)
	}
	if opts.TickAfter > 0 {
		f.Steps = append(f.Steps, Step{After: Duration(opts.TickAfter), Kind: KindTick})
	}
	return f, nil
}

// WriteFixture writes f to path as indented JSON.
func WriteFixture(f *Fixture, path string) (int, error) {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshal fixture: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	return len(data), nil
}

// #endregion export
