package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region fixture-tests

// TestFixture_LowMoodDay is the regression test for the end-to-end loop: if
// estimator, selector, cooldown or learning parameters drift, this catches it.
func TestFixture_LowMoodDay(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "low_mood_day.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}

	results, eng, err := Run(context.Background(), f, "testdata")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(results) != len(f.Steps) {
		t.Fatalf("expected %d results, got %d", len(f.Steps), len(results))
	}
	for _, r := range results {
		for _, m := range r.Mismatches {
			t.Errorf("step %d (%s): %s", r.Index, r.Kind, m)
		}
	}

	eff, err := eng.Store().ListEfficacy(context.Background())
	if err != nil {
		t.Fatalf("ListEfficacy: %v", err)
	}
	s := Summarize(results, eff)
	if s.Ticks != 2 || s.Selections != 2 || s.Feedback != 2 || s.Failed != 0 {
		t.Errorf("unexpected summary %+v", s)
	}
	if len(s.Efficacy) != 2 {
		t.Fatalf("expected 2 efficacy records, got %d", len(s.Efficacy))
	}
	if s.Efficacy[0].InterventionID != "low-mood-self-care" {
		t.Errorf("expected best intervention first, got %s", s.Efficacy[0].InterventionID)
	}
}

// TestReplay_Deterministic replays the same fixture twice: identical seeds
// and clocks must give identical decisions and IDs.
func TestReplay_Deterministic(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "low_mood_day.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	eps := 0.5
	f.Config.Epsilon = &eps

	first, _, err := Run(context.Background(), f, "testdata")
	if err != nil {
		t.Fatal(err)
	}
	second, _, err := Run(context.Background(), f, "testdata")
	if err != nil {
		t.Fatal(err)
	}
	for i := range first {
		a, b := first[i].Tick, second[i].Tick
		if (a == nil) != (b == nil) {
			t.Fatalf("step %d: tick presence differs", i)
		}
		if a == nil {
			continue
		}
		if a.TickID != b.TickID || a.Behaviors[0].InterventionID != b.Behaviors[0].InterventionID ||
			a.Behaviors[0].Explored != b.Behaviors[0].Explored {
			t.Errorf("step %d: runs diverged: %+v vs %+v", i, a.Behaviors[0], b.Behaviors[0])
		}
	}
}

// #endregion fixture-tests

// #region mismatch

func TestRun_ReportsMismatch(t *testing.T) {
	greedy := 0.0
	f := &Fixture{
		Start:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Config: FixtureConfig{Epsilon: &greedy},
		Steps: []Step{
			{Kind: KindCheckIn, CheckIn: checkIn("low", "high", "")},
			{Kind: KindTick, Expect: &Expect{InterventionID: "good-deep-focus"}},
			{Kind: KindAction, Expect: &Expect{Transition: "extended"}},
		},
	}
	results, _, err := Run(context.Background(), f, "")
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].OK() {
		t.Errorf("check-in step should pass: %v", results[0].Mismatches)
	}
	if results[1].OK() {
		t.Error("expected an intervention mismatch")
	}
	if results[1].Tick.Behaviors[0].InterventionID != "low-mood-tiny-task" {
		t.Errorf("expected low-mood-tiny-task, got %s", results[1].Tick.Behaviors[0].InterventionID)
	}
	if results[2].OK() {
		t.Error("a first action starts a streak, it does not extend one")
	}
	if Summarize(results, nil).Failed != 2 {
		t.Errorf("expected 2 failed steps")
	}
}

func TestRun_UnexpectedErrorIsMismatch(t *testing.T) {
	f := &Fixture{
		Start: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Steps: []Step{{Kind: KindSignal, Signal: &FixtureSignal{Source: "manual", Dimension: "mood", Value: 4, Confidence: 1}}},
	}
	results, _, err := Run(context.Background(), f, "")
	if err != nil {
		t.Fatal(err)
	}
	if results[0].OK() || results[0].Err == nil {
		t.Errorf("invalid signal without an error expectation must fail the step")
	}
}

// #endregion mismatch

// #region loader

func TestLoadFixture_Rejects(t *testing.T) {
	cases := map[string]string{
		"no start":     `{"steps": []}`,
		"unknown kind": `{"start": "2026-03-02T09:00:00Z", "steps": [{"kind": "dance"}]}`,
		"missing body": `{"start": "2026-03-02T09:00:00Z", "steps": [{"kind": "signal"}]}`,
		"forward ref":  `{"start": "2026-03-02T09:00:00Z", "steps": [{"kind": "feedback", "feedback": {"outcome": "accepted", "tick_step": 3}}]}`,
		"bad duration": `{"start": "2026-03-02T09:00:00Z", "steps": [{"kind": "tick", "after": "soon"}]}`,
		"not json":     `{`,
	}
	dir := t.TempDir()
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, "f.json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadFixture(path); err == nil {
				t.Error("expected error")
			}
		})
	}
	if _, err := LoadFixture(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for a missing file")
	}
}

func TestRun_CustomCatalog(t *testing.T) {
	dir := t.TempDir()
	cat := `version: 1
interventions:
  - id: only-one
    category: coaching_message
    message: "Just this."
    targets:
      - device: coach
        payload:
          text: { value: "Just this." }
`
	if err := os.WriteFile(filepath.Join(dir, "catalog.yaml"), []byte(cat), 0o644); err != nil {
		t.Fatal(err)
	}
	f := &Fixture{
		Start:  time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		Config: FixtureConfig{Catalog: "catalog.yaml"},
		Steps:  []Step{{Kind: KindTick, Expect: &Expect{InterventionID: "only-one", Devices: []string{"coach"}}}},
	}
	results, _, err := Run(context.Background(), f, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !results[0].OK() {
		t.Errorf("custom catalog step failed: %v", results[0].Mismatches)
	}
}

// #endregion loader

func TestExport_ReplaysRecordedSession(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	t0 := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	for i, r := range []signals.Record{
		{Timestamp: t0, Source: signals.SourceManual, Dimension: signals.Mood, Value: -0.6, Confidence: 1},
		{Timestamp: t0.Add(time.Hour), Source: signals.SourceManual, Dimension: signals.Energy, Value: 0.2, Confidence: 1},
	} {
		if _, err := st.PutSignal(ctx, r); err != nil {
			t.Fatalf("PutSignal %d: %v", i, err)
		}
	}
	if _, err := st.RecordAction(ctx, streak.Action{BehaviorID: "daily_action", At: t0.Add(30 * time.Minute), Qualifies: true}); err != nil {
		t.Fatalf("RecordAction: %v", err)
	}

	eps := 0.0
	f, err := Export(ctx, st, ExportOptions{Seed: 3, Epsilon: &eps, TickAfter: 10 * time.Minute})
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	kinds := make([]string, len(f.Steps))
	for i, s := range f.Steps {
		kinds[i] = s.Kind
	}
	want := []string{KindSignal, KindAction, KindSignal, KindTick}
	if len(kinds) != len(want) {
		t.Fatalf("expected steps %v, got %v", want, kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("expected steps %v, got %v", want, kinds)
		}
	}
	if !f.Start.Equal(t0) || time.Duration(f.Steps[2].After) != 30*time.Minute {
		t.Fatalf("timeline not preserved: start %v, step 2 after %v", f.Start, time.Duration(f.Steps[2].After))
	}

	path := filepath.Join(t.TempDir(), "export.json")
	if _, err := WriteFixture(f, path); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	loaded, err := LoadFixture(path)
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	results, _, err := Run(ctx, loaded, filepath.Dir(path))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, r := range results {
		if !r.OK() {
			t.Errorf("step %d (%s): %v", r.Index, r.Kind, r.Mismatches)
		}
	}
	last := results[len(results)-1].Tick
	if last == nil || last.Behaviors[0].Decision != logging.DecisionSelected || last.Behaviors[0].InterventionID != "low-mood-self-care" {
		t.Fatalf("expected the exported session to select low-mood-self-care, got %+v", last)
	}
}

func TestExport_EmptyStore(t *testing.T) {
	if _, err := Export(context.Background(), store.NewMemory(), ExportOptions{}); err == nil {
		t.Fatal("expected error for an empty store")
	}
}

func checkIn(mood, energy, focus string) *signals.CheckIn {
	return &signals.CheckIn{Mood: mood, Energy: energy, Focus: focus}
}
