package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func known(v float64) state.Estimate {
	return state.Estimate{Value: v, Known: true, Confidence: 1, Samples: 1}
}

func f(v float64) *float64 { return &v }
func n(v int) *int         { return &v }

// #region default-catalog

func TestDefault_LoadsAndValidates(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	require.NotEmpty(t, c.Interventions)

	spec, ok := c.Get("low-mood-self-care")
	require.True(t, ok)
	assert.Equal(t, CategoryCoaching, spec.Category)
	require.Len(t, spec.Targets, 2)
	assert.Equal(t, "lamp", spec.Targets[0].Device)
	assert.Equal(t, "coach", spec.Targets[1].Device)
	assert.Equal(t, 0, c.Position("low-mood-self-care"))
	assert.Equal(t, -1, c.Position("nope"))
}

func TestDefault_LowMoodScenario(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	ctx := EvalContext{State: state.Snapshot{Mood: known(-0.6), Energy: known(0.05)}}
	got := c.Applicable("daily_action", ctx)
	require.NotEmpty(t, got)
	assert.Equal(t, "low-mood-self-care", got[0].ID)

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Contains(t, ids, "start-small")
	assert.NotContains(t, ids, "stretch-break", "focus unknown must not satisfy a focus range")
}

func TestDefault_EmptyStateFallsBack(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)
	got := c.Applicable("daily_action", EvalContext{})
	require.Len(t, got, 1)
	assert.Equal(t, "start-small", got[0].ID)
}

// #endregion

// #region predicates

func TestPredicate_Operators(t *testing.T) {
	ctx := EvalContext{
		State:  state.Snapshot{Mood: known(0.3), Focus: state.Estimate{Value: 0.2, Known: true, Confidence: 0.2}},
		Streak: streak.State{CurrentLength: 4},
	}
	cases := []struct {
		name string
		p    *Predicate
		want bool
	}{
		{"nil", nil, true},
		{"always", &Predicate{Always: true}, true},
		{"range in", &Predicate{Range: &RangeCond{Dim: signals.Mood, Min: f(0.2), Max: f(0.4)}}, true},
		{"range out", &Predicate{Range: &RangeCond{Dim: signals.Mood, Max: f(0.1)}}, false},
		{"range unknown dim", &Predicate{Range: &RangeCond{Dim: signals.Energy, Max: f(1)}}, false},
		{"range low confidence", &Predicate{Range: &RangeCond{Dim: signals.Focus, Max: f(1), MinConfidence: 0.5}}, false},
		{"known", &Predicate{Known: signals.Mood}, true},
		{"unknown", &Predicate{Unknown: signals.Energy}, true},
		{"not", &Predicate{Not: &Predicate{Known: signals.Mood}}, false},
		{"all", &Predicate{All: []*Predicate{{Known: signals.Mood}, {Unknown: signals.Energy}}}, true},
		{"all fails", &Predicate{All: []*Predicate{{Known: signals.Mood}, {Known: signals.Energy}}}, false},
		{"any", &Predicate{Any: []*Predicate{{Known: signals.Energy}, {Known: signals.Focus}}}, true},
		{"streak tier", &Predicate{Streak: &StreakCond{Tier: "established"}}, true},
		{"streak max", &Predicate{Streak: &StreakCond{MaxLength: n(2)}}, false},
		{"streak min", &Predicate{Streak: &StreakCond{MinLength: n(4)}}, true},
		{"no tag", &Predicate{}, false},
		{"two tags", &Predicate{Always: true, Known: signals.Mood}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.p.Eval(ctx))
		})
	}
}

func TestSpec_BehaviorScope(t *testing.T) {
	s := Spec{ID: "x", Behavior: "walk"}
	assert.True(t, s.Applies("walk", EvalContext{}))
	assert.False(t, s.Applies("read", EvalContext{}))
}

// #endregion

// #region parse

const tomlCatalog = `
version = 1

[[interventions]]
id = "breathe"
category = "audio"
message = "Take three slow breaths."

[interventions.when.range]
dim = "mood"
max = -0.3

[[interventions.targets]]
device = "speaker"

[interventions.targets.payload.track]
value = "box-breathing"

[interventions.targets.payload.volume]
from = "energy"
range = [10, 40]
inverse = true
round = 0
`

func TestParse_TOML(t *testing.T) {
	c, err := Parse([]byte(tomlCatalog), FormatTOML)
	require.NoError(t, err)
	require.Len(t, c.Interventions, 1)

	s := c.Interventions[0]
	assert.Equal(t, CategoryAudio, s.Category)
	require.NotNil(t, s.When)
	require.NotNil(t, s.When.Range)
	assert.Equal(t, -0.3, *s.When.Range.Max)
	vol := s.Targets[0].Payload["volume"]
	assert.Equal(t, signals.Energy, vol.From)
	assert.True(t, vol.Inverse)
	assert.Equal(t, []float64{10, 40}, vol.Range)
}

func TestParse_RejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"bad category": `
version: 1
interventions:
  - id: a
    category: hologram
    targets: [{device: lamp, payload: {x: {value: 1}}}]`,
		"duplicate id": `
version: 1
interventions:
  - id: a
    category: lighting
    targets: [{device: lamp, payload: {x: {value: 1}}}]
  - id: a
    category: lighting
    targets: [{device: lamp, payload: {x: {value: 1}}}]`,
		"two predicate tags": `
version: 1
interventions:
  - id: a
    category: lighting
    when: {known: mood, unknown: energy}
    targets: [{device: lamp, payload: {x: {value: 1}}}]`,
		"from without range": `
version: 1
interventions:
  - id: a
    category: lighting
    targets: [{device: lamp, payload: {x: {from: mood}}}]`,
		"value and text": `
version: 1
interventions:
  - id: a
    category: lighting
    targets: [{device: lamp, payload: {x: {value: 1, text: hi}}}]`,
		"broken template": `
version: 1
interventions:
  - id: a
    category: coaching_message
    targets: [{device: coach, payload: {text: {text: "{{.Message"}}}]`,
		"range min above max": `
version: 1
interventions:
  - id: a
    category: lighting
    when: {range: {dim: mood, min: 0.5, max: 0.1}}
    targets: [{device: lamp, payload: {x: {value: 1}}}]`,
		"no targets": `
version: 1
interventions:
  - id: a
    category: lighting
    targets: []`,
		"not yaml": "version: [1",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc), FormatYAML)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatTOML, FormatFromPath("/etc/aurum/catalog.toml"))
	assert.Equal(t, FormatJSON, FormatFromPath("c.JSON"))
	assert.Equal(t, FormatYAML, FormatFromPath("c.yml"))
}

// #endregion

// #region watcher

const oneEntry = `
version: 1
interventions:
  - id: %s
    category: lighting
    targets: [{device: lamp, payload: {brightness: {value: 10}}}]
`

func writeCatalog(t *testing.T, path, id string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(oneEntry, id)), 0o644))
}

func TestWatcher_ReloadsAndKeepsLastGood(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeCatalog(t, path, "first")

	reloaded := make(chan string, 4)
	w, err := NewWatcher(path, func(c *Catalog) {
		select {
		case reloaded <- c.Interventions[0].ID:
		default:
		}
	})
	require.NoError(t, err)
	w.debounce = 20 * time.Millisecond
	require.Equal(t, "first", w.Current().Interventions[0].ID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	writeCatalog(t, path, "second")
	select {
	case id := <-reloaded:
		assert.Equal(t, "second", id)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Equal(t, "second", w.Current().Interventions[0].ID)

	require.NoError(t, os.WriteFile(path, []byte("version: [oops"), 0o644))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, "second", w.Current().Interventions[0].ID, "invalid reload must keep previous catalog")
}

func TestWatcher_StopIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	writeCatalog(t, path, "only")

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.Stop()
	require.NoError(t, w.Start(context.Background()))
	w.Stop()
	w.Stop()
}

func TestNewWatcher_MissingFile(t *testing.T) {
	_, err := NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

func TestStatic(t *testing.T) {
	c := &Catalog{Version: 1}
	assert.Same(t, c, Static{C: c}.Current())
}

// #endregion
