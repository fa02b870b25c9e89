package selector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

var now = time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

func lowMood() state.Snapshot {
	return state.Snapshot{
		Timestamp: now,
		Mood:      state.Estimate{Value: -0.6, Known: true, Confidence: 0.99},
		Energy:    state.Estimate{Value: 0.05, Known: true, Confidence: 0.25},
	}
}

func defaultCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Default()
	require.NoError(t, err)
	return c
}

func greedy() Config {
	cfg := DefaultConfig()
	cfg.Epsilon = 0
	return cfg
}

func efficacy(recs ...feedback.Record) Lookup {
	m := map[string]feedback.Record{}
	for _, r := range recs {
		m[r.InterventionID+"@"+r.Bucket] = r
	}
	return func(id, bucket string) (feedback.Record, bool) {
		r, ok := m[id+"@"+bucket]
		return r, ok
	}
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "mood:low|energy:low|focus:unk|streak:none", Bucket(lowMood(), 0))
	snap := state.Snapshot{
		Mood:   state.Estimate{Value: 0, Known: true},
		Energy: state.Estimate{Value: 0.8, Known: true},
		Focus:  state.Estimate{Value: 0.5, Known: true},
	}
	assert.Equal(t, "mood:mid|energy:high|focus:mid|streak:established", Bucket(snap, 5))
	assert.Equal(t, "mood:unk|energy:unk|focus:unk|streak:short", Bucket(state.Snapshot{}, 2))
}

func TestSelect_NeutralPriorCatalogOrder(t *testing.T) {
	s := New(greedy(), 1)
	res := s.Select(Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: defaultCatalog(t), Now: now})

	require.NotNil(t, res.Spec)
	assert.Equal(t, "low-mood-self-care", res.InterventionID)
	assert.False(t, res.Explored)
	for _, c := range res.Candidates {
		assert.Equal(t, feedback.NeutralPrior, c.Score)
	}
}

func TestSelect_NoApplicable(t *testing.T) {
	c := &catalog.Catalog{Version: 1, Interventions: []catalog.Spec{{
		ID: "only-walkers", Category: catalog.CategoryCoaching, Behavior: "walk",
		Targets: []catalog.Target{{Device: "coach"}},
	}}}
	res := New(greedy(), 1).Select(Input{Snapshot: lowMood(), BehaviorID: "read", Catalog: c, Now: now})
	assert.Nil(t, res.Spec)
	assert.Empty(t, res.InterventionID)
	assert.Equal(t, "no applicable intervention", res.Reason)
}

func TestSelect_ExploitsHigherScore(t *testing.T) {
	cat := defaultCatalog(t)
	bucket := Bucket(lowMood(), 0)
	look := efficacy(
		feedback.Record{InterventionID: "low-mood-self-care", Bucket: bucket, Score: 0.3, SampleCount: 5},
		feedback.Record{InterventionID: "start-small", Bucket: bucket, Score: 0.8, SampleCount: 5},
	)
	res := New(greedy(), 1).Select(Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: cat, Efficacy: look, Now: now})
	assert.Equal(t, "start-small", res.InterventionID)
}

func TestSelect_TieBreaksOnExposures(t *testing.T) {
	hist := []Exposure{
		{InterventionID: "low-mood-self-care", BehaviorID: "daily_action", At: now.Add(-5 * time.Hour)},
	}
	res := New(greedy(), 1).Select(Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: defaultCatalog(t), History: hist, Now: now})
	assert.Equal(t, "start-small", res.InterventionID, "fewer exposures wins a score tie")
}

func TestSelect_Cooldown(t *testing.T) {
	cat := defaultCatalog(t)
	s := New(greedy(), 1)
	in := Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: cat, Now: now}

	first := s.Select(in)
	require.Equal(t, "low-mood-self-care", first.InterventionID)

	in.History = []Exposure{{InterventionID: first.InterventionID, BehaviorID: "daily_action", At: now}}
	in.Now = now.Add(time.Hour)
	second := s.Select(in)
	assert.Equal(t, "start-small", second.InterventionID)
	assert.False(t, second.CooldownWaived)

	// Another behaviour's history does not cool this one down.
	in.History = []Exposure{{InterventionID: first.InterventionID, BehaviorID: "walk", At: now}}
	assert.Equal(t, "low-mood-self-care", s.Select(in).InterventionID)

	// After the window it is eligible again (and still wins on catalog order
	// once exposures are level).
	in.History = []Exposure{
		{InterventionID: "low-mood-self-care", BehaviorID: "daily_action", At: now},
		{InterventionID: "start-small", BehaviorID: "daily_action", At: now.Add(30 * time.Minute)},
	}
	in.Now = now.Add(3 * time.Hour)
	assert.Equal(t, "low-mood-self-care", s.Select(in).InterventionID)
}

func TestSelect_CooldownWaivedForSoleCandidate(t *testing.T) {
	cat := defaultCatalog(t)
	s := New(greedy(), 1)
	in := Input{
		Snapshot:   state.Snapshot{},
		BehaviorID: "daily_action",
		Catalog:    cat,
		History:    []Exposure{{InterventionID: "start-small", BehaviorID: "daily_action", At: now.Add(-10 * time.Minute)}},
		Now:        now,
	}
	res := s.Select(in)
	assert.Equal(t, "start-small", res.InterventionID)
	assert.True(t, res.CooldownWaived)
}

func TestSelect_AllCoolingDownSelectsNothing(t *testing.T) {
	cat := defaultCatalog(t)
	cfg := DefaultConfig()
	cfg.Epsilon = 0.5
	in := Input{
		Snapshot:   lowMood(),
		BehaviorID: "daily_action",
		Catalog:    cat,
		History: []Exposure{
			{InterventionID: "low-mood-self-care", BehaviorID: "daily_action", At: now.Add(-90 * time.Minute)},
			{InterventionID: "start-small", BehaviorID: "daily_action", At: now.Add(-30 * time.Minute)},
		},
		Now: now,
	}
	s := New(cfg, 7)
	for i := 0; i < 20; i++ {
		res := s.Select(in)
		require.Nil(t, res.Spec, "draw %d", i)
		assert.Empty(t, res.InterventionID)
		assert.False(t, res.CooldownWaived)
		assert.False(t, res.Explored)
		assert.Contains(t, res.Reason, "cooling down")
		assert.Len(t, res.Candidates, 2)
	}
}

func TestSelect_DeterministicUnderSeed(t *testing.T) {
	cat := defaultCatalog(t)
	cfg := DefaultConfig()
	cfg.Epsilon = 0.5
	in := Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: cat, Now: now}

	a, b := New(cfg, 42), New(cfg, 42)
	for i := 0; i < 100; i++ {
		ra, rb := a.Select(in), b.Select(in)
		require.Equal(t, ra.InterventionID, rb.InterventionID, "draw %d", i)
		require.Equal(t, ra.Explored, rb.Explored, "draw %d", i)
	}
}

func TestSelect_ExplorationRate(t *testing.T) {
	cat := defaultCatalog(t)
	bucket := Bucket(lowMood(), 0)
	look := efficacy(
		feedback.Record{InterventionID: "low-mood-self-care", Bucket: bucket, Score: 0.9, SampleCount: 10},
		feedback.Record{InterventionID: "start-small", Bucket: bucket, Score: 0.2, SampleCount: 10},
	)
	s := New(DefaultConfig(), 7)
	in := Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: cat, Efficacy: look, Now: now}

	explored := 0
	const n = 5000
	for i := 0; i < n; i++ {
		res := s.Select(in)
		if res.Explored {
			explored++
		}
		assert.Equal(t, 0.1, res.Epsilon)
	}
	rate := float64(explored) / n
	assert.InDelta(t, 0.1, rate, 0.03)
}

func TestSelect_LowSampleBoost(t *testing.T) {
	cfg := DefaultConfig()
	res := New(cfg, 3).Select(Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: defaultCatalog(t), Now: now})
	assert.InDelta(t, 0.2, res.Epsilon, 1e-12)

	cfg.Epsilon = 0.4
	res = New(cfg, 3).Select(Input{Snapshot: lowMood(), BehaviorID: "daily_action", Catalog: defaultCatalog(t), Now: now})
	assert.InDelta(t, 0.5, res.Epsilon, 1e-12, "boosted epsilon is capped")
}

func TestSelect_StreakConditionsBucketAndCatalog(t *testing.T) {
	st := streak.State{BehaviorID: "daily_action", CurrentLength: 4, Status: streak.StatusActive}
	res := New(greedy(), 1).Select(Input{Snapshot: state.Snapshot{}, BehaviorID: "daily_action", Streak: st, Catalog: defaultCatalog(t), Now: now})
	assert.Equal(t, "protect-streak", res.InterventionID)
	assert.Contains(t, res.Bucket, "streak:established")
}
