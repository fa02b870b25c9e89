package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// backends returns every Store implementation under the same contract.
func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"sqlite-memory": func(t *testing.T) Store {
			s, err := NewSQLite(":memory:")
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"sqlite-file": func(t *testing.T) Store {
			s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		},
		"memory": func(t *testing.T) Store {
			s := NewMemory()
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, open(t)) })
	}
}

func TestSignals_IdempotentAndOrdered(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mood := signals.Record{Timestamp: t0, Source: signals.SourceManual, Dimension: signals.Mood, Value: -0.6, Confidence: 1}
		energy := signals.Record{Timestamp: t0.Add(time.Hour), Source: signals.SourceInferred, Dimension: signals.Energy, Value: 0.1, Confidence: 0.5}

		ok, err := s.PutSignal(ctx, energy)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.PutSignal(ctx, mood)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.PutSignal(ctx, mood)
		require.NoError(t, err)
		assert.False(t, ok, "second identical put is a no-op")

		recent, err := s.RecentSignals(ctx, t0.Add(-time.Minute))
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, mood, recent[0])
		assert.Equal(t, energy, recent[1])

		recent, err = s.RecentSignals(ctx, t0.Add(30*time.Minute))
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, signals.Energy, recent[0].Dimension)

		hist, err := s.SignalHistory(ctx, 1)
		require.NoError(t, err)
		require.Len(t, hist, 1)
		assert.Equal(t, energy, hist[0], "history is newest first")

		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, Summary{Signals: 2, ManualSignals: 1, InferredSignals: 1}, sum)
	})
}

func TestSignals_BatchPut(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		mood := signals.Record{Timestamp: t0, Source: signals.SourceManual, Dimension: signals.Mood, Value: -0.6, Confidence: 1}
		energy := signals.Record{Timestamp: t0, Source: signals.SourceManual, Dimension: signals.Energy, Value: 0.1, Confidence: 1}
		_, err := s.PutSignal(ctx, mood)
		require.NoError(t, err)

		inserted, err := s.PutSignals(ctx, []signals.Record{mood, energy})
		require.NoError(t, err)
		assert.Equal(t, []bool{false, true}, inserted)

		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Signals)
	})
}

func TestSnapshots_Latest(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.LatestSnapshot(ctx)
		assert.ErrorIs(t, err, ErrNotFound)

		first := state.Snapshot{Timestamp: t0, Mood: state.Estimate{Value: -0.6, Known: true, Confidence: 1, Weight: 1, Samples: 1}, Confidence: 1.0 / 3}
		second := state.Snapshot{Timestamp: t0.Add(time.Hour)}
		require.NoError(t, s.PutSnapshot(ctx, second))
		require.NoError(t, s.PutSnapshot(ctx, first))

		got, err := s.LatestSnapshot(ctx)
		require.NoError(t, err)
		assert.True(t, got.Timestamp.Equal(second.Timestamp))
		assert.False(t, got.Known())
	})
}

func TestActions_Dedupe(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := streak.Action{BehaviorID: "daily_action", At: t0, Qualifies: true}
		ok, err := s.RecordAction(ctx, a)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.RecordAction(ctx, a)
		require.NoError(t, err)
		assert.False(t, ok)

		b := streak.Action{BehaviorID: "daily_action", At: t0.Add(24 * time.Hour)}
		_, err = s.RecordAction(ctx, b)
		require.NoError(t, err)

		hist, err := s.ActionHistory(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []streak.Action{b, a}, hist)
	})
}

func TestActions_Forget(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a := streak.Action{BehaviorID: "daily_action", At: t0, Qualifies: true}
		b := streak.Action{BehaviorID: "daily_action", At: t0.Add(time.Hour), Qualifies: true}
		for _, act := range []streak.Action{a, b} {
			_, err := s.RecordAction(ctx, act)
			require.NoError(t, err)
		}

		require.NoError(t, s.ForgetAction(ctx, a))
		require.NoError(t, s.ForgetAction(ctx, a), "forgetting twice is a no-op")
		hist, err := s.ActionHistory(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, []streak.Action{b}, hist)

		ok, err := s.RecordAction(ctx, a)
		require.NoError(t, err)
		assert.True(t, ok, "a forgotten action is new again")
	})
}

func TestStreak_CompareAndSwap(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		zero, err := s.GetStreak(ctx, "daily_action")
		require.NoError(t, err)
		assert.Equal(t, streak.Zero("daily_action"), zero)

		st := zero
		st.CurrentLength, st.BestLength, st.Status = 1, 1, streak.StatusActive
		st.LastQualifyingAt, st.LastActionAt = t0, t0
		saved, err := s.PutStreak(ctx, st)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)

		// A writer still holding version 0 loses.
		_, err = s.PutStreak(ctx, st)
		assert.ErrorIs(t, err, ErrWriteConflict)

		saved.CurrentLength, saved.BestLength = 2, 2
		saved, err = s.PutStreak(ctx, saved)
		require.NoError(t, err)
		assert.Equal(t, int64(2), saved.Version)

		stale := saved
		stale.Version = 1
		_, err = s.PutStreak(ctx, stale)
		assert.True(t, errors.Is(err, ErrWriteConflict))

		got, err := s.GetStreak(ctx, "daily_action")
		require.NoError(t, err)
		assert.Equal(t, saved, got)
		assert.True(t, got.LastBreakAt.IsZero())

		all, err := s.ListStreaks(ctx)
		require.NoError(t, err)
		assert.Equal(t, []streak.State{saved}, all)
	})
}

func TestEfficacy_NeutralAndCAS(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		rec, ok, err := s.GetEfficacy(ctx, "start-small", "mood:low|energy:low|focus:unk|streak:none")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, feedback.NeutralPrior, rec.Score)
		assert.Zero(t, rec.Version)

		rec.Score, rec.SampleCount, rec.UpdatedAt = 0.6, 1, t0
		saved, err := s.PutEfficacy(ctx, rec)
		require.NoError(t, err)
		assert.Equal(t, int64(1), saved.Version)

		_, err = s.PutEfficacy(ctx, rec)
		assert.ErrorIs(t, err, ErrWriteConflict)

		got, ok, err := s.GetEfficacy(ctx, rec.InterventionID, rec.Bucket)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, saved, got)

		other := feedback.Neutral("protect-streak", rec.Bucket)
		other.Score = 0.9
		_, err = s.PutEfficacy(ctx, other)
		require.NoError(t, err)

		all, err := s.ListEfficacy(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, "protect-streak", all[0].InterventionID, "best score first")
	})
}

func TestSuggestions_Correlation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		sg := Suggestion{
			ID: "s1", BehaviorID: "daily_action", InterventionID: "low-mood-self-care",
			Bucket: "mood:low|energy:low|focus:unk|streak:none", Explored: true,
			Message: "Be gentle today.", IssuedAt: t0, CorrelationIDs: []string{"c-lamp", "c-coach"},
		}
		require.NoError(t, s.RecordSuggestion(ctx, sg))
		assert.Error(t, s.RecordSuggestion(ctx, sg), "suggestion IDs are unique")

		want := feedback.Link{SuggestionID: "s1", BehaviorID: "daily_action", InterventionID: "low-mood-self-care", Bucket: sg.Bucket}
		for _, id := range []string{"c-lamp", "c-coach", "s1"} {
			link, err := s.ResolveCorrelation(ctx, id)
			require.NoError(t, err, id)
			assert.Equal(t, want, link)
		}
		_, err := s.ResolveCorrelation(ctx, "nope")
		assert.ErrorIs(t, err, ErrNotFound)

		recent, err := s.RecentSuggestions(ctx, t0.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []Suggestion{sg}, recent)

		recent, err = s.RecentSuggestions(ctx, t0.Add(time.Second))
		require.NoError(t, err)
		assert.Empty(t, recent)
	})
}

func TestFeedback_Dedupe(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		ev := feedback.Event{CorrelationID: "c-lamp", Outcome: feedback.OutcomeAccepted, Timestamp: t0}
		ok, err := s.RecordFeedback(ctx, ev)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = s.RecordFeedback(ctx, ev)
		require.NoError(t, err)
		assert.False(t, ok)

		ev.Outcome = feedback.OutcomeReportedHelpful
		ok, err = s.RecordFeedback(ctx, ev)
		require.NoError(t, err)
		assert.True(t, ok, "different outcome is a different event")

		sum, err := s.Summary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.FeedbackEvents)

		require.NoError(t, s.ForgetFeedback(ctx, ev))
		ok, err = s.RecordFeedback(ctx, ev)
		require.NoError(t, err)
		assert.True(t, ok, "a forgotten event can be recorded again")
	})
}

func TestClosedStoreFails(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Close())
		_, err := s.PutSignal(ctx, signals.Record{Timestamp: t0, Source: signals.SourceManual, Dimension: signals.Mood})
		assert.Error(t, err)
		_, err = s.GetStreak(ctx, "x")
		assert.Error(t, err)
		_, err = s.Summary(ctx)
		assert.Error(t, err)
	})
}

func TestCanceledContext(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.RecentSignals(ctx, t0)
		assert.Error(t, err)
	})
}

func TestTimestampLayoutSortsLexically(t *testing.T) {
	a := formatTS(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	b := formatTS(time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC))
	c := formatTS(time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC))
	assert.Less(t, a, b)
	assert.Less(t, b, c)
	assert.True(t, parseTS(b).Equal(time.Date(2026, 1, 1, 0, 0, 0, 500, time.UTC)))
	assert.True(t, parseTS("").IsZero())
}
