package streak

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func act(at time.Time, q bool) Action {
	return Action{BehaviorID: "walk", At: at, Qualifies: q}
}

func TestUpdate_StartExtendRefresh(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s := Zero("walk")

	s, got := tr.Update(s, act(day0, true))
	assert.Equal(t, TransitionStarted, got)
	assert.Equal(t, 1, s.CurrentLength)
	assert.Equal(t, StatusActive, s.Status)

	s, got = tr.Update(s, act(day0.Add(3*time.Hour), true))
	assert.Equal(t, TransitionRefreshed, got)
	assert.Equal(t, 1, s.CurrentLength)
	assert.Equal(t, day0.Add(3*time.Hour), s.LastQualifyingAt)

	s, got = tr.Update(s, act(day0.Add(24*time.Hour), true))
	assert.Equal(t, TransitionExtended, got)
	assert.Equal(t, 2, s.CurrentLength)
	assert.Equal(t, 2, s.BestLength)
}

func TestUpdate_NonQualifyingLeavesLength(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s, _ := tr.Update(Zero("walk"), act(day0, true))

	next, got := tr.Update(s, act(day0.Add(time.Hour), false))
	assert.Equal(t, TransitionNoChange, got)
	assert.Equal(t, s.CurrentLength, next.CurrentLength)
	assert.Equal(t, s.LastQualifyingAt, next.LastQualifyingAt)
	assert.Equal(t, day0.Add(time.Hour), next.LastActionAt)
}

func TestUpdate_BreakAfterGrace(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s := Zero("walk")
	for i := 0; i < 4; i++ {
		s, _ = tr.Update(s, act(day0.Add(time.Duration(i)*24*time.Hour), true))
	}
	require.Equal(t, 4, s.CurrentLength)
	last := s.LastQualifyingAt

	s, got := tr.Update(s, act(last.Add(37*time.Hour), true))
	assert.Equal(t, TransitionBroken, got)
	assert.Equal(t, 1, s.CurrentLength)
	assert.Equal(t, 4, s.BestLength)
	assert.Equal(t, 1, s.Breaks)
	assert.Equal(t, 4, s.LastBrokenLength)
	assert.Equal(t, last.Add(36*time.Hour), s.LastBreakAt)
	assert.Equal(t, StatusActive, s.Status)
}

func TestUpdate_WithinGraceAcrossTwoDays(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s, _ := tr.Update(Zero("walk"), act(day0, true))
	// 35h later: a later calendar day, still inside grace.
	s, got := tr.Update(s, act(day0.Add(35*time.Hour), true))
	assert.Equal(t, TransitionExtended, got)
	assert.Equal(t, 2, s.CurrentLength)
}

func TestUpdate_Duplicate(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s, _ := tr.Update(Zero("walk"), act(day0, true))

	again, got := tr.Update(s, act(day0, true))
	assert.Equal(t, TransitionDuplicate, got)
	assert.Equal(t, s, again)

	older, got := tr.Update(s, act(day0.Add(-time.Hour), true))
	assert.Equal(t, TransitionDuplicate, got)
	assert.Equal(t, s, older)
}

func TestUpdate_CalendarLocation(t *testing.T) {
	loc := time.FixedZone("UTC-8", -8*3600)
	cfg := DefaultConfig()
	cfg.Location = loc
	tr := NewTracker(cfg)

	// 14:00 and 17:00 local on the same day straddle midnight UTC.
	a := time.Date(2026, 3, 2, 14, 0, 0, 0, loc)
	s, _ := tr.Update(Zero("walk"), act(a, true))
	s, got := tr.Update(s, act(a.Add(3*time.Hour), true))
	assert.Equal(t, TransitionRefreshed, got)
	assert.Equal(t, 1, s.CurrentLength)
}

func TestExpire(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	s, _ := tr.Update(Zero("walk"), act(day0, true))
	s, _ = tr.Update(s, act(day0.Add(24*time.Hour), true))

	view, changed := tr.Expire(s, day0.Add(30*time.Hour))
	assert.False(t, changed)
	assert.Equal(t, 2, view.CurrentLength)

	view, changed = tr.Expire(s, day0.Add(24*time.Hour+37*time.Hour))
	assert.True(t, changed)
	assert.Equal(t, 0, view.CurrentLength)
	assert.Equal(t, StatusBroken, view.Status)
	assert.Equal(t, 2, view.BestLength)
	assert.Equal(t, 2, s.CurrentLength, "Expire must not mutate its input")
}

func TestTier(t *testing.T) {
	assert.Equal(t, "none", Tier(0))
	assert.Equal(t, "short", Tier(1))
	assert.Equal(t, "short", Tier(2))
	assert.Equal(t, "established", Tier(3))
	assert.Equal(t, "established", Tier(40))
}

func TestUpdate_RandomisedMonotonicity(t *testing.T) {
	tr := NewTracker(DefaultConfig())
	rng := rand.New(rand.NewPCG(7, 11))

	for run := 0; run < 200; run++ {
		s := Zero("walk")
		at := day0
		best := 0
		for step := 0; step < 60; step++ {
			// Mix of same-day, next-day, gap and out-of-order actions.
			switch rng.IntN(5) {
			case 0:
				at = at.Add(time.Duration(rng.IntN(6)) * time.Hour)
			case 1, 2:
				at = at.Add(time.Duration(18+rng.IntN(12)) * time.Hour)
			case 3:
				at = at.Add(time.Duration(40+rng.IntN(100)) * time.Hour)
			case 4:
				at = at.Add(-time.Duration(rng.IntN(10)) * time.Hour)
			}
			s, _ = tr.Update(s, act(at, rng.IntN(4) != 0))

			require.GreaterOrEqual(t, s.CurrentLength, 0)
			require.GreaterOrEqual(t, s.BestLength, best, "best length decreased")
			require.GreaterOrEqual(t, s.BestLength, s.CurrentLength)
			best = s.BestLength

			view, _ := tr.Expire(s, at.Add(time.Duration(rng.IntN(72))*time.Hour))
			require.GreaterOrEqual(t, view.CurrentLength, 0)
			require.Equal(t, s.BestLength, view.BestLength)
		}
	}
}
