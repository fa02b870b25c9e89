package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region memory-struct
// Memory is an in-process Store with the same semantics as SQLite, used by
// replay and tests.
type Memory struct {
	mu sync.Mutex

	signals     []signals.Record
	signalKeys  map[string]struct{}
	snapshots   []state.Snapshot
	actions     []streak.Action
	actionKeys  map[string]struct{}
	streaks     map[string]streak.State
	efficacy    map[[2]string]feedback.Record
	suggestions []Suggestion
	correlation map[string]int // correlation or suggestion ID -> index into suggestions
	feedback    map[string]struct{}
	closed      bool
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		signalKeys:  make(map[string]struct{}),
		actionKeys:  make(map[string]struct{}),
		streaks:     make(map[string]streak.State),
		efficacy:    make(map[[2]string]feedback.Record),
		correlation: make(map[string]int),
		feedback:    make(map[string]struct{}),
	}
}

// Close marks the store closed; later calls fail.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

var errClosed = fmt.Errorf("memory store closed")

// lock acquires the mutex and checks ctx and closed state.
func (m *Memory) lock(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return errClosed
	}
	return nil
}
// #endregion memory-struct

// #region signals
func (m *Memory) PutSignal(ctx context.Context, r signals.Record) (bool, error) {
	if err := m.lock(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	r.Timestamp = r.Timestamp.UTC()
	key := r.Key()
	if _, ok := m.signalKeys[key]; ok {
		return false, nil
	}
	m.signalKeys[key] = struct{}{}
	m.signals = append(m.signals, r)
	return true, nil
}

func (m *Memory) PutSignals(ctx context.Context, rs []signals.Record) ([]bool, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	inserted := make([]bool, len(rs))
	for i, r := range rs {
		r.Timestamp = r.Timestamp.UTC()
		key := r.Key()
		if _, ok := m.signalKeys[key]; ok {
			continue
		}
		m.signalKeys[key] = struct{}{}
		m.signals = append(m.signals, r)
		inserted[i] = true
	}
	return inserted, nil
}

func (m *Memory) RecentSignals(ctx context.Context, since time.Time) ([]signals.Record, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	var out []signals.Record
	for _, r := range m.signals {
		if !r.Timestamp.Before(since) {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) SignalHistory(ctx context.Context, limit int) ([]signals.Record, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := append([]signals.Record(nil), m.signals...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	// Stable sort preserves insertion order for equal timestamps; newest
	// insertion should come first.
	reverseEqualRuns(out, func(a, b signals.Record) bool { return a.Timestamp.Equal(b.Timestamp) })
	return truncate(out, limit), nil
}
// #endregion signals

// #region snapshots
func (m *Memory) PutSnapshot(ctx context.Context, s state.Snapshot) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, s)
	return nil
}

func (m *Memory) LatestSnapshot(ctx context.Context) (state.Snapshot, error) {
	if err := m.lock(ctx); err != nil {
		return state.Snapshot{}, err
	}
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return state.Snapshot{}, ErrNotFound
	}
	best := 0
	for i, s := range m.snapshots {
		if !s.Timestamp.Before(m.snapshots[best].Timestamp) {
			best = i
		}
	}
	return m.snapshots[best], nil
}
// #endregion snapshots

// #region actions
func (m *Memory) RecordAction(ctx context.Context, a streak.Action) (bool, error) {
	if err := m.lock(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	a.At = a.At.UTC()
	key := actionKey(a)
	if _, ok := m.actionKeys[key]; ok {
		return false, nil
	}
	m.actionKeys[key] = struct{}{}
	m.actions = append(m.actions, a)
	return true, nil
}

func actionKey(a streak.Action) string {
	return fmt.Sprintf("%s|%s|%t", a.BehaviorID, formatTS(a.At), a.Qualifies)
}

func (m *Memory) ForgetAction(ctx context.Context, a streak.Action) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	a.At = a.At.UTC()
	key := actionKey(a)
	if _, ok := m.actionKeys[key]; !ok {
		return nil
	}
	delete(m.actionKeys, key)
	for i, got := range m.actions {
		if actionKey(got) == key {
			m.actions = append(m.actions[:i], m.actions[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) ActionHistory(ctx context.Context, limit int) ([]streak.Action, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := append([]streak.Action(nil), m.actions...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	reverseEqualRuns(out, func(a, b streak.Action) bool { return a.At.Equal(b.At) })
	return truncate(out, limit), nil
}
// #endregion actions

// #region streaks
func (m *Memory) GetStreak(ctx context.Context, behaviorID string) (streak.State, error) {
	if err := m.lock(ctx); err != nil {
		return streak.State{}, err
	}
	defer m.mu.Unlock()
	if st, ok := m.streaks[behaviorID]; ok {
		return st, nil
	}
	return streak.Zero(behaviorID), nil
}

func (m *Memory) PutStreak(ctx context.Context, st streak.State) (streak.State, error) {
	if err := m.lock(ctx); err != nil {
		return st, err
	}
	defer m.mu.Unlock()
	cur, exists := m.streaks[st.BehaviorID]
	if (exists && cur.Version != st.Version) || (!exists && st.Version != 0) {
		return st, fmt.Errorf("put streak %s at version %d: %w", st.BehaviorID, st.Version, ErrWriteConflict)
	}
	next := st
	next.Version = st.Version + 1
	m.streaks[st.BehaviorID] = next
	return next, nil
}

func (m *Memory) ListStreaks(ctx context.Context) ([]streak.State, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := make([]streak.State, 0, len(m.streaks))
	for _, st := range m.streaks {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BehaviorID < out[j].BehaviorID })
	return out, nil
}
// #endregion streaks

// #region efficacy
func (m *Memory) GetEfficacy(ctx context.Context, interventionID, bucket string) (feedback.Record, bool, error) {
	if err := m.lock(ctx); err != nil {
		return feedback.Record{}, false, err
	}
	defer m.mu.Unlock()
	if r, ok := m.efficacy[[2]string{interventionID, bucket}]; ok {
		return r, true, nil
	}
	return feedback.Neutral(interventionID, bucket), false, nil
}

func (m *Memory) PutEfficacy(ctx context.Context, r feedback.Record) (feedback.Record, error) {
	if err := m.lock(ctx); err != nil {
		return r, err
	}
	defer m.mu.Unlock()
	key := [2]string{r.InterventionID, r.Bucket}
	cur, exists := m.efficacy[key]
	if (exists && cur.Version != r.Version) || (!exists && r.Version != 0) {
		return r, fmt.Errorf("put efficacy %s/%s at version %d: %w", r.InterventionID, r.Bucket, r.Version, ErrWriteConflict)
	}
	next := r
	next.Version = r.Version + 1
	next.UpdatedAt = next.UpdatedAt.UTC()
	m.efficacy[key] = next
	return next, nil
}

func (m *Memory) ListEfficacy(ctx context.Context) ([]feedback.Record, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	out := make([]feedback.Record, 0, len(m.efficacy))
	for _, r := range m.efficacy {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].InterventionID != out[j].InterventionID {
			return out[i].InterventionID < out[j].InterventionID
		}
		return out[i].Bucket < out[j].Bucket
	})
	return out, nil
}
// #endregion efficacy

// #region suggestions
func (m *Memory) RecordSuggestion(ctx context.Context, sg Suggestion) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	if _, dup := m.correlation[sg.ID]; dup {
		return fmt.Errorf("insert suggestion %s: already exists", sg.ID)
	}
	for _, cid := range sg.CorrelationIDs {
		if _, dup := m.correlation[cid]; dup {
			return fmt.Errorf("insert correlation %s: already exists", cid)
		}
	}
	sg.IssuedAt = sg.IssuedAt.UTC()
	sg.CorrelationIDs = append([]string(nil), sg.CorrelationIDs...)
	idx := len(m.suggestions)
	m.suggestions = append(m.suggestions, sg)
	m.correlation[sg.ID] = idx
	for _, cid := range sg.CorrelationIDs {
		m.correlation[cid] = idx
	}
	return nil
}

func (m *Memory) RecentSuggestions(ctx context.Context, since time.Time) ([]Suggestion, error) {
	if err := m.lock(ctx); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()
	var out []Suggestion
	for _, sg := range m.suggestions {
		if !sg.IssuedAt.Before(since) {
			sg.CorrelationIDs = append([]string(nil), sg.CorrelationIDs...)
			out = append(out, sg)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].IssuedAt.Before(out[j].IssuedAt) })
	return out, nil
}

func (m *Memory) ResolveCorrelation(ctx context.Context, correlationID string) (feedback.Link, error) {
	if err := m.lock(ctx); err != nil {
		return feedback.Link{}, err
	}
	defer m.mu.Unlock()
	idx, ok := m.correlation[correlationID]
	if !ok {
		return feedback.Link{}, fmt.Errorf("correlation %s: %w", correlationID, ErrNotFound)
	}
	sg := m.suggestions[idx]
	return feedback.Link{SuggestionID: sg.ID, BehaviorID: sg.BehaviorID, InterventionID: sg.InterventionID, Bucket: sg.Bucket}, nil
}

func (m *Memory) RecordFeedback(ctx context.Context, e feedback.Event) (bool, error) {
	if err := m.lock(ctx); err != nil {
		return false, err
	}
	defer m.mu.Unlock()
	key := e.Key()
	if _, ok := m.feedback[key]; ok {
		return false, nil
	}
	m.feedback[key] = struct{}{}
	return true, nil
}

func (m *Memory) ForgetFeedback(ctx context.Context, e feedback.Event) error {
	if err := m.lock(ctx); err != nil {
		return err
	}
	defer m.mu.Unlock()
	delete(m.feedback, e.Key())
	return nil
}
// #endregion suggestions

// #region summary
func (m *Memory) Summary(ctx context.Context) (Summary, error) {
	if err := m.lock(ctx); err != nil {
		return Summary{}, err
	}
	defer m.mu.Unlock()
	sum := Summary{
		Signals:        len(m.signals),
		Actions:        len(m.actions),
		Suggestions:    len(m.suggestions),
		FeedbackEvents: len(m.feedback),
	}
	for _, r := range m.signals {
		if r.Source == signals.SourceManual {
			sum.ManualSignals++
		} else {
			sum.InferredSignals++
		}
	}
	return sum, nil
}
// #endregion summary

// #region helpers
func truncate[T any](s []T, limit int) []T {
	if limit >= 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

// reverseEqualRuns reverses each run of equal elements in place.
func reverseEqualRuns[T any](s []T, equal func(a, b T) bool) {
	for i := 0; i < len(s); {
		j := i + 1
		for j < len(s) && equal(s[i], s[j]) {
			j++
		}
		for a, b := i, j-1; a < b; a, b = a+1, b-1 {
			s[a], s[b] = s[b], s[a]
		}
		i = j
	}
}
// #endregion helpers
