// Package engine runs the state-to-action control loop: signal ingestion,
// streak bookkeeping, periodic selection and dispatch, and feedback learning.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/selector"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region engine
// Engine wires the pure stages to the store, catalog and dispatchers.
// Safe for concurrent use.
type Engine struct {
	cfg Config

	store      store.Store
	catalog    catalog.Source
	producer   *signals.Producer
	tracker    *streak.Tracker
	selector   *selector.Selector
	compiler   *actuation.Compiler
	learner    *feedback.Learner
	dispatcher Dispatcher
	journal    Journal

	inferrer signals.Inferrer
	clock    func() time.Time
	newID    func() string
}

// Option customizes an Engine.
type Option func(*Engine)

// WithDispatcher sets where compiled commands go. Without one, commands are
// recorded but not delivered.
func WithDispatcher(d Dispatcher) Option {
	return func(e *Engine) { e.dispatcher = d }
}

// WithJournal records every tick decision.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithInferrer sets the primary text inferrer. The local lexicon stays as
// the fallback.
func WithInferrer(inf signals.Inferrer) Option {
	return func(e *Engine) { e.inferrer = inf }
}

// WithClock replaces time.Now, for replay and tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithIDs replaces UUID generation for suggestion and tick IDs.
func WithIDs(newID func() string) Option {
	return func(e *Engine) { e.newID = newID }
}

// New creates an Engine over st and cat.
func New(st store.Store, cat catalog.Source, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if len(cfg.Behaviors) == 0 {
		cfg.Behaviors = def.Behaviors
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = def.StoreTimeout
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = def.Parallelism
	}
	if cfg.Estimator == (state.Config{}) {
		cfg.Estimator = def.Estimator
	}
	if cfg.Selector == (selector.Config{}) {
		cfg.Selector = def.Selector
	}
	if cfg.Producer == (signals.ProducerConfig{}) {
		cfg.Producer = def.Producer
	}

	e := &Engine{
		cfg:     cfg,
		store:   st,
		catalog: cat,
		tracker: streak.NewTracker(cfg.Streak),
		learner: feedback.NewLearner(cfg.Feedback),
		clock:   time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(e.clock().UnixNano())
	}
	e.selector = selector.New(cfg.Selector, seed)
	e.producer = signals.NewProducer(e.inferrer, signals.NewLexicon(), cfg.Producer)
	e.compiler = actuation.NewCompiler()
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Store returns the underlying store for read-only views.
func (e *Engine) Store() store.Store {
	return e.store
}

// Catalog returns the catalog currently in force.
func (e *Engine) Catalog() *catalog.Catalog {
	return e.catalog.Current()
}

// Now returns the engine clock.
func (e *Engine) Now() time.Time {
	return e.clock().UTC()
}

func (e *Engine) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.cfg.StoreTimeout)
}
// #endregion engine

// #region ingestion
// IngestSignal validates and stores one record. A duplicate returns
// inserted=false and no error; an invalid record is rejected with
// signals.ErrInvalidSignal and nothing is stored.
func (e *Engine) IngestSignal(ctx context.Context, r signals.Record) (bool, error) {
	if err := signals.Validate(r); err != nil {
		metrics.SignalsIngested.WithLabelValues(string(r.Source), "invalid").Inc()
		return false, err
	}
	r.Timestamp = r.Timestamp.UTC()

	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	inserted, err := e.store.PutSignal(sctx, r)
	if err != nil {
		return false, fmt.Errorf("put signal: %w", err)
	}
	result := "inserted"
	if !inserted {
		result = "duplicate"
	}
	metrics.SignalsIngested.WithLabelValues(string(r.Source), result).Inc()
	return inserted, nil
}

// IngestText infers records from free text and stores them. The returned
// records are the ones produced, whether or not each was new.
func (e *Engine) IngestText(ctx context.Context, text string, at time.Time) ([]signals.Record, error) {
	if at.IsZero() {
		at = e.Now()
	}
	start := time.Now()
	recs, err := e.producer.FromText(ctx, text, at)
	metrics.InferenceLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return recs, e.ingestAll(ctx, recs)
}

// IngestCheckIn stores the manual records of a categorical check-in.
func (e *Engine) IngestCheckIn(ctx context.Context, c signals.CheckIn, at time.Time) ([]signals.Record, error) {
	if at.IsZero() {
		at = e.Now()
	}
	recs, err := signals.FromCheckIn(c, at)
	if err != nil {
		return nil, err
	}
	return recs, e.ingestAll(ctx, recs)
}

// IngestSignals validates and stores recs in one write: every record or
// none. inserted[i] is false for a record already stored.
func (e *Engine) IngestSignals(ctx context.Context, recs []signals.Record) ([]bool, error) {
	batch := make([]signals.Record, len(recs))
	for i, r := range recs {
		if err := signals.Validate(r); err != nil {
			metrics.SignalsIngested.WithLabelValues(string(r.Source), "invalid").Inc()
			return nil, err
		}
		r.Timestamp = r.Timestamp.UTC()
		batch[i] = r
	}
	if len(batch) == 0 {
		return nil, nil
	}

	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	inserted, err := e.store.PutSignals(sctx, batch)
	if err != nil {
		return nil, fmt.Errorf("put signals: %w", err)
	}
	for i, r := range batch {
		result := "inserted"
		if !inserted[i] {
			result = "duplicate"
		}
		metrics.SignalsIngested.WithLabelValues(string(r.Source), result).Inc()
	}
	return inserted, nil
}

func (e *Engine) ingestAll(ctx context.Context, recs []signals.Record) error {
	_, err := e.IngestSignals(ctx, recs)
	return err
}
// #endregion ingestion

// #region actions
// RecordAction logs an action and advances the behaviour's streak. The
// streak write is compare-and-swap; one conflict is retried with fresh state.
// When the streak cannot be written the action is taken out of the log
// again, so resubmitting it is not mistaken for a replay.
func (e *Engine) RecordAction(ctx context.Context, a streak.Action) (ActionResult, error) {
	a.BehaviorID = strings.TrimSpace(a.BehaviorID)
	if a.BehaviorID == "" {
		return ActionResult{}, fmt.Errorf("%w: action needs a behavior_id", signals.ErrInvalidSignal)
	}
	if a.At.IsZero() {
		a.At = e.Now()
	}
	a.At = a.At.UTC()

	sctx, cancel := e.withTimeout(ctx)
	inserted, err := e.store.RecordAction(sctx, a)
	cancel()
	if err != nil {
		return ActionResult{}, fmt.Errorf("record action: %w", err)
	}

	res, err := e.advanceStreak(ctx, a, inserted)
	if err != nil && inserted {
		// The caller's context may be what failed; the rollback gets its own.
		rctx, cancel := e.withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		if ferr := e.store.ForgetAction(rctx, a); ferr != nil {
			log.Error().Err(ferr).Str("component", "streak").Str("behavior", a.BehaviorID).
				Msg("action logged but streak not advanced")
			return res, errors.Join(err, fmt.Errorf("forget action: %w", ferr))
		}
	}
	return res, err
}

func (e *Engine) advanceStreak(ctx context.Context, a streak.Action, inserted bool) (ActionResult, error) {
	for attempt := 0; ; attempt++ {
		sctx, cancel := e.withTimeout(ctx)
		prev, err := e.store.GetStreak(sctx, a.BehaviorID)
		if err != nil {
			cancel()
			return ActionResult{}, fmt.Errorf("%w: get streak: %v", ErrDataUnavailable, err)
		}
		if !inserted {
			cancel()
			metrics.StreakTransitions.WithLabelValues(string(streak.TransitionDuplicate)).Inc()
			return ActionResult{Streak: prev, Transition: streak.TransitionDuplicate, Tier: streak.Tier(prev.CurrentLength)}, nil
		}

		next, tr := e.tracker.Update(prev, a)
		if tr == streak.TransitionDuplicate {
			cancel()
			metrics.StreakTransitions.WithLabelValues(string(tr)).Inc()
			return ActionResult{Streak: prev, Transition: tr, Tier: streak.Tier(prev.CurrentLength)}, nil
		}
		saved, err := e.store.PutStreak(sctx, next)
		cancel()
		if errors.Is(err, store.ErrWriteConflict) && attempt == 0 {
			metrics.WriteConflicts.WithLabelValues("streak").Inc()
			log.Warn().Str("component", "streak").Str("behavior", a.BehaviorID).Msg("streak write conflict, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrWriteConflict) {
				metrics.WriteConflicts.WithLabelValues("streak").Inc()
			}
			return ActionResult{}, fmt.Errorf("put streak: %w", err)
		}

		metrics.StreakTransitions.WithLabelValues(string(tr)).Inc()
		ev := log.Info().Str("component", "streak").Str("behavior", a.BehaviorID).
			Str("transition", string(tr)).Int("length", saved.CurrentLength)
		if tr == streak.TransitionBroken {
			ev = ev.Int("broken_length", saved.LastBrokenLength)
		}
		ev.Msg("action recorded")
		return ActionResult{Streak: saved, Transition: tr, Tier: streak.Tier(saved.CurrentLength)}, nil
	}
}

// Streak returns the read-time view of a behaviour's streak.
func (e *Engine) Streak(ctx context.Context, behaviorID string) (streak.State, error) {
	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	st, err := e.store.GetStreak(sctx, behaviorID)
	if err != nil {
		return streak.State{}, fmt.Errorf("%w: get streak: %v", ErrDataUnavailable, err)
	}
	view, _ := e.tracker.Expire(st, e.Now())
	return view, nil
}
// #endregion actions

// #region state
// CurrentState estimates state from the signals inside the lookback window.
func (e *Engine) CurrentState(ctx context.Context) (state.Snapshot, error) {
	now := e.Now()
	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	recs, err := e.store.RecentSignals(sctx, now.Add(-e.cfg.Estimator.Lookback))
	if err != nil {
		return state.Compute(nil, now, e.cfg.Estimator), fmt.Errorf("%w: recent signals: %v", ErrDataUnavailable, err)
	}
	return state.Compute(recs, now, e.cfg.Estimator), nil
}

// Coach previews what the engine would tell the person now about
// behaviorID, without recording or dispatching anything.
func (e *Engine) Coach(ctx context.Context, behaviorID string) (CoachView, error) {
	snap, err := e.CurrentState(ctx)
	if err != nil {
		return CoachView{}, err
	}
	st, err := e.Streak(ctx, behaviorID)
	if err != nil {
		return CoachView{}, err
	}
	view := CoachView{Snapshot: snap, Streak: st, Tier: streak.Tier(st.CurrentLength)}

	cat := e.catalog.Current()
	if cat == nil {
		return view, nil
	}
	now := e.Now()
	history, _ := e.history(ctx, now)
	p := e.plan(ctx, behaviorID, snap, st, cat, history, now, "preview")
	view.InterventionID = p.result.InterventionID
	view.Message = p.message
	return view, nil
}
// #endregion state
