package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/actuation"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/selector"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region tick
// Tick estimates state once, then evaluates every configured behaviour in
// parallel: select, compile, record, dispatch. Store read failures degrade
// to unknown state, a zero streak or the neutral prior. The returned error
// is non-nil only when ctx ends or no catalog is loaded; per-behaviour
// failures are in the report.
func (e *Engine) Tick(ctx context.Context) (TickReport, error) {
	start := time.Now()
	now := e.Now()
	report := TickReport{TickID: e.newID(), At: now}
	metrics.Ticks.Inc()
	defer func() { metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	cat := e.catalog.Current()
	if cat == nil {
		return report, fmt.Errorf("tick: no catalog loaded")
	}

	snap, err := e.CurrentState(ctx)
	if err != nil {
		report.Degraded = append(report.Degraded, "signals")
		metrics.Degraded.WithLabelValues("signals").Inc()
		log.Warn().Err(err).Str("component", "tick").Msg("state estimate degraded to unknown")
	}
	report.Snapshot = snap

	sctx, cancel := e.withTimeout(ctx)
	if err := e.store.PutSnapshot(sctx, snap); err != nil {
		report.Degraded = append(report.Degraded, "snapshot")
		log.Warn().Err(err).Str("component", "tick").Msg("snapshot not stored")
	}
	cancel()

	history, err := e.history(ctx, now)
	if err != nil {
		report.Degraded = append(report.Degraded, "history")
		metrics.Degraded.WithLabelValues("history").Inc()
		log.Warn().Err(err).Str("component", "tick").Msg("suggestion history unavailable")
	}

	// A plain Group: one behaviour's failure must not cancel the others.
	var g errgroup.Group
	g.SetLimit(e.cfg.Parallelism)
	report.Behaviors = make([]BehaviorReport, len(e.cfg.Behaviors))
	for i, id := range e.cfg.Behaviors {
		g.Go(func() error {
			report.Behaviors[i] = e.tickBehavior(ctx, report.TickID, id, snap, cat, history, now)
			return nil
		})
	}
	_ = g.Wait()

	for _, b := range report.Behaviors {
		metrics.Decisions.WithLabelValues(string(b.Decision), metrics.Bool(b.Explored)).Inc()
	}
	log.Info().Str("component", "tick").Str("tick", report.TickID).
		Float64("confidence", snap.Confidence).Int("behaviors", len(report.Behaviors)).
		Int("failed", len(report.Failed())).Msg("tick complete")
	return report, ctx.Err()
}

// history loads the selections that cooldown and exposure counting look at.
func (e *Engine) history(ctx context.Context, now time.Time) ([]selector.Exposure, error) {
	window := e.cfg.Selector.ExposureWindow
	if e.cfg.Selector.Cooldown > window {
		window = e.cfg.Selector.Cooldown
	}
	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	sugg, err := e.store.RecentSuggestions(sctx, now.Add(-window))
	if err != nil {
		return nil, fmt.Errorf("%w: recent suggestions: %v", ErrDataUnavailable, err)
	}
	out := make([]selector.Exposure, len(sugg))
	for i, s := range sugg {
		out[i] = selector.Exposure{InterventionID: s.InterventionID, BehaviorID: s.BehaviorID, At: s.IssuedAt}
	}
	return out, nil
}
// #endregion tick

// #region plan
type decisionPlan struct {
	streak   streak.State
	result   selector.Result
	cmds     []actuation.Command
	skipped  []actuation.Skipped
	message  string
	degraded []string
}

// plan selects and compiles for one behaviour without side effects on the
// store.
func (e *Engine) plan(ctx context.Context, behaviorID string, snap state.Snapshot, st streak.State,
	cat *catalog.Catalog, history []selector.Exposure, now time.Time, suggestionID string) decisionPlan {
	p := decisionPlan{streak: st}
	efficacyDegraded := false
	lookup := func(interventionID, bucket string) (feedback.Record, bool) {
		sctx, cancel := e.withTimeout(ctx)
		defer cancel()
		rec, ok, err := e.store.GetEfficacy(sctx, interventionID, bucket)
		if err != nil {
			efficacyDegraded = true
			return feedback.Record{}, false
		}
		return rec, ok
	}

	p.result = e.selector.Select(selector.Input{
		Snapshot:   snap,
		BehaviorID: behaviorID,
		Streak:     st,
		Catalog:    cat,
		Efficacy:   lookup,
		History:    history,
		Now:        now,
	})
	if efficacyDegraded {
		p.degraded = append(p.degraded, "efficacy")
		metrics.Degraded.WithLabelValues("efficacy").Inc()
	}
	if p.result.Spec == nil {
		return p
	}

	p.cmds, p.skipped = e.compiler.Compile(*p.result.Spec, snap, actuation.Meta{
		SuggestionID: suggestionID,
		BehaviorID:   behaviorID,
		IssuedAt:     now,
		Streak:       st,
	})
	p.message = p.result.Spec.Message
	for _, c := range p.cmds {
		if text, ok := c.Payload["text"].(string); ok && text != "" {
			p.message = text
			break
		}
	}
	return p
}
// #endregion plan

// #region tick-behavior
func (e *Engine) tickBehavior(ctx context.Context, tickID, behaviorID string, snap state.Snapshot,
	cat *catalog.Catalog, history []selector.Exposure, now time.Time) BehaviorReport {
	rep := BehaviorReport{BehaviorID: behaviorID}
	logger := log.With().Str("component", "tick").Str("tick", tickID).Str("behavior", behaviorID).Logger()

	sctx, cancel := e.withTimeout(ctx)
	st, err := e.store.GetStreak(sctx, behaviorID)
	cancel()
	if err != nil {
		st = streak.Zero(behaviorID)
		rep.Degraded = append(rep.Degraded, "streak")
		metrics.Degraded.WithLabelValues("streak").Inc()
		logger.Warn().Err(err).Msg("streak unavailable, using zero streak")
	}
	st, _ = e.tracker.Expire(st, now)

	suggestionID := e.newID()
	p := e.plan(ctx, behaviorID, snap, st, cat, history, now, suggestionID)
	rep.Streak = st
	rep.Bucket = p.result.Bucket
	rep.Explored = p.result.Explored
	rep.Reason = p.result.Reason
	rep.Degraded = append(rep.Degraded, p.degraded...)

	if p.result.Spec == nil {
		rep.Decision = logging.DecisionNone
		e.journalDecision(ctx, tickID, rep, snap, p)
		return rep
	}

	rep.InterventionID = p.result.InterventionID
	rep.Message = p.message
	rep.Skipped = p.skipped
	for _, s := range p.skipped {
		metrics.CommandsSkipped.WithLabelValues(s.Device).Inc()
		logger.Warn().Str("device", s.Device).Str("param", s.Param).Str("reason", s.Reason).Msg("command skipped")
	}

	if ctx.Err() != nil {
		return e.abandon(ctx, tickID, rep, snap, p)
	}

	ids := make([]string, len(p.cmds))
	for i, c := range p.cmds {
		ids[i] = c.CorrelationID
	}
	sctx, cancel = e.withTimeout(ctx)
	err = e.store.RecordSuggestion(sctx, store.Suggestion{
		ID:             suggestionID,
		BehaviorID:     behaviorID,
		InterventionID: p.result.InterventionID,
		Bucket:         p.result.Bucket,
		Explored:       p.result.Explored,
		Message:        p.message,
		IssuedAt:       now,
		CorrelationIDs: ids,
	})
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return e.abandon(ctx, tickID, rep, snap, p)
		}
		rep.Decision = logging.DecisionFailed
		rep.Err = fmt.Errorf("record suggestion: %w", err)
		rep.Error = rep.Err.Error()
		logger.Error().Err(err).Msg("suggestion not recorded")
		e.journalDecision(ctx, tickID, rep, snap, p)
		return rep
	}

	rep.Decision = logging.DecisionSelected
	rep.SuggestionID = suggestionID
	rep.Commands = p.cmds
	for _, c := range p.cmds {
		metrics.CommandsIssued.WithLabelValues(c.Device).Inc()
	}

	if e.dispatcher != nil && len(p.cmds) > 0 {
		if err := e.dispatcher.Dispatch(ctx, p.cmds); err != nil {
			rep.DispatchError = err.Error()
			logger.Warn().Err(err).Msg("dispatch failed")
		}
	}

	logger.Info().Str("intervention", rep.InterventionID).Str("bucket", rep.Bucket).
		Bool("explored", rep.Explored).Int("commands", len(rep.Commands)).Msg("intervention selected")
	e.journalDecision(ctx, tickID, rep, snap, p)
	return rep
}

func (e *Engine) abandon(ctx context.Context, tickID string, rep BehaviorReport, snap state.Snapshot, p decisionPlan) BehaviorReport {
	rep.Decision = logging.DecisionAbandoned
	rep.Reason = "context ended before the suggestion was recorded"
	log.Info().Str("component", "tick").Str("behavior", rep.BehaviorID).Msg("decision abandoned")
	e.journalDecision(context.WithoutCancel(ctx), tickID, rep, snap, p)
	return rep
}
// #endregion tick-behavior

// #region journal
type decisionInputs struct {
	Snapshot state.Snapshot  `json:"snapshot"`
	Streak   streak.State    `json:"streak"`
	Result   selector.Result `json:"result"`
}

func (e *Engine) journalDecision(ctx context.Context, tickID string, rep BehaviorReport, snap state.Snapshot, p decisionPlan) {
	if e.journal == nil {
		return
	}
	inputs, err := json.Marshal(decisionInputs{Snapshot: snap, Streak: p.streak, Result: p.result})
	if err != nil {
		inputs = nil
	}
	reason := rep.Reason
	if rep.Error != "" {
		reason = rep.Error
	}
	sctx, cancel := e.withTimeout(ctx)
	defer cancel()
	err = e.journal.Log(sctx, logging.Entry{
		TickID:         tickID,
		BehaviorID:     rep.BehaviorID,
		Decision:       rep.Decision,
		InterventionID: rep.InterventionID,
		SuggestionID:   rep.SuggestionID,
		Bucket:         rep.Bucket,
		Explored:       rep.Explored,
		Reason:         reason,
		InputsJSON:     string(inputs),
		CreatedAt:      e.Now(),
	})
	if err != nil {
		log.Warn().Err(err).Str("component", "journal").Msg("decision not journaled")
	}
}
// #endregion journal
