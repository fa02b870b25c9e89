package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/metrics"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
)

// #region apply-feedback
// ApplyFeedback resolves ev to the suggestion it answers and folds it into
// that intervention's efficacy in the suggestion's bucket. Duplicates are
// reported, not applied. The efficacy write is compare-and-swap with one
// retry.
func (e *Engine) ApplyFeedback(ctx context.Context, ev feedback.Event) (FeedbackResult, error) {
	if _, err := e.learner.Reward(ev.Outcome); err != nil {
		metrics.FeedbackEvents.WithLabelValues(string(ev.Outcome), "unknown_outcome").Inc()
		return FeedbackResult{}, err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.Now()
	}
	ev.Timestamp = ev.Timestamp.UTC()
	logger := log.With().Str("component", "feedback").Str("correlation", ev.CorrelationID).
		Str("outcome", string(ev.Outcome)).Logger()

	sctx, cancel := e.withTimeout(ctx)
	link, err := e.store.ResolveCorrelation(sctx, ev.CorrelationID)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		metrics.FeedbackEvents.WithLabelValues(string(ev.Outcome), "unresolved").Inc()
		logger.Warn().Msg("feedback for unknown correlation id discarded")
		return FeedbackResult{}, fmt.Errorf("%w: %s", ErrUnresolvedFeedback, ev.CorrelationID)
	}
	if err != nil {
		return FeedbackResult{}, fmt.Errorf("%w: resolve correlation: %v", ErrDataUnavailable, err)
	}

	sctx, cancel = e.withTimeout(ctx)
	inserted, err := e.store.RecordFeedback(sctx, ev)
	cancel()
	if err != nil {
		return FeedbackResult{}, fmt.Errorf("record feedback: %w", err)
	}
	res := FeedbackResult{Link: link}
	if !inserted {
		metrics.FeedbackEvents.WithLabelValues(string(ev.Outcome), "duplicate").Inc()
		logger.Debug().Msg("duplicate feedback discarded")
		res.Duplicate = true
		return res, nil
	}

	saved, err := e.updateEfficacy(ctx, ev, link, logger)
	if err != nil {
		// An event whose efficacy update failed is not spent.
		rctx, cancel := e.withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		if ferr := e.store.ForgetFeedback(rctx, ev); ferr != nil {
			logger.Error().Err(ferr).Msg("feedback recorded but efficacy not updated")
			return res, errors.Join(err, fmt.Errorf("forget feedback: %w", ferr))
		}
		return res, err
	}

	metrics.FeedbackEvents.WithLabelValues(string(ev.Outcome), "applied").Inc()
	logger.Info().Str("intervention", link.InterventionID).Str("bucket", link.Bucket).
		Float64("score", saved.Score).Int("samples", saved.SampleCount).Msg("efficacy updated")
	res.Efficacy = saved
	return res, nil
}

func (e *Engine) updateEfficacy(ctx context.Context, ev feedback.Event, link feedback.Link, logger zerolog.Logger) (feedback.Record, error) {
	for attempt := 0; ; attempt++ {
		sctx, cancel := e.withTimeout(ctx)
		prior, _, err := e.store.GetEfficacy(sctx, link.InterventionID, link.Bucket)
		if err != nil {
			cancel()
			return feedback.Record{}, fmt.Errorf("%w: get efficacy: %v", ErrDataUnavailable, err)
		}
		next, err := e.learner.Apply(ev, link, prior)
		if err != nil {
			cancel()
			return feedback.Record{}, err
		}
		saved, err := e.store.PutEfficacy(sctx, next)
		cancel()
		if errors.Is(err, store.ErrWriteConflict) && attempt == 0 {
			metrics.WriteConflicts.WithLabelValues("efficacy").Inc()
			logger.Warn().Msg("efficacy write conflict, retrying")
			continue
		}
		if err != nil {
			if errors.Is(err, store.ErrWriteConflict) {
				metrics.WriteConflicts.WithLabelValues("efficacy").Inc()
			}
			return feedback.Record{}, fmt.Errorf("put efficacy: %w", err)
		}
		return saved, nil
	}
}
// #endregion apply-feedback
