// Package scheduler runs the engine tick on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
)

// #region types

// Ticker is the piece of the engine the scheduler drives.
type Ticker interface {
	Tick(ctx context.Context) (engine.TickReport, error)
}

// Config controls the schedule.
type Config struct {
	// Spec is a standard 5-field cron expression or a descriptor such as
	// "@hourly" or "@every 15m".
	Spec string
	// Timeout bounds one tick; 0 leaves it unbounded.
	Timeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{Spec: "@every 15m", Timeout: time.Minute}
}

// #endregion types

// #region scheduler

// Scheduler fires Tick on schedule. A tick still running when the next one
// is due makes the next one skip.
type Scheduler struct {
	cfg    Config
	cron   *cron.Cron
	ticker Ticker
	onTick func(engine.TickReport, error)

	ctx    context.Context
	cancel context.CancelFunc
	runs   atomic.Int64
}

// New validates cfg.Spec and registers the tick job. onTick, if non-nil,
// receives every tick result.
func New(t Ticker, cfg Config, onTick func(engine.TickReport, error)) (*Scheduler, error) {
	if cfg.Spec == "" {
		cfg.Spec = DefaultConfig().Spec
	}
	logger := cronLogger{log.With().Str("component", "scheduler").Logger()}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cfg: cfg, cron: c, ticker: t, onTick: onTick, ctx: ctx, cancel: cancel}
	if _, err := c.AddFunc(cfg.Spec, s.run); err != nil {
		cancel()
		return nil, fmt.Errorf("schedule %q: %w", cfg.Spec, err)
	}
	return s, nil
}

// Start begins firing ticks. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Str("component", "scheduler").Str("spec", s.cfg.Spec).Msg("tick schedule started")
}

// Stop ends the schedule, cancels a tick in flight and waits for it.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
}

// Runs returns how many ticks have completed.
func (s *Scheduler) Runs() int64 {
	return s.runs.Load()
}

// Next returns when the next tick is due, or the zero time before Start.
func (s *Scheduler) Next() time.Time {
	entries := s.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (s *Scheduler) run() {
	ctx := s.ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	report, err := s.ticker.Tick(ctx)
	s.runs.Add(1)
	if err != nil {
		log.Warn().Err(err).Str("component", "scheduler").Str("tick", report.TickID).Msg("scheduled tick ended early")
	}
	if s.onTick != nil {
		s.onTick(report, err)
	}
}

// #endregion scheduler

// #region logger

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// #endregion logger
