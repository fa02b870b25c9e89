package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/config"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/dispatch"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/inference"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
)

// #region app

// app is the wired engine and everything it owns.
type app struct {
	cfg     *config.Config
	store   store.Store
	journal *logging.Journal
	watcher *catalog.Watcher
	fanout  *dispatch.Fanout
	redis   *redis.Client
	eng     *engine.Engine

	closers []func() error
}

// openApp opens the store, catalog, inference client and command sinks
// described by cfg. Sinks that need a running service (the WebSocket hub)
// are added by the caller through a.fanout before the first tick.
func openApp(ctx context.Context, cfg *config.Config, opts ...engine.Option) (a *app, err error) {
	a = &app{cfg: cfg, fanout: dispatch.NewFanout()}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	switch cfg.Store.Driver {
	case "memory":
		a.store = store.NewMemory()
	default:
		sq, err := store.NewSQLite(cfg.Store.Path)
		if err != nil {
			return a, fmt.Errorf("open store: %w", err)
		}
		a.store = sq
		a.closers = append(a.closers, sq.Close)
		j, err := logging.NewJournal(sq.DB())
		if err != nil {
			return a, fmt.Errorf("open journal: %w", err)
		}
		a.journal = j
	}

	var source catalog.Source
	if cfg.Catalog.Watch && cfg.Catalog.Path != "" {
		w, err := catalog.NewWatcher(cfg.Catalog.Path, func(c *catalog.Catalog) {
			log.Info().Str("component", "catalog").Int("interventions", len(c.Interventions)).Msg("catalog reloaded")
		})
		if err != nil {
			return a, fmt.Errorf("load catalog: %w", err)
		}
		a.watcher = w
		source = w
	} else {
		c, err := catalog.Load(cfg.Catalog.Path)
		if err != nil {
			return a, fmt.Errorf("load catalog: %w", err)
		}
		source = catalog.Static{C: c}
	}

	if cfg.Dispatch.Log {
		a.fanout.Add("log", dispatch.LogDispatcher{})
	}
	if cfg.Dispatch.Redis.Enabled {
		rdb, err := dispatch.NewRedisClient(ctx, cfg.Dispatch.Redis.ToRedisConfig())
		if err != nil {
			return a, err
		}
		a.redis = rdb
		a.closers = append(a.closers, rdb.Close)
		a.fanout.Add("redis", dispatch.NewRedisStream(rdb, cfg.Dispatch.Redis.ToRedisConfig()))
	}

	engCfg, err := cfg.ToEngineConfig()
	if err != nil {
		return a, err
	}
	all := []engine.Option{engine.WithDispatcher(a.fanout)}
	if a.journal != nil {
		all = append(all, engine.WithJournal(a.journal))
	}
	if cfg.Inference.Address != "" {
		client, err := inference.NewClient(cfg.Inference.Address, cfg.Inference.Timeout)
		if err != nil {
			return a, err
		}
		a.closers = append(a.closers, client.Close)
		all = append(all, engine.WithInferrer(client))
	}
	all = append(all, opts...)

	a.eng = engine.New(a.store, source, engCfg, all...)
	log.Debug().Str("store", cfg.Store.Driver).Int("sinks", a.fanout.Len()).
		Str("inference", cfg.Inference.Address).Msg("engine ready")
	return a, nil
}

// applyFeedback adapts the engine to the dispatch feedback hooks.
func (a *app) applyFeedback(ctx context.Context, ev feedback.Event) error {
	_, err := a.eng.ApplyFeedback(ctx, ev)
	return err
}

// Close releases everything openApp acquired, newest first.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// #endregion app
