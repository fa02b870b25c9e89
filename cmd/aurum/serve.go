package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/dispatch"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/httpapi"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/scheduler"
)

// #region serve

func newServeCmd(g *globalFlags) *cobra.Command {
	var addr string
	var noSchedule bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, device hub, feedback consumer and tick schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, closeLog, err := g.load()
			if err != nil {
				return err
			}
			defer closeLog()
			if addr != "" {
				cfg.HTTP.Addr = addr
			}
			if noSchedule {
				cfg.Scheduler.Enabled = false
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(ctx, a)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides http.addr)")
	cmd.Flags().BoolVar(&noSchedule, "no-schedule", false, "disable the periodic tick")
	return cmd
}

// serve runs every long-lived component until ctx ends or one of them fails.
func serve(ctx context.Context, a *app) error {
	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			return err
		}
		defer a.watcher.Stop()
	}

	var sched *scheduler.Scheduler
	if a.cfg.Scheduler.Enabled {
		s, err := scheduler.New(a.eng, a.cfg.Scheduler.ToSchedulerConfig(), func(r engine.TickReport, err error) {
			if failed := r.Failed(); len(failed) > 0 {
				log.Warn().Str("component", "scheduler").Str("tick", r.TickID).Int("failed", len(failed)).Msg("tick had failures")
			}
		})
		if err != nil {
			return err
		}
		sched = s
	}

	g, gctx := errgroup.WithContext(ctx)

	var opts []httpapi.Option
	if a.cfg.Dispatch.WebSocket {
		hub := dispatch.NewHub(dispatch.DefaultHubConfig(), a.applyFeedback)
		a.fanout.Add("websocket", hub)
		opts = append(opts, httpapi.WithDevices(hub))
		// Hijacked connections outlive http.Server.Shutdown.
		g.Go(func() error {
			<-gctx.Done()
			return hub.Close()
		})
	}

	if a.redis != nil {
		consumer := dispatch.NewFeedbackConsumer(a.redis, a.cfg.Dispatch.Redis.ToRedisConfig(), a.applyFeedback)
		g.Go(func() error { return consumer.Run(gctx) })
	}

	if sched != nil {
		sched.Start()
		defer sched.Stop()
	}

	srv := httpapi.New(a.eng, opts...)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, a.cfg.HTTP.Addr, a.cfg.HTTP.ShutdownTimeout)
	})

	err := g.Wait()
	log.Info().Str("component", "serve").Msg("stopped")
	return err
}

// #endregion serve
