package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/catalog"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/engine"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/signals"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region helpers

// withApp loads config, opens the engine and runs fn against it.
func withApp(cmd *cobra.Command, g *globalFlags, fn func(ctx context.Context, a *app) error) error {
	cfg, closeLog, err := g.load()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := openApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse --at: %w", err)
	}
	return t, nil
}

// #endregion helpers

// #region tick

func newTickCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run one selection tick and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				report, err := a.eng.Tick(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), report)
			})
		},
	}
}

// #endregion tick

// #region checkin

type checkInOutput struct {
	Records    []signals.Record `json:"records"`
	Suggestion engine.CoachView `json:"suggestion"`
}

func newCheckInCmd(g *globalFlags) *cobra.Command {
	var c signals.CheckIn
	var note, behavior, at string
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record a mood check-in and print the coaching suggestion",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				recs, err := a.eng.IngestCheckIn(ctx, c, when)
				if err != nil {
					return err
				}
				if strings.TrimSpace(note) != "" {
					inferred, err := a.eng.IngestText(ctx, note, when)
					if err != nil {
						return err
					}
					recs = append(recs, inferred...)
				}
				if behavior == "" {
					behavior = a.eng.Config().Behaviors[0]
				}
				view, err := a.eng.Coach(ctx, behavior)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), checkInOutput{Records: recs, Suggestion: view})
			})
		},
	}
	cmd.Flags().StringVar(&c.Mood, "mood", "", "low | neutral | good")
	cmd.Flags().StringVar(&c.Energy, "energy", "", "low | medium | high")
	cmd.Flags().StringVar(&c.Focus, "focus", "", "drifting | ok | locked-in")
	cmd.Flags().StringVar(&note, "note", "", "free-text note, run through inference")
	cmd.Flags().StringVar(&behavior, "behavior", "", "behaviour to coach (default: first configured)")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp (default: now)")
	return cmd
}

// #endregion checkin

// #region action

func newActionCmd(g *globalFlags) *cobra.Command {
	var behavior, at string
	var failed bool
	cmd := &cobra.Command{
		Use:   "action",
		Short: "Log an action and print the streak transition",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				if behavior == "" {
					behavior = a.eng.Config().Behaviors[0]
				}
				res, err := a.eng.RecordAction(ctx, streak.Action{BehaviorID: behavior, At: when, Qualifies: !failed})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&behavior, "behavior", "", "behaviour ID (default: first configured)")
	cmd.Flags().BoolVar(&failed, "failed", false, "the action did not meet the bar")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp (default: now)")
	return cmd
}

// #endregion action

// #region feedback

func newFeedbackCmd(g *globalFlags) *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "feedback <correlation-id> <outcome>",
		Short: "Apply delayed feedback to an issued command",
		Long:  "Outcome is one of accepted, ignored, reported_helpful, reported_unhelpful.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := parseAt(at)
			if err != nil {
				return err
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				if when.IsZero() {
					when = a.eng.Now()
				}
				res, err := a.eng.ApplyFeedback(ctx, feedback.Event{
					CorrelationID: args[0],
					Outcome:       feedback.Outcome(args[1]),
					Timestamp:     when,
				})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 timestamp (default: now)")
	return cmd
}

// #endregion feedback

// #region catalog

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Work with intervention catalogs",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate <file>",
		Short: "Check a catalog file against the schema and semantic rules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := catalog.LoadFile(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok: %s (version %d, %d interventions)\n", args[0], c.Version, len(c.Interventions))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "default",
		Short: "Print the built-in catalog as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := catalog.Default()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	})
	return cmd
}

// #endregion catalog
