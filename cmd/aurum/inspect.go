package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/feedback"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/logging"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/state"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/store"
	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/streak"
)

// #region inspect

type inspectReport struct {
	State     state.Snapshot    `json:"state"`
	Streaks   []streak.State    `json:"streaks"`
	Efficacy  []feedback.Record `json:"efficacy"`
	Summary   store.Summary     `json:"summary"`
	Decisions []logging.Entry   `json:"decisions,omitempty"`
}

func newInspectCmd(g *globalFlags) *cobra.Command {
	var last int
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show current state, streaks, learned efficacy and recent decisions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				rep, err := collect(ctx, a, last)
				if err != nil {
					return err
				}
				if jsonOut {
					return printJSON(cmd.OutOrStdout(), rep)
				}
				printReport(cmd.OutOrStdout(), rep)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&last, "last", 20, "show N most recent decisions")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON instead of tables")
	return cmd
}

func collect(ctx context.Context, a *app, last int) (inspectReport, error) {
	var rep inspectReport
	snap, err := a.eng.CurrentState(ctx)
	if err != nil {
		return rep, err
	}
	rep.State = snap

	stored, err := a.store.ListStreaks(ctx)
	if err != nil {
		return rep, fmt.Errorf("list streaks: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range stored {
		seen[s.BehaviorID] = true
	}
	for _, b := range a.eng.Config().Behaviors {
		if !seen[b] {
			stored = append(stored, streak.Zero(b))
		}
	}
	for _, s := range stored {
		view, err := a.eng.Streak(ctx, s.BehaviorID)
		if err != nil {
			return rep, err
		}
		rep.Streaks = append(rep.Streaks, view)
	}
	sort.Slice(rep.Streaks, func(i, j int) bool { return rep.Streaks[i].BehaviorID < rep.Streaks[j].BehaviorID })

	if rep.Efficacy, err = a.store.ListEfficacy(ctx); err != nil {
		return rep, fmt.Errorf("list efficacy: %w", err)
	}
	if rep.Summary, err = a.store.Summary(ctx); err != nil {
		return rep, fmt.Errorf("summary: %w", err)
	}
	if a.journal != nil && last > 0 {
		if rep.Decisions, err = a.journal.Recent(ctx, last); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// #endregion inspect

// #region tables

func printReport(w io.Writer, rep inspectReport) {
	fmt.Fprintf(w, "State @ %s  (confidence %.2f)\n", rep.State.Timestamp.Format("2006-01-02T15:04:05Z"), rep.State.Confidence)
	for _, d := range []struct {
		name string
		e    state.Estimate
	}{{"mood", rep.State.Mood}, {"energy", rep.State.Energy}, {"focus", rep.State.Focus}} {
		if !d.e.Known {
			fmt.Fprintf(w, "  %-8s unknown\n", d.name)
			continue
		}
		fmt.Fprintf(w, "  %-8s %6.2f  conf %.2f  samples %d\n", d.name, d.e.Value, d.e.Confidence, d.e.Samples)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-20s  %6s  %6s  %-7s  %6s\n", "Behavior", "Length", "Best", "Status", "Breaks")
	fmt.Fprintf(w, "%-20s+-%6s+-%6s+-%-7s+-%6s\n", "--------------------", "------", "------", "-------", "------")
	for _, s := range rep.Streaks {
		fmt.Fprintf(w, "%-20s  %6d  %6d  %-7s  %6d\n", s.BehaviorID, s.CurrentLength, s.BestLength, s.Status, s.Breaks)
	}

	fmt.Fprintln(w)
	if len(rep.Efficacy) == 0 {
		fmt.Fprintln(w, "no efficacy learned yet")
	} else {
		fmt.Fprintf(w, "%-24s  %-40s  %6s  %7s\n", "Intervention", "Bucket", "Score", "Samples")
		fmt.Fprintf(w, "%-24s+-%-40s+-%6s+-%7s\n", "------------------------", "----------------------------------------", "------", "-------")
		for _, r := range rep.Efficacy {
			fmt.Fprintf(w, "%-24s  %-40s  %6.3f  %7d\n", r.InterventionID, r.Bucket, r.Score, r.SampleCount)
		}
	}

	if len(rep.Decisions) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "%-12s  %-16s  %-10s  %-24s  %s\n", "Tick", "Behavior", "Decision", "Intervention", "Time")
		fmt.Fprintf(w, "%-12s+-%-16s+-%-10s+-%-24s+-%s\n", "------------", "----------------", "----------", "------------------------", "--------------------")
		for _, d := range rep.Decisions {
			iv := d.InterventionID
			if iv == "" {
				iv = "-"
			}
			fmt.Fprintf(w, "%-12s  %-16s  %-10s  %-24s  %s\n",
				shortID(d.TickID), d.BehaviorID, d.Decision, iv, d.CreatedAt.Format("2006-01-02T15:04:05Z"))
		}
	}

	s := rep.Summary
	fmt.Fprintf(w, "\n%d signals (%d manual, %d inferred) | %d actions | %d suggestions | %d feedback events\n",
		s.Signals, s.ManualSignals, s.InferredSignals, s.Actions, s.Suggestions, s.FeedbackEvents)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// #endregion tables
