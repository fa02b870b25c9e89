package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/aurum-solace/go-engine/internal/replay"
)

// #region replay

func newReplayCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "replay <fixture.json>",
		Short: "Replay a recorded timeline and check every step",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := replay.LoadFixture(args[0])
			if err != nil {
				return err
			}
			results, eng, err := replay.Run(cmd.Context(), f, filepath.Dir(args[0]))
			if err != nil {
				return err
			}
			efficacy, err := eng.Store().ListEfficacy(cmd.Context())
			if err != nil {
				return fmt.Errorf("list efficacy: %w", err)
			}
			sum := replay.Summarize(results, efficacy)
			out := cmd.OutOrStdout()
			printSteps(out, results, verbose)
			printSummary(out, f.Description, sum)
			if sum.Failed > 0 {
				return fmt.Errorf("%d of %d step(s) did not match", sum.Failed, sum.TotalSteps)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every step, not only mismatches")
	return cmd
}

func printSteps(w io.Writer, results []replay.StepResult, verbose bool) {
	for _, r := range results {
		if r.OK() && !verbose {
			continue
		}
		status := "ok"
		if !r.OK() {
			status = "MISMATCH"
		}
		fmt.Fprintf(w, "step %-3d %-9s %s  %s\n", r.Index, r.Kind, r.At.Format("2006-01-02T15:04:05Z"), status)
		for _, m := range r.Mismatches {
			fmt.Fprintf(w, "    - %s\n", m)
		}
	}
}

func printSummary(w io.Writer, desc string, s replay.Summary) {
	if desc != "" {
		fmt.Fprintf(w, "%s\n", desc)
	}
	fmt.Fprintf(w, "Steps: %d | Ticks: %d | Selections: %d (explored %d) | Feedback: %d | Failed: %d\n",
		s.TotalSteps, s.Ticks, s.Selections, s.Explored, s.Feedback, s.Failed)
	for _, r := range s.Efficacy {
		fmt.Fprintf(w, "  %-24s %-40s %.3f (n=%d)\n", r.InterventionID, r.Bucket, r.Score, r.SampleCount)
	}
}

// #endregion replay

// #region export

func newExportCmd(g *globalFlags) *cobra.Command {
	var opts replay.ExportOptions
	var outPath string
	var epsilon float64
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export recent signals and actions as a replay fixture",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("epsilon") {
				opts.Epsilon = &epsilon
			}
			return withApp(cmd, g, func(ctx context.Context, a *app) error {
				opts.Behaviors = a.eng.Config().Behaviors
				f, err := replay.Export(ctx, a.store, opts)
				if err != nil {
					return err
				}
				size, err := replay.WriteFixture(f, outPath)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Wrote fixture to %s (%d bytes, %d steps)\n", outPath, size, len(f.Steps))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "", "output fixture JSON path")
	cmd.Flags().IntVar(&opts.Limit, "last", 100, "most recent signals and actions to export")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 1, "exploration seed for the replay")
	cmd.Flags().Float64Var(&epsilon, "epsilon", 0, "exploration rate for the replay (default: engine setting)")
	cmd.Flags().DurationVar(&opts.TickAfter, "tick-after", 10*time.Minute, "append a tick this long after the last entry (0: none)")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

// #endregion export
