package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/store"
)

// #region simulate

func newSimulateCmd(a *app) *cobra.Command {
	var user string
	var runs int
	var seed uint64
	var deadlines []string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay the latest part of a user's history against models fitted on the rest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg.SimConfig()
			if cmd.Flags().Changed("runs") {
				cfg.Runs = runs
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = seed
			}
			if len(deadlines) > 0 {
				cfg.Deadlines = deadlines
			}
			return a.withEngine(func(_ *store.Store, eng *engine.Engine) error {
				report, err := eng.Simulate(cmd.Context(), user, cfg)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, report.Summaries)
				}

				fmt.Fprintf(w, "Run:       %s\n", shortID(report.RunID))
				fmt.Fprintf(w, "Training:  %d activities\n", report.Training)
				fmt.Fprintf(w, "Testing:   %d activities (%d unseen dropped)\n", report.Testing, report.Dropped)
				for _, d := range cfg.Deadlines {
					fmt.Fprintf(w, "Starts:    %-12s %d\n", d, report.StartPoints[d])
				}
				for _, d := range report.UnknownDeadlines {
					warnColor.Fprintf(w, "skipped:   %s never occurs in the training history\n", d)
				}
				fmt.Fprintln(w)

				printHeader(w, "%-12s  %-10s  %6s  %9s  %8s  %7s  %6s",
					"Deadline", "Scenario", "Runs", "Successes", "Failures", "Skipped", "Rate")
				for _, s := range report.Summaries {
					fmt.Fprintf(w, "%-12s  %-10s  %6d  %9d  %8d  %7d  ",
						s.Deadline, s.Scenario, s.Runs, s.Successes, s.Failures, s.Skipped)
					rateColor(s.Rate).Fprintf(w, "%6.2f\n", s.Rate)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to simulate")
	cmd.Flags().IntVar(&runs, "runs", 0, "random value assignments per start point (default from config)")
	cmd.Flags().Uint64Var(&seed, "seed", 0, "random seed (default from config)")
	cmd.Flags().StringSliceVar(&deadlines, "deadline", nil, "deadline activities (default from config)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output summaries as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// #endregion simulate
