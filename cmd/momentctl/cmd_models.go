package main

import (
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/store"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region recompute

func newRecomputeCmd(a *app) *cobra.Command {
	var user string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "recompute",
		Short: "Refit cluster and transition models from the full history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(func(_ *store.Store, eng *engine.Engine) error {
				report, err := eng.Recompute(cmd.Context(), user)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, report)
				}
				fmt.Fprintf(w, "Run:         %s\n", shortID(report.RunID))
				fmt.Fprintf(w, "Activities:  %d\n", report.Activities)
				fmt.Fprintf(w, "States:      %d\n", report.StateCount)
				fmt.Fprintf(w, "Checks:      %s\n\n", passLabel(report.Eval.Passed))
				printHeader(w, "%-20s  %s", "Activity", "Clusters")
				for _, label := range sortedKeys(report.Clusters) {
					fmt.Fprintf(w, "%-20s  %d\n", label, report.Clusters[label])
				}
				if !report.Eval.Passed {
					warnColor.Fprintf(w, "\n%s\n", report.Eval.Reason)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to recompute")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// #endregion recompute

// #region predict

func newPredictCmd(a *app) *cobra.Command {
	var user string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Predict the most likely next activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(func(_ *store.Store, eng *engine.Engine) error {
				res, err := eng.Predict(cmd.Context(), user)
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, res)
				}
				if !res.Available() {
					dimColor.Fprintf(w, "no prediction: %s has never been followed by another activity\n", res.Current)
					return nil
				}
				fmt.Fprintf(w, "Current: %s (%d departures)\n\n", res.Current, res.Departures)
				printHeader(w, "%-24s  %11s", "Next", "Probability")
				for _, c := range res.Candidates {
					fmt.Fprintf(w, "%-24s  %11.2f\n", c.State, c.Probability)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to predict for")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// #endregion predict

// #region moment

func newMomentCmd(a *app) *cobra.Command {
	var user, deadline, scenarioName string
	var top int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "moment",
		Short: "Rank the moments before a deadline activity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			sc, err := a.cfg.Scenario()
			if err != nil {
				return err
			}
			if scenarioName != "" {
				var ok bool
				if sc, ok = moment.ScenarioByName(scenarioName); !ok {
					return fmt.Errorf("scenario %q: %w", scenarioName, apperrors.ErrInvalidInput)
				}
			}
			return a.withEngine(func(_ *store.Store, eng *engine.Engine) error {
				res, err := eng.Moment(cmd.Context(), user, deadline, sc.Score())
				if err != nil {
					return err
				}
				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, res)
				}
				if res.Now {
					okColor.Fprintf(w, "now: %s is the current activity\n", deadline)
					return nil
				}
				fmt.Fprintf(w, "Current: %s   Deadline: %s   Scenario: %s\n\n", res.Current, deadline, sc.Name)
				printMoments(w, res.Scores, top)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to rank moments for")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline activity")
	cmd.Flags().StringVar(&scenarioName, "scenario", "", "scoring scenario: default, onlyTime or onlyValue")
	cmd.Flags().IntVar(&top, "top", 10, "rows to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("deadline")
	return cmd
}

func printMoments(w io.Writer, scores []moment.Score, top int) {
	if top > 0 && len(scores) > top {
		scores = scores[:top]
	}
	printHeader(w, "%4s  %-24s  %5s  %6s  %7s  %5s  %8s", "Rank", "State", "Time", "Visit", "Steps", "Value", "Utility")
	for i, s := range scores {
		line := fmt.Sprintf("%4d  %-24s  %5s  %6.3f  %7.2f  %5.1f  %8.3f",
			i+1, s.State, s.TimeOfDay, s.VisitProbability, s.ExpectedSteps, s.Value, s.Utility)
		switch {
		case i == 0:
			okColor.Fprintln(w, line)
		case s.VisitProbability == 0:
			dimColor.Fprintln(w, line)
		default:
			fmt.Fprintln(w, line)
		}
	}
}

// #endregion moment

// #region inspect

type inspectOutput struct {
	User        string              `json:"user"`
	Clusters    []*cluster.Model    `json:"clusters"`
	Transitions []*transition.Model `json:"transitions"`
	Eval        eval.EvalResult     `json:"eval"`
	Runs        []runRow            `json:"runs"`
}

type runRow struct {
	RunID     string `json:"run_id"`
	Kind      string `json:"kind"`
	Deadline  string `json:"deadline,omitempty"`
	Outcome   string `json:"outcome"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func newInspectCmd(a *app) *cobra.Command {
	var user, deadline string
	var last int
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show stored models, their checks and recent runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(func(st *store.Store, eng *engine.Engine) error {
				clusters, transitions, err := eng.Models(cmd.Context(), user)
				if err != nil {
					return err
				}
				if deadline == "" {
					deadline = firstKnown(clusters, a.cfg.Simulation.Deadlines)
				}
				out := inspectOutput{
					User: user,
					Eval: eval.NewEvalHarness(a.cfg.EngineConfig().Eval).Run(clusters, transitions, deadline),
				}
				for _, label := range clusters.Labels() {
					out.Clusters = append(out.Clusters, clusters[label])
					if tm, ok := transitions[label]; ok {
						out.Transitions = append(out.Transitions, tm)
					}
				}
				runs, err := logging.RecentRuns(st.DB(), user, last)
				if err != nil {
					return err
				}
				for _, r := range runs {
					out.Runs = append(out.Runs, runRow{
						RunID:     r.RunID,
						Kind:      r.Kind,
						Deadline:  r.Deadline,
						Outcome:   r.Outcome,
						Reason:    r.Reason,
						CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z"),
					})
				}

				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, out)
				}
				printInspect(w, out, transitions)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user to inspect")
	cmd.Flags().StringVar(&deadline, "deadline", "", "deadline for the matrix row check (default: first configured deadline with a model)")
	cmd.Flags().IntVar(&last, "last", 10, "recent runs to show")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func printInspect(w io.Writer, out inspectOutput, transitions transition.Set) {
	printHeader(w, "%-24s  %5s  %9s  %6s  %7s  %10s", "State", "Time", "Std (min)", "Weight", "Samples", "Departures")
	for _, m := range out.Clusters {
		for k, c := range m.Components {
			departures := 0
			if tm, ok := transitions[m.Label]; ok && k < len(tm.Clusters) {
				departures = tm.Clusters[k].Total
			}
			fmt.Fprintf(w, "%-24s  %5s  %9.1f  %6.3f  %7d  %10d\n",
				transition.State{Label: m.Label, Cluster: k}, m.TimeOfDay(k), math.Sqrt(c.Variance), c.Weight,
				m.Durations[k].Count, departures)
		}
	}

	fmt.Fprintf(w, "\nChecks: %s\n", passLabel(out.Eval.Passed))
	for _, mt := range out.Eval.Metrics {
		fmt.Fprintf(w, "  %-32s  %12.6g  %s\n", mt.Name, mt.Value, passLabel(mt.Pass))
	}

	if len(out.Runs) == 0 {
		return
	}
	fmt.Fprintln(w)
	printHeader(w, "%-8s  %-10s  %-16s  %-7s  %s", "Run", "Kind", "Deadline", "Outcome", "Time")
	for _, r := range out.Runs {
		line := fmt.Sprintf("%-8s  %-10s  %-16s  %-7s  %s", shortID(r.RunID), r.Kind, r.Deadline, r.Outcome, r.CreatedAt)
		if r.Outcome == logging.OutcomeFailed {
			errorColor.Fprintln(w, line)
			continue
		}
		fmt.Fprintln(w, line)
	}
}

func firstKnown(clusters cluster.Set, deadlines []string) string {
	for _, d := range deadlines {
		if _, ok := clusters[d]; ok {
			return d
		}
	}
	return ""
}

// #endregion inspect
