package main

import (
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/store"
)

// #region values

func newValuesCmd(a *app) *cobra.Command {
	var user string

	values := &cobra.Command{Use: "values", Short: "Rate how much a user cares about each activity"}
	values.PersistentFlags().StringVar(&user, "user", "", "user whose ratings to change")
	_ = values.MarkPersistentFlagRequired("user")

	values.AddCommand(&cobra.Command{
		Use:   "set <activity> <value>",
		Short: "Set the rating of one activity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("value %q: %w", args[1], apperrors.ErrInvalidInput)
			}
			if v < 0 {
				return fmt.Errorf("value %v: %w: ratings are non-negative", v, apperrors.ErrInvalidInput)
			}
			return a.withEngine(func(st *store.Store, _ *engine.Engine) error {
				if err := st.SetUserValue(cmd.Context(), user, args[0], v); err != nil {
					return err
				}
				okColor.Fprintf(cmd.OutOrStdout(), "%s: %s = %g\n", user, args[0], v)
				return nil
			})
		},
	})

	values.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "List the rating of every known activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(func(st *store.Store, _ *engine.Engine) error {
				uv, err := st.UserValues(cmd.Context(), user, a.cfg.Moment.DefaultValue)
				if err != nil {
					return err
				}
				stats, err := st.Stats(cmd.Context(), user)
				if err != nil {
					return err
				}
				labels := stats.Labels
				for label := range uv.Values {
					if !slices.Contains(labels, label) {
						labels = append(labels, label)
					}
				}
				slices.Sort(labels)

				w := cmd.OutOrStdout()
				printHeader(w, "%-20s  %6s", "Activity", "Value")
				for _, label := range labels {
					line := fmt.Sprintf("%-20s  %6g", label, uv.Value(label))
					if _, rated := uv.Values[label]; !rated {
						dimColor.Fprintln(w, line+"  (default)")
						continue
					}
					fmt.Fprintln(w, line)
				}
				return nil
			})
		},
	})
	return values
}

// #endregion values
