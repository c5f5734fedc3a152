package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/engine"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/store"
)

// #region import

// importRecord is one element of an import file. Start is RFC 3339; a
// timestamp without offset is read in the configured timezone.
type importRecord struct {
	User     string  `json:"user"`
	Activity string  `json:"activity"`
	Start    string  `json:"start"`
	Duration float64 `json:"duration"`
}

var localLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

func parseStart(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable start %q", apperrors.ErrInvalidInput, s)
}

// readImportFile decodes path into occurrences. user fills in records
// without one.
func readImportFile(path, user string, loc *time.Location) ([]activity.Occurrence, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var records []importRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %v", path, apperrors.ErrInvalidInput, err)
	}
	occs := make([]activity.Occurrence, len(records))
	for i, r := range records {
		start, err := parseStart(r.Start, loc)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		u := r.User
		if u == "" {
			u = user
		}
		occs[i] = activity.Occurrence{User: u, Label: r.Activity, Start: start, Duration: r.Duration}
	}
	return occs, nil
}

func importedUsers(occs []activity.Occurrence) []string {
	seen := map[string]struct{}{}
	var users []string
	for _, o := range occs {
		if _, ok := seen[o.User]; !ok {
			seen[o.User] = struct{}{}
			users = append(users, o.User)
		}
	}
	sort.Strings(users)
	return users
}

func newImportCmd(a *app) *cobra.Command {
	var user string
	var recompute bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import activities from a JSON array of {user, activity, start, duration}",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loc, err := a.cfg.Location()
			if err != nil {
				return err
			}
			occs, err := readImportFile(args[0], user, loc)
			if err != nil {
				return err
			}
			return a.withEngine(func(st *store.Store, eng *engine.Engine) error {
				n, err := st.ImportActivities(cmd.Context(), occs)
				if err != nil {
					return err
				}
				okColor.Fprintf(cmd.OutOrStdout(), "imported %d activities\n", n)
				if !recompute {
					return nil
				}
				for _, u := range importedUsers(occs) {
					report, err := eng.Recompute(cmd.Context(), u)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "recomputed %s: %d states (%s)\n",
						u, report.StateCount, passLabel(report.Eval.Passed))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user for records without one")
	cmd.Flags().BoolVar(&recompute, "recompute", false, "recompute models of every imported user")
	return cmd
}

// #endregion import

// #region stats

func newStatsCmd(a *app) *cobra.Command {
	var user string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show activity and model counts per user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEngine(func(st *store.Store, eng *engine.Engine) error {
				users := []string{user}
				if user == "" {
					var err error
					if users, err = st.Users(cmd.Context()); err != nil {
						return err
					}
				}
				rows := make([]engine.Stats, 0, len(users))
				for _, u := range users {
					s, err := eng.Stats(cmd.Context(), u)
					if err != nil {
						return err
					}
					rows = append(rows, s)
				}

				w := cmd.OutOrStdout()
				if jsonOut {
					return printJSON(w, rows)
				}
				if len(rows) == 0 {
					dimColor.Fprintln(w, "no activities recorded")
					return nil
				}
				printHeader(w, "%-16s  %10s  %6s  %s", "User", "Activities", "States", "Activities seen")
				for _, s := range rows {
					fmt.Fprintf(w, "%-16s  %10d  %6d  %s\n", s.User, s.Activities, s.Clusters, strings.Join(s.Labels, ", "))
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "limit to one user")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output as JSON")
	return cmd
}

// #endregion stats
