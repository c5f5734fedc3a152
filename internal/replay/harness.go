// Package replay evaluates moment recommendations offline by replaying the
// most recent part of a user's history against models fitted on the rest.
package replay

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region cursor
// Cursor walks the unseen part of a history, folding every step into its
// transition models.
type Cursor struct {
	clusters    cluster.Set
	transitions transition.Set
	last        activity.Occurrence
	future      []activity.Occurrence
	pos         int
}

// NewCursor starts at last with future still unseen. transitions is owned by
// the cursor from here on.
func NewCursor(clusters cluster.Set, transitions transition.Set, last activity.Occurrence, future []activity.Occurrence) *Cursor {
	return &Cursor{clusters: clusters, transitions: transitions, last: last, future: future, pos: -1}
}

// Last is the most recently observed occurrence.
func (c *Cursor) Last() activity.Occurrence { return c.last }

// Position is the index of Last in the future sequence, -1 before the first step.
func (c *Cursor) Position() int { return c.pos }

// Remaining is the number of unseen occurrences.
func (c *Cursor) Remaining() int { return len(c.future) - c.pos - 1 }

// Transitions exposes the models as updated so far.
func (c *Cursor) Transitions() transition.Set { return c.transitions }

// State is the (activity, cluster) state of Last.
func (c *Cursor) State() (transition.State, error) {
	k, err := c.clusters.Assign(c.last)
	if err != nil {
		return transition.State{}, err
	}
	return transition.State{Label: c.last.Label, Cluster: k}, nil
}

// Advance observes the next occurrence.
func (c *Cursor) Advance() error {
	if c.Remaining() == 0 {
		return fmt.Errorf("advance: %w: no unseen activities", apperrors.ErrInsufficientData)
	}
	next := c.future[c.pos+1]
	if err := c.transitions.Advance(c.clusters, c.last, next); err != nil {
		return err
	}
	c.last = next
	c.pos++
	return nil
}

// Fork copies the cursor with its own transition models.
func (c *Cursor) Fork() *Cursor {
	cp := *c
	cp.transitions = c.transitions.Clone()
	return &cp
}

func (c *Cursor) deadlineAhead(deadline string, lookahead int) bool {
	for i := c.pos + 1; i < len(c.future) && i <= c.pos+lookahead; i++ {
		if c.future[i].Label == deadline {
			return true
		}
	}
	return false
}

// FastForward advances until Last is an occurrence of deadline with none in
// the next lookahead activities. It stays put if Last already qualifies and
// reports false once fewer than minFuture activities are left.
func (c *Cursor) FastForward(deadline string, lookahead, minFuture int) (bool, error) {
	for first := true; ; first = false {
		if c.Remaining() < minFuture {
			return false, nil
		}
		if !first {
			if err := c.Advance(); err != nil {
				return false, err
			}
		}
		if c.last.Label == deadline && !c.deadlineAhead(deadline, lookahead) {
			return true, nil
		}
	}
}

// #endregion cursor

// #region run
// RunScenario replays from a fork of c. After every step the moments before
// deadline are ranked again; the run succeeds when the next observed state is
// the one ranked first and is missed when the deadline arrives first.
func RunScenario(c *Cursor, deadline string, sc moment.Scenario, values moment.UserValues, conditionLimit float64) RunResult {
	w := c.Fork()
	res := RunResult{Deadline: deadline, Scenario: sc.Name, Start: c.Position()}
	target := w.clusters[deadline]
	stateCount := w.clusters.StateCount()

	var top *moment.Score
	for w.Remaining() > 0 {
		if err := w.Advance(); err != nil {
			res.Outcome, res.Reason = OutcomeError, err.Error()
			return res
		}
		res.Steps++
		if w.last.Label == deadline {
			res.Outcome = OutcomeMissed
			res.Moment = transition.State{Label: deadline}
			return res
		}
		cur, err := w.State()
		if err != nil {
			res.Outcome, res.Reason = OutcomeError, err.Error()
			return res
		}
		if top != nil && top.State == cur {
			res.Outcome = OutcomeSuccess
			res.Moment = cur
			res.Utility = top.Utility
			return res
		}

		ranked, err := moment.Find(w.last, moment.Input{
			Clusters:       w.clusters,
			Transitions:    w.transitions,
			StateCount:     stateCount,
			Target:         target,
			Values:         values,
			Score:          sc.Score(),
			ConditionLimit: conditionLimit,
		})
		if err != nil {
			res.Outcome, res.Reason = OutcomeError, err.Error()
			return res
		}
		top = nil
		if best, ok := ranked.Best(); ok {
			top = &best
		}
	}
	res.Outcome = OutcomeExhausted
	res.Reason = "future exhausted"
	return res
}

// #endregion run

// #region simulate
// Simulate splits occs chronologically, fits models on the training part and
// replays the rest once per deadline. At every start point it runs cfg.Runs
// random value assignments through every scenario.
func Simulate(ctx context.Context, occs []activity.Occurrence, cfg SimConfig) (SimReport, error) {
	split := activity.SplitChronological(occs, cfg.TrainRatio)
	if len(split.Training) < 2 {
		return SimReport{}, fmt.Errorf("simulate: %w: %d training activities", apperrors.ErrInsufficientData, len(split.Training))
	}
	report := SimReport{
		User:        split.Training[0].User,
		Training:    len(split.Training),
		Testing:     len(split.Testing),
		StartPoints: make(map[string]int, len(cfg.Deadlines)),
	}

	clusters, err := cluster.FitAll(ctx, split.Training, cfg.Cluster, 0)
	if err != nil {
		return report, fmt.Errorf("simulate: %w", err)
	}
	transitions, err := transition.Build(split.Training, clusters)
	if err != nil {
		return report, fmt.Errorf("simulate: %w", err)
	}

	future := make([]activity.Occurrence, 0, len(split.Testing))
	for _, o := range split.Testing {
		if _, ok := clusters[o.Label]; !ok {
			report.Dropped++
			continue
		}
		future = append(future, o)
	}

	scenarios := cfg.Scenarios
	if len(scenarios) == 0 {
		scenarios = moment.Scenarios()
	}
	labels := clusters.Labels()
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	last := split.Training[len(split.Training)-1]

	for _, deadline := range cfg.Deadlines {
		if _, ok := clusters[deadline]; !ok {
			report.UnknownDeadlines = append(report.UnknownDeadlines, deadline)
			continue
		}
		cur := NewCursor(clusters, transitions.Clone(), last, future)
		for {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("simulate %s: %w", deadline, err)
			}
			ok, err := cur.FastForward(deadline, cfg.Lookahead, cfg.MinFuture)
			if err != nil {
				return report, fmt.Errorf("simulate %s: %w", deadline, err)
			}
			if !ok {
				break
			}
			report.StartPoints[deadline]++

			for run := 0; run < cfg.Runs; run++ {
				values := randomValues(rng, labels, cfg.MaxValue)
				for _, sc := range scenarios {
					r := RunScenario(cur, deadline, sc, values, cfg.ConditionLimit)
					r.Run = run
					report.Results = append(report.Results, r)
				}
			}

			// move past this occurrence before looking for the next one
			if cur.Remaining() == 0 {
				break
			}
			if err := cur.Advance(); err != nil {
				return report, fmt.Errorf("simulate %s: %w", deadline, err)
			}
		}
	}

	report.Summaries = Summarize(report.Results)
	return report, nil
}

func randomValues(rng *rand.Rand, labels []string, maxValue int) moment.UserValues {
	values := make(map[string]float64, len(labels))
	for _, l := range labels {
		values[l] = float64(rng.IntN(maxValue + 1))
	}
	return moment.NewUserValues(values)
}

// #endregion simulate

// #region summary
// Summarize groups results by deadline and scenario in order of first
// appearance.
func Summarize(results []RunResult) []ScenarioSummary {
	type key struct{ deadline, scenario string }
	index := make(map[key]int)
	var out []ScenarioSummary
	for _, r := range results {
		k := key{r.Deadline, r.Scenario}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, ScenarioSummary{Deadline: r.Deadline, Scenario: r.Scenario})
		}
		s := &out[i]
		s.Runs++
		switch r.Outcome {
		case OutcomeSuccess:
			s.Successes++
		case OutcomeMissed:
			s.Failures++
		default:
			s.Skipped++
		}
	}
	for i := range out {
		if decided := out[i].Successes + out[i].Failures; decided > 0 {
			out[i].Rate = float64(out[i].Successes) / float64(decided)
		}
	}
	return out
}

// Record converts a summary for the run log.
func (s ScenarioSummary) Record() logging.SimulationRecord {
	return logging.SimulationRecord{
		Deadline:  s.Deadline,
		Scenario:  s.Scenario,
		Runs:      s.Runs,
		Successes: s.Successes,
		Failures:  s.Failures,
		Skipped:   s.Skipped,
		Rate:      s.Rate,
	}
}

// #endregion summary
