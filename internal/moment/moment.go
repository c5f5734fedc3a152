// Package moment ranks the states a user may pass through before a deadline
// activity by treating the deadline as the absorbing state of a Markov chain.
package moment

import (
	"fmt"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// Find ranks every transient state by in.Score applied to the probability of
// visiting it from last's state before the deadline, the user's value for its
// activity and its expected steps to the deadline.
func Find(last activity.Occurrence, in Input) (Result, error) {
	if in.Target != nil && last.Label == in.Target.Label {
		return Result{Current: transition.State{Label: last.Label}, Now: true, Scores: []Score{}}, nil
	}

	chain, err := BuildChain(in.Clusters, in.Transitions, in.Target, in.StateCount)
	if err != nil {
		return Result{}, fmt.Errorf("find moment: %w", err)
	}

	c, err := in.Clusters.Assign(last)
	if err != nil {
		return Result{}, fmt.Errorf("find moment: %w", err)
	}
	current := transition.State{Label: last.Label, Cluster: c}
	start, ok := chain.Index(current)
	if !ok {
		return Result{}, fmt.Errorf("find moment %s: %w", current, apperrors.ErrUnknownState)
	}

	analysis, err := Analyze(chain, in.ConditionLimit)
	if err != nil {
		return Result{}, fmt.Errorf("find moment: %w", err)
	}

	score := in.Score
	if score == nil {
		score = PowerScore(1, 1)
	}
	res := Result{Current: current, Scores: make([]Score, 0, len(chain.States))}
	for i, s := range chain.States {
		visit := analysis.Visit(start, i)
		value := in.Values.Value(s.Label)
		res.Scores = append(res.Scores, Score{
			State:            s,
			VisitProbability: visit,
			ExpectedSteps:    analysis.Steps[i],
			Value:            value,
			Utility:          score(visit, value, analysis.Steps[i]),
			TimeOfDay:        in.Clusters[s.Label].TimeOfDay(s.Cluster),
		})
	}
	sort.SliceStable(res.Scores, func(i, j int) bool {
		return res.Scores[i].Utility > res.Scores[j].Utility
	})
	return res, nil
}
