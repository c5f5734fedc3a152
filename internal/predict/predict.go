// Package predict returns the most likely next state after an occurrence.
package predict

import (
	"fmt"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// Candidate is one predicted successor.
type Candidate struct {
	State       transition.State `json:"state"`
	Probability float64          `json:"probability"`
}

// Result holds every successor tied at the highest probability. Candidates is
// empty when the current state has never been left.
type Result struct {
	Current    transition.State `json:"current"`
	Candidates []Candidate      `json:"candidates"`
	Departures int              `json:"departures"`
}

// Available reports whether a prediction could be made.
func (r Result) Available() bool { return len(r.Candidates) > 0 }

// Top returns the first candidate in (activity, cluster) order.
func (r Result) Top() (Candidate, bool) {
	if len(r.Candidates) == 0 {
		return Candidate{}, false
	}
	return r.Candidates[0], true
}

// Next assigns last to its cluster and returns the successors of that state
// with maximal count/total. A missing transition model or a cluster that never
// departed yields an empty result, not an error.
func Next(last activity.Occurrence, cm *cluster.Model, tm *transition.Model) (Result, error) {
	c, err := cluster.Assign(last, cm)
	if err != nil {
		return Result{}, fmt.Errorf("predict: %w", err)
	}
	res := Result{Current: transition.State{Label: last.Label, Cluster: c}, Candidates: []Candidate{}}
	if tm == nil {
		return res, nil
	}
	if c >= len(tm.Clusters) {
		return Result{}, fmt.Errorf("predict %s: %w: transition model has %d clusters",
			res.Current, apperrors.ErrMalformedModel, len(tm.Clusters))
	}

	counts := tm.Clusters[c]
	res.Departures = counts.Total
	if counts.Total == 0 {
		return res, nil
	}

	best := 0
	for _, n := range counts.Next {
		best = max(best, n)
	}
	if best == 0 {
		return res, nil
	}
	p := float64(best) / float64(counts.Total)
	for _, s := range tm.Successors(c) {
		if counts.Next[s] == best {
			res.Candidates = append(res.Candidates, Candidate{State: s, Probability: p})
		}
	}
	return res, nil
}

// ForSets looks up the models for last's label before calling Next.
func ForSets(last activity.Occurrence, clusters cluster.Set, transitions transition.Set) (Result, error) {
	cm, ok := clusters[last.Label]
	if !ok {
		return Result{Current: transition.State{Label: last.Label}, Candidates: []Candidate{}}, nil
	}
	return Next(last, cm, transitions[last.Label])
}
