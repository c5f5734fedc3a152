package moment

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region chain
// Chain is the transition matrix of one user with the deadline activity's
// clusters merged into a single absorbing state at the last index.
type Chain struct {
	// States lists the transient states by matrix index.
	States []transition.State
	Target string
	P      *mat.Dense

	index map[transition.State]int
}

// Absorbing is the index of the merged deadline state.
func (c *Chain) Absorbing() int { return len(c.States) }

// Index returns the matrix index of s. Every cluster of the deadline activity
// maps to Absorbing.
func (c *Chain) Index(s transition.State) (int, bool) {
	if s.Label == c.Target {
		return c.Absorbing(), true
	}
	i, ok := c.index[s]
	return i, ok
}

// BuildChain enumerates states with labels sorted and clusters ascending,
// then fills P from transition counts. Rows of the deadline activity are
// replaced by the identity row.
func BuildChain(clusters cluster.Set, transitions transition.Set, target *cluster.Model, stateCount int) (*Chain, error) {
	if target == nil {
		return nil, fmt.Errorf("build chain: %w: no deadline model", apperrors.ErrMalformedModel)
	}
	if cm, ok := clusters[target.Label]; !ok || cm.K() != target.K() {
		return nil, fmt.Errorf("build chain: %w: deadline %q not in cluster set",
			apperrors.ErrUnknownState, target.Label)
	}
	if got := clusters.StateCount(); got != stateCount {
		return nil, fmt.Errorf("build chain: %w: state count %d, cluster set has %d",
			apperrors.ErrMalformedModel, stateCount, got)
	}

	c := &Chain{Target: target.Label, index: make(map[transition.State]int)}
	for _, label := range clusters.Labels() {
		if label == target.Label {
			continue
		}
		for k := range clusters[label].K() {
			s := transition.State{Label: label, Cluster: k}
			c.index[s] = len(c.States)
			c.States = append(c.States, s)
		}
	}

	n := stateCount - target.K() + 1
	c.P = mat.NewDense(n, n, nil)
	targetK := float64(target.K())
	for _, label := range clusters.Labels() {
		tm, ok := transitions[label]
		if !ok {
			continue
		}
		scale := 1.0
		if label == target.Label {
			scale = targetK
		}
		for k, counts := range tm.Clusters {
			if counts.Total == 0 {
				continue
			}
			row, ok := c.Index(transition.State{Label: label, Cluster: k})
			if !ok {
				return nil, fmt.Errorf("build chain: %w: %s has no cluster", apperrors.ErrMalformedModel,
					transition.State{Label: label, Cluster: k})
			}
			for s, cnt := range counts.Next {
				col, ok := c.Index(s)
				if !ok {
					return nil, fmt.Errorf("build chain: %w: successor %s has no cluster",
						apperrors.ErrMalformedModel, s)
				}
				c.P.Set(row, col, c.P.At(row, col)+float64(cnt)/float64(counts.Total)/scale)
			}
		}
	}

	a := c.Absorbing()
	for j := range n {
		c.P.Set(a, j, 0)
	}
	c.P.Set(a, a, 1)
	return c, nil
}

// RowSum returns the total outgoing probability of row i.
func (c *Chain) RowSum(i int) float64 {
	return mat.Sum(c.P.RowView(i))
}

// #endregion chain
