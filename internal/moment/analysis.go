package moment

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
)

// leakTolerance is how far below 1 a transient row's mass inside Q must fall
// for the row to count as leaving the transient block.
const leakTolerance = 1e-12

// #region analysis
// Analysis holds the absorbing-chain quantities of a Chain.
type Analysis struct {
	// N is the fundamental matrix (I−Q)⁻¹.
	N *mat.Dense
	// Steps[i] is the expected number of steps from i to absorption.
	Steps []float64
	// H[i][j] is the probability of ever visiting j from i; H[i][i] is 1.
	H *mat.Dense
	// Return[j] is the probability of coming back to j after leaving it.
	Return []float64
}

// Visit returns H[from][to].
func (a *Analysis) Visit(from, to int) float64 { return a.H.At(from, to) }

// Analyze computes N, the step vector and the visit matrix. It fails with
// ErrNoPathToAbsorption when some transient state cannot leave the transient
// block or I−Q is too ill-conditioned to invert.
func Analyze(c *Chain, conditionLimit float64) (*Analysis, error) {
	if conditionLimit <= 0 {
		conditionLimit = DefaultConditionLimit
	}
	m := len(c.States)
	if m == 0 {
		return &Analysis{}, nil
	}

	q := c.P.Slice(0, m, 0, m)
	if i, ok := trapped(q, m); ok {
		return nil, fmt.Errorf("analyze %s: %w: deadline %q is unreachable",
			c.States[i], apperrors.ErrNoPathToAbsorption, c.Target)
	}

	iq := mat.NewDense(m, m, nil)
	for i := range m {
		for j := range m {
			v := -q.At(i, j)
			if i == j {
				v++
			}
			iq.Set(i, j, v)
		}
	}
	if cond := mat.Cond(iq, 2); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > conditionLimit {
		return nil, fmt.Errorf("analyze: %w: cond(I-Q) = %g exceeds %g",
			apperrors.ErrNoPathToAbsorption, cond, conditionLimit)
	}
	var n mat.Dense
	if err := n.Inverse(iq); err != nil {
		return nil, fmt.Errorf("analyze: %w: %v", apperrors.ErrNoPathToAbsorption, err)
	}

	a := &Analysis{
		N:      &n,
		Steps:  make([]float64, m),
		H:      mat.NewDense(m, m, nil),
		Return: make([]float64, m),
	}
	for i := range m {
		a.Steps[i] = mat.Sum(n.RowView(i))
	}
	for j := range m {
		njj := n.At(j, j)
		a.Return[j] = (njj - 1) / njj
		for i := range m {
			if i == j {
				a.H.Set(i, j, 1)
				continue
			}
			a.H.Set(i, j, n.At(i, j)/njj)
		}
	}
	return a, nil
}

// trapped returns the first transient state from which no state whose row
// leaves the transient block can be reached.
func trapped(q mat.Matrix, m int) (int, bool) {
	// escape[i] is true once i is known to reach a leaking row.
	escape := make([]bool, m)
	for i := range m {
		if floats.Sum(mat.Row(nil, i, q)) < 1-leakTolerance {
			escape[i] = true
		}
	}
	for changed := true; changed; {
		changed = false
		for i := range m {
			if escape[i] {
				continue
			}
			for j := range m {
				if escape[j] && q.At(i, j) > 0 {
					escape[i] = true
					changed = true
					break
				}
			}
		}
	}
	for i, ok := range escape {
		if !ok {
			return i, true
		}
	}
	return 0, false
}

// #endregion analysis
