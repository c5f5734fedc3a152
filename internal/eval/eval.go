package eval

import (
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region eval-harness
// EvalHarness validates one user's freshly built models.
type EvalHarness struct {
	config EvalConfig
}

// NewEvalHarness creates an eval harness with the given configuration.
func NewEvalHarness(config EvalConfig) *EvalHarness {
	return &EvalHarness{config: config}
}

// Run checks the cluster and transition sets. When deadline names an activity
// in clusters, the absorbing-chain matrix is built and its rows checked too.
func (h *EvalHarness) Run(clusters cluster.Set, transitions transition.Set, deadline string) EvalResult {
	var metrics []EvalMetric
	var failReasons []string
	fail := func(format string, args ...any) {
		failReasons = append(failReasons, fmt.Sprintf(format, args...))
	}

	// 1. Mixture weights sum to one
	var worstWeight float64
	for _, label := range clusters.Labels() {
		var sum float64
		for _, c := range clusters[label].Components {
			sum += c.Weight
		}
		if d := math.Abs(sum - 1); d > worstWeight {
			worstWeight = d
		}
	}
	weightPass := worstWeight <= h.config.WeightTolerance
	metrics = append(metrics, EvalMetric{Name: "weight_sum_error", Value: worstWeight, Pass: weightPass})
	if !weightPass {
		fail("weight sum off by %.3g", worstWeight)
	}

	// 2. Collapsed components: informational, a single-cluster model of
	// identical start times is legitimate
	var collapsed int
	for _, m := range clusters {
		for _, c := range m.Components {
			if c.Variance <= h.config.MinVariance {
				collapsed++
			}
		}
	}
	metrics = append(metrics, EvalMetric{Name: "collapsed_components", Value: float64(collapsed), Pass: true})

	// 3. Transition totals equal the sum of their counts
	var badTotals int
	for _, label := range sortedKeys(transitions) {
		if err := transitions[label].Validate(); err != nil {
			badTotals++
		}
	}
	totalsPass := badTotals == 0
	metrics = append(metrics, EvalMetric{Name: "inconsistent_transition_models", Value: float64(badTotals), Pass: totalsPass})
	if !totalsPass {
		fail("%d transition models with inconsistent totals", badTotals)
	}

	// 4. Every referenced state has a cluster
	refErr := transitions.CheckAgainst(clusters)
	metrics = append(metrics, EvalMetric{Name: "dangling_states", Value: boolValue(refErr != nil), Pass: refErr == nil})
	if refErr != nil {
		fail("%v", refErr)
	}

	// 5. Matrix rows: departing rows sum to one, absorbing row is identity
	if target, ok := clusters[deadline]; ok && refErr == nil {
		worstRow, err := h.rowSumError(clusters, transitions, target)
		rowPass := err == nil && worstRow <= h.config.RowSumTolerance
		metrics = append(metrics, EvalMetric{Name: "row_sum_error", Value: worstRow, Pass: rowPass})
		switch {
		case err != nil:
			fail("build chain: %v", err)
		case !rowPass:
			fail("row sum off by %.3g", worstRow)
		}
	}

	reason := "all checks passed"
	if len(failReasons) > 0 {
		reason = fmt.Sprintf("eval failed: %s", failReasons[0])
		if len(failReasons) > 1 {
			reason = fmt.Sprintf("eval failed: %d checks: %s", len(failReasons), failReasons[0])
		}
	}

	return EvalResult{
		Passed:  len(failReasons) == 0,
		Metrics: metrics,
		Reason:  reason,
	}
}

func (h *EvalHarness) rowSumError(clusters cluster.Set, transitions transition.Set, target *cluster.Model) (float64, error) {
	chain, err := moment.BuildChain(clusters, transitions, target, clusters.StateCount())
	if err != nil {
		return 0, err
	}
	var worst float64
	for i := range chain.States {
		sum := chain.RowSum(i)
		if sum == 0 {
			continue
		}
		worst = max(worst, math.Abs(sum-1))
	}
	a := chain.Absorbing()
	worst = max(worst, math.Abs(chain.RowSum(a)-1), math.Abs(chain.P.At(a, a)-1))
	return worst, nil
}

// #endregion eval-harness

// #region helpers
func sortedKeys(s transition.Set) []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func boolValue(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// #endregion helpers
