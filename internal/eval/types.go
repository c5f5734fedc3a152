package eval

// #region eval-config
// EvalConfig holds the tolerances for model validation.
type EvalConfig struct {
	WeightTolerance float64 // max |Σweights − 1| per cluster model
	RowSumTolerance float64 // max |row sum − 1| per departing matrix row
	MinVariance     float64 // components at or below are reported as collapsed
}

// DefaultEvalConfig returns the tolerances used after recomputation.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		WeightTolerance: 1e-9,
		RowSumTolerance: 1e-7,
		MinVariance:     1e-6,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of model validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
