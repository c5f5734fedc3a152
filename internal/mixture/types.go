package mixture

// #region component
// Component is one Gaussian of a 1-D mixture.
type Component struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Weight   float64 `json:"weight"`
}

// #endregion component

// #region params
// Params is the full parameter record of one EM iteration. Step never mutates
// its input; it returns a fresh record, so a caller can hold on to an accepted
// fit while the next one is computed.
type Params struct {
	Components    []Component
	LogLikelihood float64 // of the samples under Components, NaN until evaluated
	Iterations    int
	Converged     bool
}

// K is the component count.
func (p Params) K() int { return len(p.Components) }

// #endregion params

// #region config
// Config bounds a single K-component fit.
type Config struct {
	MaxIterations int     // per-K cap, guarantees termination
	Tolerance     float64 // relative log-likelihood change treated as converged
	MinVariance   float64 // at or below this a component is degenerate
}

// DefaultConfig returns the fitting bounds used by the clusterer.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 500,
		Tolerance:     1e-9,
		MinVariance:   1e-6,
	}
}

// #endregion config
