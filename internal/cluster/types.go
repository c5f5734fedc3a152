package cluster

import (
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/mixture"
)

// MaxComponents is the hard upper bound on clusters per activity.
const MaxComponents = 9

// #region duration-stats
// DurationStats summarises the durations of the occurrences assigned to one
// cluster. Variance is the unbiased sample variance and is only meaningful
// when HasDispersion reports true.
type DurationStats struct {
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	Count    int     `json:"count"`
}

// HasDispersion reports whether enough durations were seen to estimate spread.
func (d DurationStats) HasDispersion() bool { return d.Count >= 2 }

// #endregion duration-stats

// #region model
// Model is the fitted time-of-day mixture of one activity of one user,
// paired with per-cluster duration statistics.
type Model struct {
	User       string              `json:"user"`
	Label      string              `json:"activity"`
	Components []mixture.Component `json:"components"`
	Durations  []DurationStats     `json:"durations"`
	Samples    int                 `json:"samples"`
}

// K is the number of clusters.
func (m *Model) K() int { return len(m.Components) }

// Params exposes the mixture for posterior queries.
func (m *Model) Params() mixture.Params {
	return mixture.Params{Components: m.Components}
}

// #endregion model

// #region config
// Config controls component-count selection.
type Config struct {
	MaxComponents int
	MinVariance   float64
	// UseBIC stops growing K at the first fit whose BIC does not improve on
	// the accepted one, in addition to the variance guard.
	UseBIC bool
	EM     mixture.Config
}

// DefaultConfig returns the selection rules used for recomputation.
func DefaultConfig() Config {
	em := mixture.DefaultConfig()
	return Config{
		MaxComponents: MaxComponents,
		MinVariance:   em.MinVariance,
		UseBIC:        true,
		EM:            em,
	}
}

// #endregion config
