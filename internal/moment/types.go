package moment

import (
	"math"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// DefaultValue is the value of an activity the user never rated.
const DefaultValue = 3

// DefaultConditionLimit bounds cond₂(I−Q) before the chain is treated as
// having no path to absorption.
const DefaultConditionLimit = 1e12

// #region scoring
// ScoringFunc turns a state's visit probability, the user's value for its
// activity and the expected steps to the deadline into a utility.
type ScoringFunc func(visit, value, steps float64) float64

// PowerScore returns visit·value^m / steps^n.
func PowerScore(m, n float64) ScoringFunc {
	return func(visit, value, steps float64) float64 {
		return visit * math.Pow(value, m) / math.Pow(steps, n)
	}
}

// Scenario is a named PowerScore weighting.
type Scenario struct {
	Name string  `json:"name"`
	M    float64 `json:"m"` // exponent on the user value
	N    float64 `json:"n"` // exponent on the expected steps
}

// Score returns the scenario's scoring function.
func (s Scenario) Score() ScoringFunc { return PowerScore(s.M, s.N) }

// Scenarios lists the built-in weightings.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "onlyTime", M: 0, N: 1},
		{Name: "onlyValue", M: 1, N: 0},
		{Name: "default", M: 1, N: 1},
	}
}

// ScenarioByName looks up a built-in weighting.
func ScenarioByName(name string) (Scenario, bool) {
	for _, s := range Scenarios() {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// #endregion scoring

// #region values
// UserValues maps activity labels to how much the user cares about them.
type UserValues struct {
	Values  map[string]float64
	Default float64
}

// NewUserValues wraps values with DefaultValue for unrated activities.
func NewUserValues(values map[string]float64) UserValues {
	return UserValues{Values: values, Default: DefaultValue}
}

// Value returns the rating for label, or the default.
func (u UserValues) Value(label string) float64 {
	if v, ok := u.Values[label]; ok {
		return v
	}
	return u.Default
}

// #endregion values

// #region input
// Input is everything Find needs about one user.
type Input struct {
	Clusters    cluster.Set
	Transitions transition.Set
	// StateCount must equal the number of (activity, cluster) states in Clusters.
	StateCount int
	// Target is the deadline activity; all its clusters form the absorbing state.
	Target *cluster.Model
	Values UserValues
	// Score defaults to PowerScore(1, 1).
	Score          ScoringFunc
	ConditionLimit float64
}

// #endregion input

// #region result
// Score is one ranked candidate moment.
type Score struct {
	State            transition.State `json:"state"`
	VisitProbability float64          `json:"visit_probability"`
	ExpectedSteps    float64          `json:"expected_steps"`
	Value            float64          `json:"value"`
	Utility          float64          `json:"utility"`
	TimeOfDay        string           `json:"time_of_day"`
}

// Result is the ranking for one query. Now is set when the last occurrence
// already is the deadline activity, in which case Scores is empty.
type Result struct {
	Current transition.State `json:"current"`
	Now     bool             `json:"now"`
	Scores  []Score          `json:"scores"`
}

// Best returns the top-ranked score.
func (r Result) Best() (Score, bool) {
	if len(r.Scores) == 0 {
		return Score{}, false
	}
	return r.Scores[0], true
}

// #endregion result
