package replay

import (
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region config
// SimConfig controls how a user's history is split and replayed.
type SimConfig struct {
	// TrainRatio is the chronological share of the history used for fitting.
	TrainRatio float64
	// Runs is the number of random value assignments tried per start point.
	Runs int
	// Lookahead is how many upcoming activities must be free of the deadline
	// for an occurrence of it to become a start point.
	Lookahead int
	// MinFuture is the number of unseen activities required before advancing.
	MinFuture int
	// MaxValue bounds the random per-activity values drawn for a run (0..MaxValue).
	MaxValue       int
	Seed           uint64
	Deadlines      []string
	Scenarios      []moment.Scenario
	Cluster        cluster.Config
	ConditionLimit float64
}

// DefaultSimConfig returns the settings of the offline evaluation runs.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		TrainRatio:     0.8,
		Runs:           100,
		Lookahead:      3,
		MinFuture:      4,
		MaxValue:       4,
		Seed:           1,
		Deadlines:      []string{"sleep", "outdoors"},
		Scenarios:      moment.Scenarios(),
		Cluster:        cluster.DefaultConfig(),
		ConditionLimit: moment.DefaultConditionLimit,
	}
}

// #endregion config

// #region results
// Outcome is how a single scenario run ended.
type Outcome string

const (
	// OutcomeSuccess means the user entered the state ranked first one step earlier.
	OutcomeSuccess Outcome = "success"
	// OutcomeMissed means the deadline came before any recommended state.
	OutcomeMissed Outcome = "missed"
	// OutcomeExhausted means the recorded future ran out mid-run.
	OutcomeExhausted Outcome = "exhausted"
	// OutcomeError means no ranking could be computed along the way.
	OutcomeError Outcome = "error"
)

// RunResult is one scenario run from one start point.
type RunResult struct {
	Deadline string
	Scenario string
	// Start is the index into the testing sequence of the last observed
	// activity when the run began; -1 means the last training activity.
	Start   int
	Run     int
	Outcome Outcome
	// Moment is the state the run ended on.
	Moment  transition.State
	Utility float64
	Steps   int
	Reason  string
}

// ScenarioSummary aggregates the runs of one scenario for one deadline.
type ScenarioSummary struct {
	Deadline  string
	Scenario  string
	Runs      int
	Successes int
	Failures  int
	Skipped   int
	// Rate is Successes over the runs that reached an end (success or missed).
	Rate float64
}

// SimReport is the outcome of Simulate for one user.
type SimReport struct {
	User     string
	RunID    string
	Training int
	Testing  int
	// Dropped counts testing activities whose label never occurred in training.
	Dropped int
	// StartPoints is the number of start points found per deadline.
	StartPoints map[string]int
	// UnknownDeadlines lists deadlines without a cluster model in training.
	UnknownDeadlines []string
	Results          []RunResult
	Summaries        []ScenarioSummary
}

// #endregion results
