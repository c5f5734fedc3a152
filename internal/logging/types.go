package logging

import "time"

// Run kinds.
const (
	KindRecompute = "recompute"
	KindMoment    = "moment"
	KindSimulate  = "simulate"
)

// Run outcomes.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
)

// #region run-entry
// RunEntry is a single row in the run_log table.
type RunEntry struct {
	RunID      string
	User       string
	Kind       string // "recompute" | "moment" | "simulate"
	Deadline   string
	Outcome    string // "ok" | "failed"
	Reason     string
	DetailJSON string
	CreatedAt  time.Time
}

// #endregion run-entry

// #region recompute-record
// RecomputeRecord captures what a recomputation produced. Serialized as JSON
// into run_log.detail_json.
type RecomputeRecord struct {
	Activities int            `json:"activities"`
	StateCount int            `json:"state_count"`
	Clusters   map[string]int `json:"clusters"`

	EvalPassed bool   `json:"eval_passed"`
	EvalReason string `json:"eval_reason"`
}

// SimulationRecord summarises one scenario of a simulation run.
type SimulationRecord struct {
	Deadline  string  `json:"deadline"`
	Scenario  string  `json:"scenario"`
	Runs      int     `json:"runs"`
	Successes int     `json:"successes"`
	Failures  int     `json:"failures"`
	Skipped   int     `json:"skipped"`
	Rate      float64 `json:"rate"`
}

// #endregion recompute-record
