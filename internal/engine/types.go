package engine

import (
	"context"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// #region interfaces
// ActivitySource yields a user's occurrences ordered by start time. An empty
// label selects every activity.
type ActivitySource interface {
	Activities(ctx context.Context, user, label string) ([]activity.Occurrence, error)
}

// ModelStore persists a user's fitted models.
type ModelStore interface {
	ReplaceModels(ctx context.Context, user string, clusters cluster.Set, transitions transition.Set) error
	ClusterModels(ctx context.Context, user string) (cluster.Set, error)
	TransitionModels(ctx context.Context, user string) (transition.Set, error)
}

// ValueStore returns a user's activity ratings.
type ValueStore interface {
	UserValues(ctx context.Context, user string, def float64) (moment.UserValues, error)
}

// RunLogger records one row per recomputation or query.
type RunLogger interface {
	Record(entry logging.RunEntry) (string, error)
}

// #endregion interfaces

// #region config
// Config tunes the engine.
type Config struct {
	Cluster        cluster.Config
	Eval           eval.EvalConfig
	Workers        int
	DefaultValue   float64
	ConditionLimit float64
}

// DefaultConfig returns the settings used by the CLI without a config file.
func DefaultConfig() Config {
	return Config{
		Cluster:        cluster.DefaultConfig(),
		Eval:           eval.DefaultEvalConfig(),
		Workers:        4,
		DefaultValue:   moment.DefaultValue,
		ConditionLimit: moment.DefaultConditionLimit,
	}
}

// #endregion config

// #region reports
// RecomputeReport summarises one recomputation.
type RecomputeReport struct {
	User       string          `json:"user"`
	RunID      string          `json:"run_id"`
	Activities int             `json:"activities"`
	StateCount int             `json:"state_count"`
	Clusters   map[string]int  `json:"clusters"`
	Eval       eval.EvalResult `json:"eval"`
}

// Stats describes what is known about a user.
type Stats struct {
	User       string   `json:"user"`
	Activities int      `json:"activities"`
	Labels     []string `json:"activity_labels"`
	Clusters   int      `json:"clusters"` // (activity, cluster) states in the stored models
}

// #endregion reports
