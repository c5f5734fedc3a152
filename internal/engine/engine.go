// Package engine runs the recompute pipeline and the prediction queries
// against the stores.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/eval"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/logging"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/predict"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/replay"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

// Engine ties the core packages to their stores.
type Engine struct {
	activities ActivitySource
	models     ModelStore
	values     ValueStore
	runs       RunLogger
	logger     *zap.Logger
	cfg        Config
}

// New returns an engine. runs and logger may be nil.
func New(activities ActivitySource, models ModelStore, values ValueStore, runs RunLogger, logger *zap.Logger, cfg Config) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Engine{
		activities: activities,
		models:     models,
		values:     values,
		runs:       runs,
		logger:     logger,
		cfg:        cfg,
	}
}

// #region recompute
// Recompute refits every activity's cluster model, rebuilds the transition
// models from the full sequence and replaces the stored pair.
func (e *Engine) Recompute(ctx context.Context, user string) (RecomputeReport, error) {
	occs, err := e.activities.Activities(ctx, user, "")
	if err != nil {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", user, err)
	}
	if len(occs) == 0 {
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w: no activities", user, apperrors.ErrInsufficientData)
	}

	clusters, err := e.fitAll(ctx, occs)
	if err != nil {
		e.record(user, logging.KindRecompute, "", err, nil)
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", user, err)
	}
	transitions, err := transition.Build(occs, clusters)
	if err != nil {
		e.record(user, logging.KindRecompute, "", err, nil)
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", user, err)
	}

	result := eval.NewEvalHarness(e.cfg.Eval).Run(clusters, transitions, "")
	if !result.Passed {
		err := fmt.Errorf("recompute %s: %w: %s", user, apperrors.ErrMalformedModel, result.Reason)
		e.record(user, logging.KindRecompute, "", err, nil)
		return RecomputeReport{}, err
	}
	if err := e.models.ReplaceModels(ctx, user, clusters, transitions); err != nil {
		e.record(user, logging.KindRecompute, "", err, nil)
		return RecomputeReport{}, fmt.Errorf("recompute %s: %w", user, err)
	}

	report := RecomputeReport{
		User:       user,
		Activities: len(occs),
		StateCount: clusters.StateCount(),
		Clusters:   make(map[string]int, len(clusters)),
		Eval:       result,
	}
	for label, m := range clusters {
		report.Clusters[label] = m.K()
	}
	report.RunID = e.record(user, logging.KindRecompute, "", nil, logging.RecomputeRecord{
		Activities: report.Activities,
		StateCount: report.StateCount,
		Clusters:   report.Clusters,
		EvalPassed: result.Passed,
		EvalReason: result.Reason,
	})
	e.logger.Info("recomputed models",
		zap.String("user", user),
		zap.Int("activities", report.Activities),
		zap.Int("states", report.StateCount),
		zap.String("run_id", report.RunID))
	return report, nil
}

// fitAll fits one cluster model per label, Workers at a time.
func (e *Engine) fitAll(ctx context.Context, occs []activity.Occurrence) (cluster.Set, error) {
	set, err := cluster.FitAll(ctx, occs, e.cfg.Cluster, e.cfg.Workers)
	if err != nil {
		return nil, err
	}
	for _, label := range set.Labels() {
		m := set[label]
		e.logger.Debug("fitted clusters",
			zap.String("activity", label),
			zap.Int("samples", m.Samples),
			zap.Int("k", m.K()))
	}
	return set, nil
}

// #endregion recompute

// #region queries
// Last returns the most recent occurrence of user.
func (e *Engine) Last(ctx context.Context, user string) (activity.Occurrence, error) {
	occs, err := e.activities.Activities(ctx, user, "")
	if err != nil {
		return activity.Occurrence{}, err
	}
	if len(occs) == 0 {
		return activity.Occurrence{}, fmt.Errorf("user %s: %w: no activities", user, apperrors.ErrInsufficientData)
	}
	return occs[len(occs)-1], nil
}

// Predict returns the likeliest next states after the user's last activity.
func (e *Engine) Predict(ctx context.Context, user string) (predict.Result, error) {
	last, err := e.Last(ctx, user)
	if err != nil {
		return predict.Result{}, fmt.Errorf("predict %s: %w", user, err)
	}
	clusters, transitions, err := e.load(ctx, user)
	if err != nil {
		return predict.Result{}, fmt.Errorf("predict %s: %w", user, err)
	}
	return predict.ForSets(last, clusters, transitions)
}

// Moment ranks the states the user may pass through before deadline. A nil
// score uses PowerScore(1, 1).
func (e *Engine) Moment(ctx context.Context, user, deadline string, score moment.ScoringFunc) (moment.Result, error) {
	res, err := e.moment(ctx, user, deadline, score)
	var detail any
	if err == nil {
		detail = res
	}
	e.record(user, logging.KindMoment, deadline, err, detail)
	return res, err
}

func (e *Engine) moment(ctx context.Context, user, deadline string, score moment.ScoringFunc) (moment.Result, error) {
	last, err := e.Last(ctx, user)
	if err != nil {
		return moment.Result{}, fmt.Errorf("moment %s: %w", user, err)
	}
	clusters, transitions, err := e.load(ctx, user)
	if err != nil {
		return moment.Result{}, fmt.Errorf("moment %s: %w", user, err)
	}
	target, ok := clusters[deadline]
	if !ok {
		return moment.Result{}, fmt.Errorf("moment %s: deadline %q: %w", user, deadline, apperrors.ErrUnknownState)
	}
	values, err := e.values.UserValues(ctx, user, e.cfg.DefaultValue)
	if err != nil {
		return moment.Result{}, fmt.Errorf("moment %s: %w", user, err)
	}
	return moment.Find(last, moment.Input{
		Clusters:       clusters,
		Transitions:    transitions,
		StateCount:     clusters.StateCount(),
		Target:         target,
		Values:         values,
		Score:          score,
		ConditionLimit: e.cfg.ConditionLimit,
	})
}

// Stats counts a user's activities and stored states.
func (e *Engine) Stats(ctx context.Context, user string) (Stats, error) {
	occs, err := e.activities.Activities(ctx, user, "")
	if err != nil {
		return Stats{}, fmt.Errorf("stats %s: %w", user, err)
	}
	clusters, err := e.models.ClusterModels(ctx, user)
	if err != nil {
		return Stats{}, fmt.Errorf("stats %s: %w", user, err)
	}
	return Stats{
		User:       user,
		Activities: len(occs),
		Labels:     activity.Labels(occs),
		Clusters:   clusters.StateCount(),
	}, nil
}

// Models returns the stored cluster and transition sets of user.
func (e *Engine) Models(ctx context.Context, user string) (cluster.Set, transition.Set, error) {
	return e.load(ctx, user)
}

func (e *Engine) load(ctx context.Context, user string) (cluster.Set, transition.Set, error) {
	clusters, err := e.models.ClusterModels(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	if len(clusters) == 0 {
		return nil, nil, fmt.Errorf("%w: no models for %s, run recompute", apperrors.ErrNotFound, user)
	}
	transitions, err := e.models.TransitionModels(ctx, user)
	if err != nil {
		return nil, nil, err
	}
	return clusters, transitions, nil
}

// #endregion queries

// #region simulate
// Simulate replays the user's own history with cfg and records one run with
// the per-scenario summaries.
func (e *Engine) Simulate(ctx context.Context, user string, cfg replay.SimConfig) (replay.SimReport, error) {
	report, err := e.simulate(ctx, user, cfg)
	var detail any
	if err == nil {
		records := make([]logging.SimulationRecord, len(report.Summaries))
		for i, s := range report.Summaries {
			records[i] = s.Record()
		}
		detail = records
	}
	report.RunID = e.record(user, logging.KindSimulate, strings.Join(cfg.Deadlines, ","), err, detail)
	return report, err
}

func (e *Engine) simulate(ctx context.Context, user string, cfg replay.SimConfig) (replay.SimReport, error) {
	occs, err := e.activities.Activities(ctx, user, "")
	if err != nil {
		return replay.SimReport{}, fmt.Errorf("simulate %s: %w", user, err)
	}
	if len(occs) == 0 {
		return replay.SimReport{}, fmt.Errorf("simulate %s: %w: no activities", user, apperrors.ErrInsufficientData)
	}
	report, err := replay.Simulate(ctx, occs, cfg)
	if err != nil {
		return report, fmt.Errorf("simulate %s: %w", user, err)
	}
	for _, deadline := range report.UnknownDeadlines {
		e.logger.Warn("deadline never occurs in training history",
			zap.String("user", user), zap.String("deadline", deadline))
	}
	for _, s := range report.Summaries {
		e.logger.Info("simulated scenario",
			zap.String("user", user),
			zap.String("deadline", s.Deadline),
			zap.String("scenario", s.Scenario),
			zap.Int("runs", s.Runs),
			zap.Int("successes", s.Successes),
			zap.Int("skipped", s.Skipped),
			zap.Float64("rate", s.Rate))
	}
	return report, nil
}

// #endregion simulate

// #region run-log
// record writes a run entry and returns its id. Failures to log are reported
// but never fail the call.
func (e *Engine) record(user, kind, deadline string, runErr error, detail any) string {
	if e.runs == nil {
		return ""
	}
	entry := logging.RunEntry{User: user, Kind: kind, Deadline: deadline, Outcome: logging.OutcomeOK}
	if runErr != nil {
		entry.Outcome = logging.OutcomeFailed
		entry.Reason = runErr.Error()
	}
	if detail != nil {
		if b, err := json.Marshal(detail); err == nil {
			entry.DetailJSON = string(b)
		}
	}
	id, err := e.runs.Record(entry)
	if err != nil {
		e.logger.Warn("run log write failed", zap.String("kind", kind), zap.Error(err))
		return ""
	}
	return id
}

// IsNoData reports whether err means the user lacks activities or models.
func IsNoData(err error) bool {
	return errors.Is(err, apperrors.ErrInsufficientData) || errors.Is(err, apperrors.ErrNotFound)
}

// #endregion run-log
