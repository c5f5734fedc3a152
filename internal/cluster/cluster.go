// Package cluster fits per-activity time-of-day clusters and assigns new
// occurrences to them.
package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/mixture"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// weightTolerance bounds |sum(weights) - 1| for a well-formed model.
const weightTolerance = 1e-9

// #region fit
// Fit clusters the start times of one activity's occurrences. K grows from 1
// while every component variance stays above cfg.MinVariance (and, with
// UseBIC, while BIC keeps improving); the last accepted fit is returned.
// A single occurrence yields a one-cluster model.
func Fit(ctx context.Context, occs []activity.Occurrence, cfg Config) (*Model, error) {
	if len(occs) == 0 {
		return nil, fmt.Errorf("fit clusters: %w: no occurrences", apperrors.ErrInsufficientData)
	}
	label := occs[0].Label
	starts := make([]float64, len(occs))
	for i, o := range occs {
		if o.Label != label {
			return nil, fmt.Errorf("fit clusters: %w: mixed labels %q and %q", apperrors.ErrInvalidInput, label, o.Label)
		}
		starts[i] = float64(o.Minutes())
	}

	maxK := cfg.MaxComponents
	if maxK < 1 || maxK > MaxComponents {
		maxK = MaxComponents
	}
	if len(occs) < 2 {
		maxK = 1
	}

	var accepted mixture.Params
	for k := 1; k <= maxK; k++ {
		p, err := mixture.Fit(ctx, starts, k, cfg.EM)
		if err != nil {
			return nil, fmt.Errorf("fit clusters %q: %w", label, err)
		}
		if k == 1 {
			accepted = p
			continue
		}
		if p.Degenerate(cfg.MinVariance) {
			break
		}
		if cfg.UseBIC && !(p.BIC(len(starts)) < accepted.BIC(len(starts))) {
			break
		}
		accepted = p
	}

	m := &Model{
		User:       occs[0].User,
		Label:      label,
		Components: accepted.Components,
		Samples:    len(occs),
	}
	m.Durations = durationStats(occs, starts, accepted)
	return m, nil
}

// FitAll fits every label of one user's history, at most workers labels at a
// time. The first failure cancels the remaining fits.
func FitAll(ctx context.Context, occs []activity.Occurrence, cfg Config, workers int) (Set, error) {
	groups := activity.GroupByLabel(occs)
	labels := activity.Labels(occs)
	models := make([]*Model, len(labels))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, label := range labels {
		g.Go(func() error {
			m, err := Fit(gctx, groups[label], cfg)
			if err != nil {
				return fmt.Errorf("fit %q: %w", label, err)
			}
			models[i] = m
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return NewSet(models...)
}

// durationStats partitions durations by max-posterior cluster.
func durationStats(occs []activity.Occurrence, starts []float64, p mixture.Params) []DurationStats {
	buckets := make([][]float64, p.K())
	for i, o := range occs {
		k := p.Predict(starts[i])
		buckets[k] = append(buckets[k], o.Duration)
	}
	stats := make([]DurationStats, p.K())
	for k, ds := range buckets {
		switch len(ds) {
		case 0:
		case 1:
			stats[k] = DurationStats{Mean: ds[0], Count: 1}
		default:
			mean, variance := stat.MeanVariance(ds, nil)
			stats[k] = DurationStats{Mean: mean, Variance: variance, Count: len(ds)}
		}
	}
	return stats
}

// #endregion fit

// #region assign
// Assign returns the cluster index of o under m.
func Assign(o activity.Occurrence, m *Model) (int, error) {
	if m == nil {
		return 0, fmt.Errorf("assign %q: %w: no cluster model", o.Label, apperrors.ErrMalformedModel)
	}
	if m.Label != o.Label {
		return 0, fmt.Errorf("assign %q: %w: model is for %q", o.Label, apperrors.ErrMalformedModel, m.Label)
	}
	if err := m.Validate(); err != nil {
		return 0, err
	}
	return m.Params().Predict(float64(o.Minutes())), nil
}

// #endregion assign

// #region validate
// Validate checks the structural invariants of a model.
func (m *Model) Validate() error {
	k := m.K()
	if k < 1 || k > MaxComponents {
		return fmt.Errorf("cluster model %q: %w: %d components", m.Label, apperrors.ErrMalformedModel, k)
	}
	if len(m.Durations) != k {
		return fmt.Errorf("cluster model %q: %w: %d components but %d duration stats",
			m.Label, apperrors.ErrMalformedModel, k, len(m.Durations))
	}
	var sum float64
	for i, c := range m.Components {
		if math.IsNaN(c.Mean) || math.IsInf(c.Mean, 0) || c.Variance < 0 || math.IsNaN(c.Variance) || c.Weight < 0 {
			return fmt.Errorf("cluster model %q: %w: component %d out of range", m.Label, apperrors.ErrMalformedModel, i)
		}
		sum += c.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("cluster model %q: %w: weights sum to %v", m.Label, apperrors.ErrMalformedModel, sum)
	}
	return nil
}

// TimeOfDay renders the mean of cluster c as "HH:MM".
func (m *Model) TimeOfDay(c int) string {
	if c < 0 || c >= m.K() {
		return ""
	}
	return activity.FormatMinutes(m.Components[c].Mean)
}

// #endregion validate

// #region blob
// Marshal serialises m to its portable parameter blob.
func Marshal(m *Model) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}

// Unmarshal restores a model from a blob produced by Marshal.
func Unmarshal(data []byte) (*Model, error) {
	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode cluster model: %w: %v", apperrors.ErrMalformedModel, err)
	}
	if m.Label == "" {
		return nil, fmt.Errorf("decode cluster model: %w: missing activity", apperrors.ErrMalformedModel)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// #endregion blob

// #region set
// Set indexes one user's cluster models by activity label.
type Set map[string]*Model

// NewSet builds a set, rejecting duplicate labels.
func NewSet(models ...*Model) (Set, error) {
	s := make(Set, len(models))
	for _, m := range models {
		if _, dup := s[m.Label]; dup {
			return nil, fmt.Errorf("cluster set: %w: multiple models for %q", apperrors.ErrMalformedModel, m.Label)
		}
		s[m.Label] = m
	}
	return s, nil
}

// StateCount is the total number of (activity, cluster) states.
func (s Set) StateCount() int {
	n := 0
	for _, m := range s {
		n += m.K()
	}
	return n
}

// Labels returns the activity labels in sorted order.
func (s Set) Labels() []string {
	labels := make([]string, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Assign looks up the model for o's label and assigns o to a cluster.
func (s Set) Assign(o activity.Occurrence) (int, error) {
	m, ok := s[o.Label]
	if !ok {
		return 0, fmt.Errorf("assign %q: %w: no cluster model", o.Label, apperrors.ErrUnknownState)
	}
	return Assign(o, m)
}

// #endregion set
