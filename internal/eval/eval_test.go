package eval

import (
	"testing"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/mixture"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

func makeModel(label string, weights ...float64) *cluster.Model {
	m := &cluster.Model{User: "u1", Label: label}
	for i, w := range weights {
		m.Components = append(m.Components, mixture.Component{Mean: float64(300 + 300*i), Variance: 100, Weight: w})
		m.Durations = append(m.Durations, cluster.DurationStats{})
	}
	return m
}

func makeModels(t *testing.T) (cluster.Set, transition.Set) {
	t.Helper()
	clusters := cluster.Set{
		"work":  makeModel("work", 0.5, 0.5),
		"sleep": makeModel("sleep", 1),
	}
	transitions := transition.Set{
		"work":  transition.NewModel("u1", "work", 2),
		"sleep": transition.NewModel("u1", "sleep", 1),
	}
	steps := []struct {
		label string
		c     int
		next  transition.State
	}{
		{"work", 0, transition.State{Label: "work", Cluster: 1}},
		{"work", 1, transition.State{Label: "sleep", Cluster: 0}},
		{"sleep", 0, transition.State{Label: "work", Cluster: 0}},
	}
	for _, s := range steps {
		if err := transitions[s.label].Observe(s.c, s.next); err != nil {
			t.Fatalf("Observe: %v", err)
		}
	}
	return clusters, transitions
}

func metric(t *testing.T, r EvalResult, name string) EvalMetric {
	t.Helper()
	for _, m := range r.Metrics {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("metric %s missing from %+v", name, r.Metrics)
	return EvalMetric{}
}

func TestEvalPassesOnConsistentModels(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)

	result := h.Run(clusters, transitions, "sleep")

	if !result.Passed {
		t.Fatalf("expected pass, got fail: %s", result.Reason)
	}
	if m := metric(t, result, "row_sum_error"); m.Value > 1e-12 {
		t.Fatalf("row sum error %g", m.Value)
	}
}

func TestEvalFailsOnWeightDrift(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)
	clusters["work"].Components[1].Weight = 0.6

	result := h.Run(clusters, transitions, "")

	if result.Passed {
		t.Fatal("expected fail on weights summing to 1.1")
	}
	if metric(t, result, "weight_sum_error").Pass {
		t.Fatal("expected weight_sum_error metric to fail")
	}
}

func TestEvalFailsOnInconsistentTotals(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)
	transitions["sleep"].Clusters[0].Total = 7

	result := h.Run(clusters, transitions, "")

	if result.Passed {
		t.Fatal("expected fail on total/count mismatch")
	}
	if m := metric(t, result, "inconsistent_transition_models"); m.Value != 1 {
		t.Fatalf("expected 1 inconsistent model, got %v", m.Value)
	}
}

func TestEvalFailsOnDanglingState(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)
	if err := transitions["work"].Observe(0, transition.State{Label: "gym", Cluster: 0}); err != nil {
		t.Fatalf("Observe: %v", err)
	}

	result := h.Run(clusters, transitions, "sleep")

	if result.Passed {
		t.Fatal("expected fail on successor without cluster model")
	}
	for _, m := range result.Metrics {
		if m.Name == "row_sum_error" {
			t.Fatal("matrix check should be skipped when states dangle")
		}
	}
}

func TestEvalCollapsedInformationalOnly(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)
	clusters["sleep"].Components[0].Variance = 0

	result := h.Run(clusters, transitions, "sleep")

	if !result.Passed {
		t.Fatalf("collapsed components should not block: %s", result.Reason)
	}
	if m := metric(t, result, "collapsed_components"); m.Value != 1 {
		t.Fatalf("expected 1 collapsed component, got %v", m.Value)
	}
}

func TestEvalMetricCount(t *testing.T) {
	h := NewEvalHarness(DefaultEvalConfig())
	clusters, transitions := makeModels(t)

	// weight, collapsed, totals, dangling = 4; deadline adds row sums
	if n := len(h.Run(clusters, transitions, "").Metrics); n != 4 {
		t.Fatalf("expected 4 metrics, got %d", n)
	}
	if n := len(h.Run(clusters, transitions, "sleep").Metrics); n != 5 {
		t.Fatalf("expected 5 metrics, got %d", n)
	}
}
