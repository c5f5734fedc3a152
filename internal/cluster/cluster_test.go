package cluster

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
)

var day0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func occAt(label string, day, minute int, duration float64) activity.Occurrence {
	return activity.Occurrence{
		User:     "u1",
		Label:    label,
		Start:    day0.AddDate(0, 0, day).Add(time.Duration(minute) * time.Minute),
		Duration: duration,
	}
}

// gaussianMinutes returns n rounded normal quantiles around mean.
func gaussianMinutes(mean, sigma float64, n int) []int {
	norm := distuv.Normal{Mu: mean, Sigma: sigma}
	out := make([]int, n)
	for i := range out {
		out[i] = int(math.Round(norm.Quantile((float64(i) + 0.5) / float64(n))))
	}
	return out
}

func occsFromMinutes(label string, minutes []int) []activity.Occurrence {
	occs := make([]activity.Occurrence, len(minutes))
	for i, m := range minutes {
		occs[i] = occAt(label, i, m, 60)
	}
	return occs
}

func weightSum(m *Model) float64 {
	var s float64
	for _, c := range m.Components {
		s += c.Weight
	}
	return s
}

func TestFitTwoTightClusters(t *testing.T) {
	minutes := append(gaussianMinutes(480, 10, 30), gaussianMinutes(1200, 10, 30)...)
	m, err := Fit(context.Background(), occsFromMinutes("sleep", minutes), DefaultConfig())
	require.NoError(t, err)

	require.Equal(t, 2, m.K())
	assert.InDelta(t, 1.0, weightSum(m), 1e-9)
	assert.InDelta(t, 480, m.Components[0].Mean, 1)
	assert.InDelta(t, 1200, m.Components[1].Mean, 1)
	assert.Equal(t, 30, m.Durations[0].Count)
	assert.Equal(t, 30, m.Durations[1].Count)
	assert.Equal(t, 60, m.Samples)
}

func TestFitMildlySeparated(t *testing.T) {
	minutes := append(gaussianMinutes(600, 20, 30), gaussianMinutes(720, 20, 30)...)
	m, err := Fit(context.Background(), occsFromMinutes("eat", minutes), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 2, m.K())
	assert.InDelta(t, 1.0, weightSum(m), 1e-9)
}

func TestFitUniformIsSingleCluster(t *testing.T) {
	var minutes []int
	for m := 0; m < activity.MinutesPerDay; m += 60 {
		minutes = append(minutes, m)
	}
	m, err := Fit(context.Background(), occsFromMinutes("browse", minutes), DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, 1, m.K())
	assert.Equal(t, 1.0, m.Components[0].Weight)
}

func TestFitStopsAtFirstDegenerateK(t *testing.T) {
	// two stacks of identical start times: K=2 collapses onto the stacks
	minutes := []int{600, 600, 600, 600, 600, 900, 900, 900, 900, 900}
	cfg := DefaultConfig()
	cfg.UseBIC = false

	m, err := Fit(context.Background(), occsFromMinutes("work", minutes), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, m.K())
	assert.Greater(t, m.Components[0].Variance, cfg.MinVariance)
}

func TestFitIdenticalStartsKeepsDegenerateSingleCluster(t *testing.T) {
	m, err := Fit(context.Background(), occsFromMinutes("wake", []int{420, 420, 420, 420}), DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, m.K())
	assert.Equal(t, 0.0, m.Components[0].Variance)
	assert.Equal(t, "07:00", m.TimeOfDay(0))
}

func TestFitSingleOccurrence(t *testing.T) {
	m, err := Fit(context.Background(), []activity.Occurrence{occAt("gym", 0, 1080, 3600)}, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, m.K())
	d := m.Durations[0]
	assert.Equal(t, 3600.0, d.Mean)
	assert.Equal(t, 1, d.Count)
	assert.False(t, d.HasDispersion())
}

func TestFitDurationStats(t *testing.T) {
	occs := []activity.Occurrence{
		occAt("run", 0, 420, 1800),
		occAt("run", 1, 422, 2400),
		occAt("run", 2, 418, 3000),
	}
	m, err := Fit(context.Background(), occs, DefaultConfig())
	require.NoError(t, err)
	require.Equal(t, 1, m.K())
	d := m.Durations[0]
	assert.InDelta(t, 2400, d.Mean, 1e-9)
	assert.InDelta(t, 360000, d.Variance, 1e-6) // unbiased
	assert.True(t, d.HasDispersion())
}

func TestFitErrors(t *testing.T) {
	_, err := Fit(context.Background(), nil, DefaultConfig())
	require.ErrorIs(t, err, apperrors.ErrInsufficientData)

	_, err = Fit(context.Background(), []activity.Occurrence{occAt("a", 0, 1, 1), occAt("b", 1, 1, 1)}, DefaultConfig())
	require.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestAssign(t *testing.T) {
	minutes := append(gaussianMinutes(480, 10, 30), gaussianMinutes(1200, 10, 30)...)
	m, err := Fit(context.Background(), occsFromMinutes("sleep", minutes), DefaultConfig())
	require.NoError(t, err)

	idx, err := Assign(occAt("sleep", 40, 470, 0), m)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	idx, err = Assign(occAt("sleep", 40, 1230, 0), m)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestAssignRejectsBadModels(t *testing.T) {
	o := occAt("sleep", 0, 100, 0)

	_, err := Assign(o, nil)
	require.ErrorIs(t, err, apperrors.ErrMalformedModel)

	_, err = Assign(o, &Model{Label: "work"})
	require.ErrorIs(t, err, apperrors.ErrMalformedModel)

	bad := &Model{
		Label: "sleep",
		Components: []mixtureComponent{
			{Mean: 1, Variance: 1, Weight: 0.5},
			{Mean: 2, Variance: 1, Weight: 0.5},
		},
		Durations: []DurationStats{{}},
	}
	_, err = Assign(o, bad)
	require.ErrorIs(t, err, apperrors.ErrMalformedModel)
}

func TestBlobRoundTrip(t *testing.T) {
	minutes := append(gaussianMinutes(600, 20, 30), gaussianMinutes(720, 20, 30)...)
	m, err := Fit(context.Background(), occsFromMinutes("eat", minutes), DefaultConfig())
	require.NoError(t, err)

	blob, err := Marshal(m)
	require.NoError(t, err)
	back, err := Unmarshal(blob)
	require.NoError(t, err)

	if diff := cmp.Diff(m, back); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	for name, blob := range map[string]string{
		"not json":      `{`,
		"no label":      `{"components":[{"mean":1,"variance":1,"weight":1}],"durations":[{}]}`,
		"dim mismatch":  `{"activity":"a","components":[{"mean":1,"variance":1,"weight":1}],"durations":[]}`,
		"weights":       `{"activity":"a","components":[{"mean":1,"variance":1,"weight":0.4}],"durations":[{}]}`,
		"no components": `{"activity":"a","components":[],"durations":[]}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Unmarshal([]byte(blob))
			require.ErrorIs(t, err, apperrors.ErrMalformedModel)
		})
	}
}

func TestSet(t *testing.T) {
	a := &Model{Label: "a", Components: make([]mixtureComponent, 2)}
	b := &Model{Label: "b", Components: make([]mixtureComponent, 3)}
	s, err := NewSet(b, a)
	require.NoError(t, err)
	assert.Equal(t, 5, s.StateCount())
	assert.Equal(t, []string{"a", "b"}, s.Labels())

	_, err = NewSet(a, a)
	require.ErrorIs(t, err, apperrors.ErrMalformedModel)

	_, err = s.Assign(occAt("zzz", 0, 0, 0))
	require.ErrorIs(t, err, apperrors.ErrUnknownState)
}

func TestFitAll(t *testing.T) {
	occs := append(occsFromMinutes("sleep", append(gaussianMinutes(480, 10, 30), gaussianMinutes(1200, 10, 30)...)),
		occsFromMinutes("coffee", gaussianMinutes(420, 8, 20))...)
	occs = activity.Sorted(occs)

	set, err := FitAll(context.Background(), occs, DefaultConfig(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"coffee", "sleep"}, set.Labels())
	assert.Equal(t, 1, set["coffee"].K())
	assert.Equal(t, 2, set["sleep"].K())
	assert.Equal(t, 20, set["coffee"].Samples)
	assert.Equal(t, 3, set.StateCount())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = FitAll(ctx, occs, DefaultConfig(), 0)
	assert.ErrorIs(t, err, context.Canceled)
}
