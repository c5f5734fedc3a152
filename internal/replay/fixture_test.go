package replay

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
)

// #region fixture-tests

// TestFixture_SteadyWeek replays the steady_week fixture and checks the split,
// the start points per deadline and the deterministic success rates. Drift in
// clustering, fast-forwarding or ranking shows up here first.
func TestFixture_SteadyWeek(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "steady_week.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	occs, err := f.ToOccurrences()
	if err != nil {
		t.Fatalf("ToOccurrences: %v", err)
	}
	cfg, err := f.Config.ToSimConfig()
	if err != nil {
		t.Fatalf("ToSimConfig: %v", err)
	}

	report, err := Simulate(context.Background(), occs, cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	exp := f.Expected
	if report.User != f.User {
		t.Errorf("expected user %s, got %s", f.User, report.User)
	}
	if report.Training != exp.Training || report.Testing != exp.Testing || report.Dropped != exp.Dropped {
		t.Fatalf("expected split %d/%d dropped %d, got %d/%d dropped %d",
			exp.Training, exp.Testing, exp.Dropped, report.Training, report.Testing, report.Dropped)
	}

	starts := 0
	for deadline, n := range exp.StartPoints {
		if report.StartPoints[deadline] != n {
			t.Errorf("deadline %s: expected %d start points, got %d", deadline, n, report.StartPoints[deadline])
		}
		starts += n
	}
	if want := starts * cfg.Runs * len(cfg.Scenarios); len(report.Results) != want {
		t.Fatalf("expected %d results, got %d", want, len(report.Results))
	}

	rates := make(map[string]float64)
	for _, s := range report.Summaries {
		rates[s.Deadline+"/"+s.Scenario] = s.Rate
		if s.Rate < 0 || s.Rate > 1 {
			t.Errorf("%s/%s: rate %v out of range", s.Deadline, s.Scenario, s.Rate)
		}
	}
	for key, want := range exp.SuccessRates {
		got, ok := rates[key]
		if !ok {
			t.Errorf("%s: no summary", key)
			continue
		}
		if math.Abs(got-want) > 1e-9 {
			t.Errorf("%s: expected rate %v, got %v", key, want, got)
		}
	}
}

func TestFixture_Defaults(t *testing.T) {
	var fc FixtureConfig
	cfg, err := fc.ToSimConfig()
	if err != nil {
		t.Fatalf("ToSimConfig: %v", err)
	}
	def := DefaultSimConfig()
	if cfg.Runs != def.Runs || cfg.TrainRatio != def.TrainRatio || len(cfg.Scenarios) != 3 {
		t.Fatalf("empty fixture config should keep defaults, got %+v", cfg)
	}
}

func TestFixture_UnknownScenario(t *testing.T) {
	fc := FixtureConfig{Scenarios: []string{"onlyLuck"}}
	if _, err := fc.ToSimConfig(); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFixture_BadStart(t *testing.T) {
	f := Fixture{User: "ada", Activities: []FixtureActivity{{Activity: "coffee", Start: "yesterday"}}}
	if _, err := f.ToOccurrences(); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "missing.json")); err == nil {
		t.Fatalf("expected error for missing fixture")
	}
}

// #endregion fixture-tests
