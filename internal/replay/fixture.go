package replay

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a simulation fixture.
type Fixture struct {
	Description string              `json:"description"`
	User        string              `json:"user"`
	Config      FixtureConfig       `json:"config"`
	Activities  []FixtureActivity   `json:"activities"`
	Expected    FixtureExpectations `json:"expected"`
}

// FixtureActivity is one recorded occurrence. Start is RFC 3339 with the
// user's local offset.
type FixtureActivity struct {
	Activity string  `json:"activity"`
	Start    string  `json:"start"`
	Duration float64 `json:"duration"`
}

// FixtureConfig mirrors SimConfig with JSON tags. Zero fields keep the
// defaults.
type FixtureConfig struct {
	TrainRatio float64  `json:"train_ratio"`
	Runs       int      `json:"runs"`
	Seed       uint64   `json:"seed"`
	Lookahead  int      `json:"lookahead"`
	MinFuture  int      `json:"min_future"`
	MaxValue   int      `json:"max_value"`
	Deadlines  []string `json:"deadlines"`
	Scenarios  []string `json:"scenarios"`
}

// FixtureExpectations are the stable outcomes of a fixture. SuccessRates is
// keyed "deadline/scenario"; scenarios left out depend on the drawn values.
type FixtureExpectations struct {
	Training     int                `json:"training"`
	Testing      int                `json:"testing"`
	Dropped      int                `json:"dropped"`
	StartPoints  map[string]int     `json:"start_points"`
	SuccessRates map[string]float64 `json:"success_rates"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToOccurrences converts the fixture activities to domain occurrences in
// chronological order.
func (f *Fixture) ToOccurrences() ([]activity.Occurrence, error) {
	occs := make([]activity.Occurrence, len(f.Activities))
	for i, a := range f.Activities {
		start, err := time.Parse(time.RFC3339, a.Start)
		if err != nil {
			return nil, fmt.Errorf("fixture activity %d: %w: %v", i, apperrors.ErrInvalidInput, err)
		}
		occs[i] = activity.Occurrence{
			User:     f.User,
			Label:    a.Activity,
			Start:    start,
			Duration: a.Duration,
		}
	}
	return activity.Sorted(occs), nil
}

// ToSimConfig converts a FixtureConfig to a SimConfig on top of the defaults.
func (fc *FixtureConfig) ToSimConfig() (SimConfig, error) {
	cfg := DefaultSimConfig()
	if fc.TrainRatio > 0 {
		cfg.TrainRatio = fc.TrainRatio
	}
	if fc.Runs > 0 {
		cfg.Runs = fc.Runs
	}
	if fc.Seed > 0 {
		cfg.Seed = fc.Seed
	}
	if fc.Lookahead > 0 {
		cfg.Lookahead = fc.Lookahead
	}
	if fc.MinFuture > 0 {
		cfg.MinFuture = fc.MinFuture
	}
	if fc.MaxValue > 0 {
		cfg.MaxValue = fc.MaxValue
	}
	if len(fc.Deadlines) > 0 {
		cfg.Deadlines = fc.Deadlines
	}
	if len(fc.Scenarios) > 0 {
		cfg.Scenarios = make([]moment.Scenario, 0, len(fc.Scenarios))
		for _, name := range fc.Scenarios {
			sc, ok := moment.ScenarioByName(name)
			if !ok {
				return SimConfig{}, fmt.Errorf("fixture scenario %q: %w", name, apperrors.ErrInvalidInput)
			}
			cfg.Scenarios = append(cfg.Scenarios, sc)
		}
	}
	return cfg, nil
}

// #endregion fixture-loader
