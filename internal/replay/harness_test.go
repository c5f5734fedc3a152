package replay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/activity"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/apperrors"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/cluster"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/moment"
	"github.com/danielpatrickdp/adaptive-state/moment-engine/internal/transition"
)

var zone = time.FixedZone("CET", 3600)

// helper: n identical days of coffee, work, outdoors and sleep.
func steadyDays(n int) []activity.Occurrence {
	plan := []struct {
		label        string
		hour, minute int
	}{
		{"coffee", 7, 0},
		{"work", 9, 0},
		{"outdoors", 18, 30},
		{"sleep", 23, 0},
	}
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, zone)
	var occs []activity.Occurrence
	for d := 0; d < n; d++ {
		for _, p := range plan {
			occs = append(occs, activity.Occurrence{
				User:     "ada",
				Label:    p.label,
				Start:    day.AddDate(0, 0, d).Add(time.Duration(p.hour)*time.Hour + time.Duration(p.minute)*time.Minute),
				Duration: 600,
			})
		}
	}
	return occs
}

// helper: cursor positioned at the end of the first `train` occurrences.
func trainedCursor(t *testing.T, occs []activity.Occurrence, train int) *Cursor {
	t.Helper()
	clusters, err := cluster.FitAll(context.Background(), occs[:train], cluster.DefaultConfig(), 2)
	if err != nil {
		t.Fatalf("FitAll: %v", err)
	}
	transitions, err := transition.Build(occs[:train], clusters)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return NewCursor(clusters, transitions, occs[train-1], occs[train:])
}

func scenario(t *testing.T, name string) moment.Scenario {
	t.Helper()
	sc, ok := moment.ScenarioByName(name)
	if !ok {
		t.Fatalf("scenario %q not registered", name)
	}
	return sc
}

func TestCursor_FastForward(t *testing.T) {
	c := trainedCursor(t, steadyDays(10), 32)

	ok, err := c.FastForward("sleep", 3, 4)
	if err != nil || !ok {
		t.Fatalf("expected start point, got ok=%v err=%v", ok, err)
	}
	if c.Position() != -1 {
		t.Fatalf("qualifying last activity should not move the cursor, position=%d", c.Position())
	}

	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	ok, err = c.FastForward("sleep", 3, 4)
	if err != nil || !ok {
		t.Fatalf("expected second start point, got ok=%v err=%v", ok, err)
	}
	if c.Position() != 3 || c.Last().Label != "sleep" {
		t.Fatalf("expected sleep at position 3, got %s at %d", c.Last().Label, c.Position())
	}
	if c.Remaining() != 4 {
		t.Fatalf("expected 4 remaining, got %d", c.Remaining())
	}
}

func TestCursor_FastForwardLookahead(t *testing.T) {
	c := trainedCursor(t, steadyDays(10), 32)

	// every sleep is followed by another within five steps
	ok, err := c.FastForward("sleep", 5, 4)
	if err != nil {
		t.Fatalf("FastForward: %v", err)
	}
	if ok {
		t.Fatalf("expected no start point with lookahead 5")
	}
	if c.Remaining() >= 4 {
		t.Fatalf("cursor should stop once the future is short, remaining=%d", c.Remaining())
	}
}

func TestCursor_AdvanceUpdatesModels(t *testing.T) {
	c := trainedCursor(t, steadyDays(10), 32)
	before := c.Transitions()["sleep"].Clusters[0].Total

	if err := c.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if got := c.Transitions()["sleep"].Clusters[0].Total; got != before+1 {
		t.Fatalf("expected sleep total %d, got %d", before+1, got)
	}

	for c.Remaining() > 0 {
		if err := c.Advance(); err != nil {
			t.Fatalf("Advance: %v", err)
		}
	}
	if err := c.Advance(); !errors.Is(err, apperrors.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData past the end, got %v", err)
	}
}

func TestRunScenario_Success(t *testing.T) {
	c := trainedCursor(t, steadyDays(10), 32)
	before := c.Transitions()["sleep"].Clusters[0].Total

	r := RunScenario(c, "sleep", scenario(t, "onlyTime"), moment.NewUserValues(nil), moment.DefaultConditionLimit)
	if r.Outcome != OutcomeSuccess {
		t.Fatalf("expected success, got %s (%s)", r.Outcome, r.Reason)
	}
	want := transition.State{Label: "outdoors", Cluster: 0}
	if r.Moment != want {
		t.Fatalf("expected moment %v, got %v", want, r.Moment)
	}
	if r.Steps != 3 {
		t.Fatalf("expected 3 steps, got %d", r.Steps)
	}
	if r.Utility != 1 {
		t.Fatalf("expected utility 1, got %v", r.Utility)
	}

	if c.Position() != -1 {
		t.Fatalf("run moved the source cursor to %d", c.Position())
	}
	if got := c.Transitions()["sleep"].Clusters[0].Total; got != before {
		t.Fatalf("run changed the source models: total %d -> %d", before, got)
	}
}

func TestRunScenario_Missed(t *testing.T) {
	c := trainedCursor(t, steadyDays(10), 32)
	zero := moment.NewUserValues(map[string]float64{"coffee": 0, "work": 0, "outdoors": 0, "sleep": 0})

	// all utilities tie at zero so coffee stays ranked first after it has passed
	r := RunScenario(c, "sleep", scenario(t, "onlyValue"), zero, moment.DefaultConditionLimit)
	if r.Outcome != OutcomeMissed {
		t.Fatalf("expected missed, got %s (%s)", r.Outcome, r.Reason)
	}
	if r.Steps != 4 {
		t.Fatalf("expected 4 steps, got %d", r.Steps)
	}
	if r.Moment.Label != "sleep" {
		t.Fatalf("expected to end on sleep, got %v", r.Moment)
	}
}

func TestRunScenario_Exhausted(t *testing.T) {
	occs := steadyDays(10)
	c := trainedCursor(t, occs[:34], 32)

	r := RunScenario(c, "sleep", scenario(t, "onlyTime"), moment.NewUserValues(nil), moment.DefaultConditionLimit)
	if r.Outcome != OutcomeExhausted {
		t.Fatalf("expected exhausted, got %s", r.Outcome)
	}
	if r.Steps != 2 {
		t.Fatalf("expected 2 steps, got %d", r.Steps)
	}
}

func TestSimulate_SameSeedSameResults(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Runs = 4
	cfg.Seed = 42

	a, err := Simulate(context.Background(), steadyDays(10), cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	b, err := Simulate(context.Background(), steadyDays(10), cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("reports differ (-first +second):\n%s", diff)
	}
	if len(a.Results) == 0 {
		t.Fatalf("expected results")
	}
}

func TestSimulate_UnknownDeadline(t *testing.T) {
	cfg := DefaultSimConfig()
	cfg.Runs = 1
	cfg.Deadlines = []string{"nap"}

	r, err := Simulate(context.Background(), steadyDays(10), cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if len(r.UnknownDeadlines) != 1 || r.UnknownDeadlines[0] != "nap" {
		t.Fatalf("expected nap reported unknown, got %v", r.UnknownDeadlines)
	}
	if len(r.Results) != 0 || len(r.Summaries) != 0 {
		t.Fatalf("expected no runs, got %d", len(r.Results))
	}
}

func TestSimulate_DropsUnseenLabels(t *testing.T) {
	occs := steadyDays(10)
	dentist := activity.Occurrence{
		User:  "ada",
		Label: "dentist",
		Start: time.Date(2024, 3, 13, 14, 0, 0, 0, zone),
	}
	occs = activity.Sorted(append(occs, dentist))

	cfg := DefaultSimConfig()
	cfg.Runs = 1
	cfg.Deadlines = []string{"sleep"}

	r, err := Simulate(context.Background(), occs, cfg)
	if err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if r.Training != 32 || r.Testing != 9 || r.Dropped != 1 {
		t.Fatalf("expected 32/9 with 1 dropped, got %d/%d with %d", r.Training, r.Testing, r.Dropped)
	}
	if r.StartPoints["sleep"] != 2 {
		t.Fatalf("expected 2 start points, got %d", r.StartPoints["sleep"])
	}
}

func TestSimulate_InsufficientData(t *testing.T) {
	_, err := Simulate(context.Background(), steadyDays(1)[:1], DefaultSimConfig())
	if !errors.Is(err, apperrors.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestSimulate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Simulate(ctx, steadyDays(10), DefaultSimConfig())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSummarize(t *testing.T) {
	results := []RunResult{
		{Deadline: "sleep", Scenario: "default", Outcome: OutcomeSuccess},
		{Deadline: "sleep", Scenario: "default", Outcome: OutcomeMissed},
		{Deadline: "sleep", Scenario: "default", Outcome: OutcomeExhausted},
		{Deadline: "sleep", Scenario: "onlyTime", Outcome: OutcomeSuccess},
		{Deadline: "outdoors", Scenario: "default", Outcome: OutcomeError},
		{Deadline: "sleep", Scenario: "default", Outcome: OutcomeSuccess},
	}
	got := Summarize(results)
	want := []ScenarioSummary{
		{Deadline: "sleep", Scenario: "default", Runs: 4, Successes: 2, Failures: 1, Skipped: 1, Rate: 2.0 / 3.0},
		{Deadline: "sleep", Scenario: "onlyTime", Runs: 1, Successes: 1, Rate: 1},
		{Deadline: "outdoors", Scenario: "default", Runs: 1, Skipped: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Summarize mismatch (-want +got):\n%s", diff)
	}

	rec := got[0].Record()
	if rec.Deadline != "sleep" || rec.Successes != 2 || rec.Skipped != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
}
