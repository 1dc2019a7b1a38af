package executor

import (
	"context"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/mohammad-safakhou/opsassist/internal/agent/core"
	"github.com/mohammad-safakhou/opsassist/internal/tool"
)

// recordingTool appends its name to a shared call log and replays scripted
// results in order.
type recordingTool struct {
	name    string
	results []tool.Result
	calls   int
	log     *[]string
}

func (r *recordingTool) Name() string        { return r.name }
func (r *recordingTool) Description() string { return r.name + " tool" }

func (r *recordingTool) ParameterSchema() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}

func (r *recordingTool) Execute(ctx context.Context, params map[string]interface{}) tool.Result {
	if r.log != nil {
		*r.log = append(*r.log, r.name)
	}
	idx := r.calls
	r.calls++
	if idx >= len(r.results) {
		idx = len(r.results) - 1
	}
	return r.results[idx]
}

func step(n int, toolName string) core.PlanStep {
	return core.PlanStep{StepNumber: n, Tool: toolName, Description: toolName + " step"}
}

func newTestExecutor(t *testing.T, tools ...tool.Tool) *Executor {
	t.Helper()
	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return New(registry, nil, WithStepTimeout(time.Second))
}

func TestRun_EmptyPlan(t *testing.T) {
	ex := newTestExecutor(t)
	data, errs := ex.Run(context.Background(), core.Plan{})
	if len(data) != 0 {
		t.Fatalf("expected empty data, got %#v", data)
	}
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %#v", errs)
	}
}

func TestRun_AllStepsSucceed(t *testing.T) {
	weather := &recordingTool{name: "weather", results: []tool.Result{
		tool.Ok(map[string]interface{}{"city": "Paris", "temperature": "18.0°C"}),
	}}
	news := &recordingTool{name: "news", results: []tool.Result{
		tool.Ok(map[string]interface{}{"total_results": 3}),
	}}
	ex := newTestExecutor(t, weather, news)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{
		step(1, "weather"),
		step(2, "news"),
	}})
	if len(errs) != 0 {
		t.Fatalf("expected no errors, got %#v", errs)
	}
	w, ok := data["step_1_weather"].(map[string]interface{})
	if !ok || w["city"] != "Paris" {
		t.Fatalf("expected weather data under step_1_weather, got %#v", data)
	}
	if _, ok := data["step_2_news"]; !ok {
		t.Fatalf("expected news data under step_2_news, got %#v", data)
	}
}

func TestRun_PartialFailureContinues(t *testing.T) {
	weather := &recordingTool{name: "weather", results: []tool.Result{
		tool.Fail("city %q not found", "Atlantis"),
	}}
	news := &recordingTool{name: "news", results: []tool.Result{
		tool.Ok(map[string]interface{}{"total_results": 1}),
	}}
	ex := newTestExecutor(t, weather, news)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{
		step(1, "weather"),
		step(2, "news"),
	}})
	if news.calls != 1 {
		t.Fatalf("later step must still run after a failure, calls=%d", news.calls)
	}
	if len(data) != 1 {
		t.Fatalf("expected one data entry, got %#v", data)
	}
	if len(errs) != 1 || !strings.Contains(errs[0], "step 1 (weather)") {
		t.Fatalf("expected step 1 error, got %#v", errs)
	}
	if !strings.Contains(errs[0], `city "Atlantis" not found`) {
		t.Fatalf("error must carry the tool message, got %q", errs[0])
	}
}

func TestRun_UnknownToolRecordedAndSkipped(t *testing.T) {
	weather := &recordingTool{name: "weather", results: []tool.Result{
		tool.Ok(map[string]interface{}{"city": "Paris"}),
	}}
	ex := newTestExecutor(t, weather)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{
		step(1, "slack"),
		step(2, "weather"),
	}})
	if len(errs) != 1 || errs[0] != "step 1: unknown tool slack" {
		t.Fatalf("expected unknown tool error, got %#v", errs)
	}
	if _, ok := data["step_2_weather"]; !ok {
		t.Fatalf("step after unknown tool must still execute, got %#v", data)
	}
}

func TestRun_ExecutesInPlanOrder(t *testing.T) {
	var callLog []string
	mk := func(name string) *recordingTool {
		return &recordingTool{name: name, log: &callLog, results: []tool.Result{
			tool.Ok(map[string]interface{}{}),
		}}
	}
	ex := newTestExecutor(t, mk("github"), mk("weather"), mk("news"))

	_, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{
		step(1, "news"),
		step(2, "github"),
		step(3, "weather"),
	}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %#v", errs)
	}
	want := []string{"news", "github", "weather"}
	if !reflect.DeepEqual(callLog, want) {
		t.Fatalf("expected call order %v, got %v", want, callLog)
	}
}

func TestRun_TransientFailureRetriedOnce(t *testing.T) {
	flaky := &recordingTool{name: "news", results: []tool.Result{
		tool.FailTransient("rate limited"),
		tool.Ok(map[string]interface{}{"total_results": 2}),
	}}
	ex := newTestExecutor(t, flaky)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{step(1, "news")}})
	if flaky.calls != 2 {
		t.Fatalf("expected 2 attempts, got %d", flaky.calls)
	}
	if len(errs) != 0 {
		t.Fatalf("retry should have recovered, got %#v", errs)
	}
	if _, ok := data["step_1_news"]; !ok {
		t.Fatalf("expected recovered data, got %#v", data)
	}
}

func TestRun_TransientFailureGivesUpAfterRetryBudget(t *testing.T) {
	flaky := &recordingTool{name: "news", results: []tool.Result{
		tool.FailTransient("upstream unavailable"),
	}}
	ex := newTestExecutor(t, flaky)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{step(1, "news")}})
	if flaky.calls != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", flaky.calls)
	}
	if len(data) != 0 || len(errs) != 1 {
		t.Fatalf("expected recorded failure, data=%#v errs=%#v", data, errs)
	}
}

func TestRun_PermanentFailureNotRetried(t *testing.T) {
	broken := &recordingTool{name: "weather", results: []tool.Result{
		tool.Fail("invalid API key"),
	}}
	ex := newTestExecutor(t, broken)

	_, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{step(1, "weather")}})
	if broken.calls != 1 {
		t.Fatalf("permanent failure must not be retried, calls=%d", broken.calls)
	}
	if len(errs) != 1 {
		t.Fatalf("expected one error, got %#v", errs)
	}
}

func TestRun_SameStepTwiceYieldsDistinctKeys(t *testing.T) {
	weather := &recordingTool{name: "weather", results: []tool.Result{
		tool.Ok(map[string]interface{}{}),
	}}
	ex := newTestExecutor(t, weather)

	data, errs := ex.Run(context.Background(), core.Plan{Steps: []core.PlanStep{
		step(1, "weather"),
		step(2, "weather"),
	}})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %#v", errs)
	}
	if len(data) != 2 {
		t.Fatalf("expected distinct step keys, got %#v", data)
	}
	for _, key := range []string{"step_1_weather", "step_2_weather"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("missing key %s in %#v", key, data)
		}
	}
}

func TestRun_RepeatedRunsGiveEqualResults(t *testing.T) {
	weather := &recordingTool{name: "weather", results: []tool.Result{
		tool.Ok(map[string]interface{}{"city": "Paris"}),
	}}
	ex := newTestExecutor(t, weather)
	plan := core.Plan{Steps: []core.PlanStep{step(1, "weather")}}

	first, errs1 := ex.Run(context.Background(), plan)
	second, errs2 := ex.Run(context.Background(), plan)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeated runs diverged: %#v vs %#v", first, second)
	}
	if len(errs1) != 0 || len(errs2) != 0 {
		t.Fatalf("unexpected errors: %#v %#v", errs1, errs2)
	}
}

func TestStepKey(t *testing.T) {
	got := StepKey(core.PlanStep{StepNumber: 3, Tool: "github"})
	if got != "step_3_github" {
		t.Fatalf("expected step_3_github, got %q", got)
	}
}
