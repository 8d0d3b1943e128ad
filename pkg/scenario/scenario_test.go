package scenario

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ormasoftchile/flowsim/internal/telemetry"
	"github.com/ormasoftchile/flowsim/pkg/eval"
	"github.com/ormasoftchile/flowsim/pkg/flowfile"
	"github.com/ormasoftchile/flowsim/pkg/graph"
	"github.com/ormasoftchile/flowsim/pkg/trace"
)

// testdataDir returns the absolute path to the repo's testdata directory.
func testdataDir(t *testing.T) string {
	t.Helper()
	_, file, _, _ := runtime.Caller(0)
	dir := filepath.Join(filepath.Dir(file), "..", "..", "testdata")
	if _, err := os.Stat(dir); err != nil {
		t.Skipf("testdata directory not found: %s", dir)
	}
	return dir
}

func fixedEvaluator() *eval.Evaluator {
	return eval.New(eval.Options{
		Clock:    func() time.Time { return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC) },
		Location: time.UTC,
	})
}

func ageGraph() graph.Graph {
	return graph.New([]graph.Node{
		{ID: "start", Kind: graph.KindStart},
		{ID: "age", Kind: graph.KindInput, Data: graph.Data{VariableName: "age", Value: "25"}},
		{ID: "check", Kind: graph.KindCondition, Data: graph.Data{Expression: "age >= 18"}},
		{ID: "adult", Kind: graph.KindEnd, Data: graph.Data{Label: "Adult"}},
		{ID: "minor", Kind: graph.KindEnd, Data: graph.Data{Label: "Minor"}},
	}, []graph.Edge{
		{ID: "e1", Source: "start", Target: "age"},
		{ID: "e2", Source: "age", Target: "check"},
		{ID: "e3", Source: "check", Target: "adult", Branch: graph.BranchTrue},
		{ID: "e4", Source: "check", Target: "minor", Branch: graph.BranchFalse},
	}, graph.WithName("age-check"))
}

// writeFlow saves g as dir/age.json together with the given scenarios.
func writeFlow(t *testing.T, g graph.Graph, scenarios map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "age.json")
	if err := flowfile.Save(path, flowfile.New(g, nil)); err != nil {
		t.Fatalf("save flow: %v", err)
	}
	scenDir := filepath.Join(dir, "scenarios", "age")
	if err := os.MkdirAll(scenDir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, body := range scenarios {
		if err := os.WriteFile(filepath.Join(scenDir, name+".yaml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return path
}

func TestDiscoverScenarios(t *testing.T) {
	flow := filepath.Join(testdataDir(t), "flows", "age.json")
	scenarios, err := DiscoverScenarios(flow)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	var names []string
	for _, s := range scenarios {
		names = append(names, s.Name)
	}
	if diff := cmp.Diff([]string{"adult", "seeded", "skipped"}, names); diff != "" {
		t.Errorf("scenarios (-want +got):\n%s", diff)
	}
}

func TestDiscoverScenarios_NoDirectory(t *testing.T) {
	scenarios, err := DiscoverScenarios("/nonexistent/fake.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if scenarios != nil {
		t.Errorf("expected nil scenarios, got %d", len(scenarios))
	}
}

func TestRunner_RunAll(t *testing.T) {
	flow := filepath.Join(testdataDir(t), "flows", "age.json")
	m := telemetry.NewMetrics()
	runner := &Runner{Evaluator: fixedEvaluator(), Metrics: m}

	output, err := runner.RunAll(context.Background(), flow, false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	want := Summary{Total: 3, Passed: 2, Skipped: 1}
	if diff := cmp.Diff(want, output.Summary); diff != "" {
		for _, s := range output.Scenarios {
			t.Logf("%s: %s %v %s", s.Scenario, s.Status, s.Assertions, s.Error)
		}
		t.Fatalf("summary (-want +got):\n%s", diff)
	}
	if !output.OK() {
		t.Error("output should be OK")
	}
	if output.Flow != "age-check" {
		t.Errorf("flow = %q", output.Flow)
	}

	if got := m.CounterValue("flowsim_scenarios_total", map[string]string{"status": "passed"}); got != 2 {
		t.Errorf("passed scenarios metric = %v", got)
	}
	if got := m.CounterValue("flowsim_simulations_total", map[string]string{"status": "completed"}); got != 2 {
		t.Errorf("completed simulations metric = %v", got)
	}
	if got := m.CounterValue("flowsim_validations_total", map[string]string{"valid": "true"}); got != 1 {
		t.Errorf("validations metric = %v", got)
	}
}

func TestRunner_Failures(t *testing.T) {
	flow := writeFlow(t, ageGraph(), map[string]string{
		"wrong": `
expected_end: minor
must_reach: [minor]
must_not_reach: [adult]
expected_variables:
  age: "<18"
expected_conditions:
  check: false
`,
		"broken": "expected_stauts: completed\n",
	})

	output, err := (&Runner{Evaluator: fixedEvaluator()}).RunAll(context.Background(), flow, false)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if output.Summary.Failed != 1 || output.Summary.Errors != 1 || output.OK() {
		t.Fatalf("summary = %+v", output.Summary)
	}

	for _, s := range output.Scenarios {
		switch s.Scenario {
		case "broken":
			if s.Status != StatusError || s.Error == "" {
				t.Errorf("broken: %+v", s)
			}
		case "wrong":
			failed := 0
			for _, a := range s.Assertions {
				if !a.Passed {
					failed++
				}
			}
			if failed != 5 {
				t.Errorf("wrong: %d failed assertions, want 5: %+v", failed, s.Assertions)
			}
		}
	}
}

func TestRunner_FailFast(t *testing.T) {
	flow := writeFlow(t, ageGraph(), map[string]string{
		"a-fails":  "expected_end: minor\n",
		"b-passes": "expected_end: adult\n",
	})
	output, err := (&Runner{Evaluator: fixedEvaluator()}).RunAll(context.Background(), flow, true)
	if err != nil {
		t.Fatal(err)
	}
	if output.Summary.Total != 1 {
		t.Errorf("fail-fast ran %d scenarios", output.Summary.Total)
	}
}

func TestRunner_InvalidFlow(t *testing.T) {
	flow := writeFlow(t, ageGraph().RemoveEdge("e4"), map[string]string{
		"young": "vars: {}\nexpected_warnings: [missing_false_path]\nmust_not_reach: [adult]\n",
	})
	runner := &Runner{Evaluator: fixedEvaluator()}
	if _, err := runner.RunAll(context.Background(), flow, false); err == nil {
		t.Fatal("invalid flow should be rejected")
	}

	// Input node always sets 25, so override the expression to take the false branch.
	g := ageGraph().RemoveEdge("e4").UpdateNode("check", func(n *graph.Node) { n.Data.Expression = "age < 18" })
	flow = writeFlow(t, g, map[string]string{
		"young": "expected_warnings: [missing_false_path]\nmust_not_reach: [adult]\n",
	})
	runner.AllowInvalid = true
	res, err := runner.RunScenario(context.Background(), flow, "young")
	if err != nil {
		t.Fatalf("RunScenario: %v", err)
	}
	if res.Status != StatusPassed {
		t.Errorf("status = %s: %+v", res.Status, res.Assertions)
	}
}

func TestRunner_RunScenarioNotFound(t *testing.T) {
	flow := writeFlow(t, ageGraph(), nil)
	if _, err := (&Runner{}).RunScenario(context.Background(), flow, "nope"); err == nil {
		t.Error("expected error for unknown scenario")
	}
}

func TestRunner_TraceDir(t *testing.T) {
	flow := writeFlow(t, ageGraph(), map[string]string{"adult": "expected_end: adult\n"})
	dir := t.TempDir()
	runner := &Runner{Evaluator: fixedEvaluator(), TraceDir: dir}
	if _, err := runner.RunAll(context.Background(), flow, false); err != nil {
		t.Fatal(err)
	}

	f, err := os.Open(filepath.Join(dir, "age-check.adult.jsonl"))
	if err != nil {
		t.Fatalf("trace file: %v", err)
	}
	defer f.Close()
	events, err := trace.ReadEvents(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 6 {
		t.Errorf("events = %d, want 6", len(events))
	}
}

func TestRunner_TraceDirUnsafeFlowName(t *testing.T) {
	flow := writeFlow(t, ageGraph().Renamed("sales/age check"), map[string]string{"adult": "expected_end: adult\n"})
	dir := t.TempDir()
	runner := &Runner{Evaluator: fixedEvaluator(), TraceDir: dir}
	out, err := runner.RunAll(context.Background(), flow, false)
	if err != nil {
		t.Fatal(err)
	}
	if out.Scenarios[0].Status != StatusPassed {
		t.Fatalf("status = %s (%s)", out.Scenarios[0].Status, out.Scenarios[0].Error)
	}
	if _, err := os.Stat(filepath.Join(dir, "sales_age_check.adult.jsonl")); err != nil {
		t.Errorf("trace file: %v", err)
	}
}

func TestTraceFileName(t *testing.T) {
	tests := []struct {
		flow, scenario, want string
	}{
		{"age-check", "adult", "age-check.adult.jsonl"},
		{"sales/age check", "adult", "sales_age_check.adult.jsonl"},
		{"../../etc", "x", ".._.._etc.x.jsonl"},
		{"..", "x", "_.x.jsonl"},
		{"", "x", "_.x.jsonl"},
		{`C:\flows\ivr`, "night shift", "C_flows_ivr.night_shift.jsonl"},
	}
	for _, tt := range tests {
		got := TraceFileName(tt.flow, tt.scenario)
		if got != tt.want {
			t.Errorf("TraceFileName(%q, %q) = %q, want %q", tt.flow, tt.scenario, got, tt.want)
		}
		if filepath.Base(got) != got {
			t.Errorf("TraceFileName(%q, %q) = %q escapes the directory", tt.flow, tt.scenario, got)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tr := trace.Trace{
		{NodeID: "start", Status: trace.StatusOK, Variables: map[string]any{}},
		{NodeID: "fn", Status: trace.StatusOK, Variables: map[string]any{"queueName": "Sales", "score": 42.0}},
		{NodeID: "check", Status: trace.StatusOK, Variables: map[string]any{}, ConditionDetail: &trace.ConditionDetail{Result: true}},
		{NodeID: "done", Status: trace.StatusCompleted, Code: trace.CodeFlowCompleted, Variables: map[string]any{}},
	}

	tests := []struct {
		name     string
		scenario Scenario
		passed   bool
	}{
		{"status", Scenario{ExpectedStatus: "completed"}, true},
		{"wrong status", Scenario{ExpectedStatus: "error"}, false},
		{"end", Scenario{ExpectedEnd: "done"}, true},
		{"must reach", Scenario{MustReach: []string{"fn", "check"}}, true},
		{"must not reach", Scenario{MustNotReach: []string{"fn"}}, false},
		{"exact variable", Scenario{ExpectedVariables: map[string]string{"queueName": "Sales"}}, true},
		{"regex variable", Scenario{ExpectedVariables: map[string]string{"queueName": "/^Sa/"}}, true},
		{"numeric variable", Scenario{ExpectedVariables: map[string]string{"score": ">40"}}, true},
		{"missing variable", Scenario{ExpectedVariables: map[string]string{"nope": "x"}}, false},
		{"condition", Scenario{ExpectedConditions: map[string]bool{"check": true}}, true},
		{"condition not evaluated", Scenario{ExpectedConditions: map[string]bool{"other": true}}, false},
		{"no warning", Scenario{ExpectedWarnings: []string{"dead_end"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := Evaluate(&tt.scenario, tr)
			if len(results) == 0 {
				t.Fatal("no assertions produced")
			}
			if got := !HasFailures(results); got != tt.passed {
				t.Errorf("passed = %v, want %v: %+v", got, tt.passed, results)
			}
		})
	}
}

func TestCompareValue(t *testing.T) {
	tests := []struct {
		expected, actual string
		want             bool
	}{
		{"Sales", "Sales", true},
		{"Sales", "sales", false},
		{"/^sal/", "sales", true},
		{"/[/", "x", false},
		{">=18", "18", true},
		{"<18", "25", false},
		{"!=0", "1", true},
		{">1", "abc", false},
	}
	for _, tt := range tests {
		if got, msg := compareValue(tt.expected, tt.actual); got != tt.want {
			t.Errorf("compareValue(%q, %q) = %v (%s), want %v", tt.expected, tt.actual, got, msg, tt.want)
		}
	}
}

func TestLoadConfig(t *testing.T) {
	dir := filepath.Join(testdataDir(t), "config")
	fromYAML, err := LoadConfig(filepath.Join(dir, "weekday.yaml"))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	fromJSON, err := LoadConfig(filepath.Join(dir, "weekday.json"))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	want := eval.Config{"email": "user@gmail.com", "region": "EU", "retries": "3", "vip": "true"}
	if diff := cmp.Diff(want, fromYAML); diff != "" {
		t.Errorf("yaml config (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, fromJSON); diff != "" {
		t.Errorf("json config (-want +got):\n%s", diff)
	}
}

func TestParseScenario_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseScenario([]byte("must_reech: [a]\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}
