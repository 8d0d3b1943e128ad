package eval

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// friday is 2024-03-15 10:30 UTC.
func friday() time.Time { return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC) }

func newTestEvaluator() *Evaluator {
	return New(Options{Clock: friday, Location: time.UTC})
}

func TestSubstitute(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars Vars
		cfg  Config
		want string
	}{
		{"system variable", "${Q}", nil, Config{"Q": "abc"}, "'abc'"},
		{"system variable compared", "${Q} == 'abc'", nil, Config{"Q": "abc"}, "'abc' == 'abc'"},
		{"system variable numeric", "${limit} > 3", nil, Config{"limit": "10"}, "10 > 3"},
		{"session key", "session['tier'] == 'gold'", nil, Config{"tier": "gold"}, "'gold' == 'gold'"},
		{"session double quoted", `session["tier"]`, nil, Config{"tier": "gold"}, "'gold'"},
		{"bare identifier", "age >= 18", Vars{"age": 25.0}, nil, "25 >= 18"},
		{"environment wins", "x > 0", Vars{"x": 1.0}, Config{"x": "2"}, "1 > 0"},
		{"boolean config", "vip", nil, Config{"vip": "true"}, "true"},
		{"string contents untouched", "name == 'age'", Vars{"name": "bob", "age": 1.0}, nil, "'bob' == 'age'"},
		{"member name untouched", "user.age", Vars{"age": 3.0}, nil, "user.age"},
		{"call untouched", "check(1)", Vars{"check": true}, nil, "check(1)"},
		{"namespace untouched", "queue.AgentStaffed('sales')", nil, Config{"queue": "x", "sales": "3"}, "queue.AgentStaffed('sales')"},
		{"numeric receiver parenthesized", "n.toString()", Vars{"n": 5.0}, nil, "(5).toString()"},
		{"quote escaped", "s == 1", Vars{"s": "it's"}, nil, `'it\'s' == 1`},
		{"regex untouched", "/age/.test(name)", Vars{"age": 1.0, "name": "x"}, nil, "/age/.test('x')"},
		{"unresolved left alone", "${missing} && other", nil, nil, "${missing} && other"},
		{"passes chain", "${a} == b", Vars{"b": "z"}, Config{"a": "z"}, "'z' == 'z'"},
		{"placeholder inside literal untouched", "msg == 'cost ${x}'", nil, Config{"x": "5"}, "msg == 'cost ${x}'"},
		{"placeholder beside literal", "${x} == 'cost ${x}'", nil, Config{"x": "5"}, "5 == 'cost ${x}'"},
		{"dollar identifier", "$amount > 5", nil, Config{"$amount": "6"}, "6 > 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Substitute(tt.expr, tt.vars, tt.cfg); got != tt.want {
				t.Errorf("Substitute(%q) = %q, want %q", tt.expr, got, tt.want)
			}
		})
	}
}

func TestLowerSource(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"a === b", "a == b"},
		{"a !== 'x===y'", "a != 'x===y'"},
		{`/ab\/c/i.test(s)`, `regexTest("(?i)ab/c", s)`},
		{"/^vip/.test( tier )", `regexTest("^vip",  tier )`},
		{"x / 2 > 1", "x / 2 > 1"},
		{"(a + 1) / (b / 2)", "(a + 1) / (b / 2)"},
		{"name matches /^a+$/", `name matches "^a+$"`},
		{"1.5 / 3", "1.5 / 3"},
	}
	for _, tt := range tests {
		if got := lowerSource(tt.in); got != tt.want {
			t.Errorf("lowerSource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name string
		expr string
		vars Vars
		cfg  Config
		want bool
	}{
		{"adult", "age >= 18", Vars{"age": 25.0}, nil, true},
		{"minor", "age >= 18", Vars{"age": 12.0}, nil, false},
		{"gmail", `email.includes("@gmail.com")`, nil, Config{"email": "user@gmail.com"}, true},
		{"yahoo", `email.includes("@gmail.com")`, nil, Config{"email": "user@yahoo.com"}, false},
		{"strict equality", "status === 'active' && count !== 0", Vars{"status": "active", "count": 2.0}, nil, true},
		{"regex test", "/^vip/i.test(tier)", Vars{"tier": "VIP-gold"}, nil, true},
		{"regex test miss", "/^vip/.test(tier)", Vars{"tier": "VIP-gold"}, nil, false},
		{"lower case", "name.toLowerCase() == 'bob'", Vars{"name": "BOB"}, nil, true},
		{"starts with method", "name.startsWith('B') || false", Vars{"name": "Bob"}, nil, true},
		{"length", "name.length > 2", Vars{"name": "bob"}, nil, true},
		{"trim", "name.trim() == 'x'", Vars{"name": "  x "}, nil, true},
		{"null", "note == null", Vars{"note": nil}, nil, true},
		{"undefined", "undefined == null", nil, nil, true},
		{"word operators", "a > 1 and not b", Vars{"a": 2.0, "b": false}, nil, true},
		{"ternary", "x > 1 ? true : false", Vars{"x": 2.0}, nil, true},
		{"in array", "tier in ['gold', 'silver']", Vars{"tier": "gold"}, nil, true},
		{"matches", "code matches '^A[0-9]+$'", Vars{"code": "A12"}, nil, true},
		{"contains operator", "email contains '@'", Vars{"email": "a@b"}, nil, true},
		{"math", "Math.max(a, b) == 7", Vars{"a": 3.0, "b": 7.0}, nil, true},
		{"arithmetic", "(a + b) % 2 == 1", Vars{"a": 3.0, "b": 4.0}, nil, true},
		{"queue staffed configured", "queue.AgentStaffed('sales')", nil, Config{"sales": "3"}, true},
		{"queue staffed default", "queue.AgentStaffed('sales')", nil, nil, false},
		{"queue waiting", "queue.CallsWaiting('support') > 5", nil, Config{"support": "2"}, false},
		{"queue available default", "queue.AgentsAvailable('none') == 0", nil, nil, true},
		{"date after clock", "date.After('2024-01-01')", nil, nil, true},
		{"date before configured", "date.Before('2024-01-01')", nil, Config{"date": "2023-12-31"}, true},
		{"date equals", "date.Equals('2024-03-15')", nil, nil, true},
		{"date between", "date.Between('2024-03-01', '2024-03-31')", nil, nil, true},
		{"now before clock", "now.Before('12:00')", nil, nil, true},
		{"now after clock", "now.After('12:00')", nil, nil, false},
		{"now between wraps midnight", "now.Between('22:00', '06:00')", nil, Config{"now": "23:15"}, true},
		{"today equals", "today.Equals('Fri', 'Sat')", nil, nil, true},
		{"today weekend configured", "today.IsWeekend()", nil, Config{"today": "Sunday"}, true},
		{"today weekday from date", "today.IsWeekday()", nil, Config{"date": "2024-03-16"}, false},
		{"configured zip against quoted zip", "zip == '02134'", nil, Config{"zip": "02134"}, true},
		{"number against quoted number", "age == '25'", Vars{"age": 25.0}, nil, true},
		{"strict number against quoted number", "age === '25'", Vars{"age": 25.0}, nil, true},
		{"number against text", "age == 'adult'", Vars{"age": 25.0}, nil, false},
		{"mixed not equal", "age != '25'", Vars{"age": 25.0}, nil, false},
		{"numeric string ordered as number", "code < 10", Vars{"code": "7"}, nil, true},
		{"text ordered against number", "'abc' > 5", nil, nil, false},
		{"strings ordered lexically", "'b' > 'a'", nil, nil, true},
		{"null against number", "note == 0", Vars{"note": nil}, nil, false},
		{"dollar identifier", "$amount > 5", nil, Config{"$amount": "6"}, true},
		{"placeholder inside literal", "msg == 'cost ${y}'", Vars{"msg": "cost ${y}"}, nil, true},
	}
	ev := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ev.Evaluate(tt.expr, tt.vars, tt.cfg)
			if err != nil {
				t.Fatalf("Evaluate(%q): %v (display %q)", tt.expr, err, res.DisplayExpression)
			}
			if res.Value != tt.want {
				t.Errorf("Evaluate(%q) = %v, want %v (display %q)", tt.expr, res.Value, tt.want, res.DisplayExpression)
			}
		})
	}
}

type fakeQueues map[string]float64

func (f fakeQueues) QueueStat(queue string, metric QueueMetric) (float64, bool) {
	v, ok := f[queue+"/"+string(metric)]
	return v, ok
}

func TestEvaluate_QueueStatsSource(t *testing.T) {
	ev := New(Options{Clock: friday, Queues: fakeQueues{"sales/calls_waiting": 9}})

	res, err := ev.Evaluate("queue.CallsWaiting('sales') > 5", nil, nil)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Value {
		t.Error("expected value from QueueStats source")
	}

	// Configuration overrides the live source.
	res, err = ev.Evaluate("queue.CallsWaiting('sales') > 5", nil, Config{"sales": "1"})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Value {
		t.Error("configured value should win over QueueStats")
	}
}

func TestEvaluate_DisplayExpressionOnError(t *testing.T) {
	ev := newTestEvaluator()
	res, err := ev.Evaluate("${Q}", nil, Config{"Q": "abc"})
	if err == nil {
		t.Fatal("a string is not a boolean condition")
	}
	if !strings.Contains(res.DisplayExpression, "'abc'") || strings.Contains(res.DisplayExpression, "${Q}") {
		t.Errorf("DisplayExpression = %q", res.DisplayExpression)
	}
}

func TestEvaluate_Errors(t *testing.T) {
	tests := []struct {
		name       string
		expr       string
		vars       Vars
		kind       ErrorKind
		identifier string
		suggestion string
	}{
		{"typo", "agee >= 18", Vars{"age": 25.0}, KindUnresolved, "agee", "Did you mean 'age'?"},
		{"no variables", "missing", nil, KindUnresolved, "missing", "No variables are defined yet."},
		{"syntax", "age >= ", Vars{"age": 1.0}, KindSyntax, "", ""},
		{"empty", "   ", nil, KindSyntax, "", ""},
		{"unknown helper", "queue.AgentStafed('x')", nil, KindUnknownHelper, "queue.AgentStafed", "queue.AgentStaffed"},
		{"undefined property", "user.name == 'x'", nil, KindUndefinedProperty, "user", ""},
		{"session not configured", "session.tier == 'gold'", nil, KindUndefinedProperty, "session", "session['tier']"},
		{"not boolean", "age + 1", Vars{"age": 1.0}, KindType, "", ""},
		{"system variable", "${MISSING} == 1", nil, KindUnresolved, "MISSING", ""},
		{"object literal", "{a: 1}.a == 1", nil, KindSyntax, "", ""},
		{"bad date", "date.After('soon')", nil, KindRuntime, "", ""},
	}
	ev := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ev.Evaluate(tt.expr, tt.vars, nil)
			var evalErr *Error
			if !errors.As(err, &evalErr) {
				t.Fatalf("Evaluate(%q) error = %v, want *Error", tt.expr, err)
			}
			if evalErr.Kind != tt.kind {
				t.Errorf("kind = %s, want %s (%s)", evalErr.Kind, tt.kind, evalErr.Message)
			}
			if tt.identifier != "" && evalErr.Identifier != tt.identifier {
				t.Errorf("identifier = %q, want %q", evalErr.Identifier, tt.identifier)
			}
			if !strings.Contains(evalErr.Suggestion, tt.suggestion) {
				t.Errorf("suggestion = %q, want it to contain %q", evalErr.Suggestion, tt.suggestion)
			}
		})
	}
}

func TestEvaluate_UnresolvedListsAvailable(t *testing.T) {
	ev := newTestEvaluator()
	_, err := ev.Evaluate("score > 1", Vars{"age": 1.0}, Config{"email": "x"})
	var evalErr *Error
	if !errors.As(err, &evalErr) {
		t.Fatalf("error = %v", err)
	}
	if !strings.Contains(evalErr.Suggestion, "Available variables: age, email.") {
		t.Errorf("suggestion = %q", evalErr.Suggestion)
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	ev := newTestEvaluator()
	vars := Vars{"age": 30.0, "name": "Ann"}
	cfg := Config{"Q": "abc", "sales": "2"}
	expr := "${Q} == 'abc' && age > 18 && queue.AgentsOnline('sales') >= 2 && name.startsWith('A')"

	first, err1 := ev.Evaluate(expr, vars, cfg)
	second, err2 := ev.Evaluate(expr, vars, cfg)
	if err1 != nil || err2 != nil {
		t.Fatalf("errors: %v, %v", err1, err2)
	}
	if first != second {
		t.Errorf("results differ: %+v vs %+v", first, second)
	}
	if !first.Value {
		t.Errorf("value = false, display %q", first.DisplayExpression)
	}
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name string
		body string
		vars Vars
		want Output
	}{
		{
			name: "assignment",
			body: "result = price * qty",
			vars: Vars{"price": 2.5, "qty": 4.0},
			want: Output{Record: map[string]any{"result": 10.0}},
		},
		{
			name: "record",
			body: "return { queueName: 'Sales', isDefault: true }",
			want: Output{Record: map[string]any{"queueName": "Sales", "isDefault": true}},
		},
		{
			name: "multi-line record",
			body: "return {\n  queueName: 'Sales',\n  isDefault: false\n}",
			want: Output{Record: map[string]any{"queueName": "Sales", "isDefault": false}},
		},
		{
			name: "statements and return",
			body: "total = a + b\nreturn total * 2",
			vars: Vars{"a": 1.0, "b": 2.0},
			want: Output{Record: map[string]any{"total": 3.0}, Scalar: 6.0, HasScalar: true},
		},
		{
			name: "declaration and trailing expression",
			body: "let greeting = 'hi ' + name; greeting.toUpperCase()",
			vars: Vars{"name": "bo"},
			want: Output{Record: map[string]any{"greeting": "hi bo"}, Scalar: "HI BO", HasScalar: true},
		},
		{
			name: "comments and blank lines",
			body: "// discount\n\nrate = 0.5;\n",
			want: Output{Record: map[string]any{"rate": 0.5}},
		},
		{
			name: "empty",
			body: "",
			want: Output{Record: map[string]any{}},
		},
	}
	ev := newTestEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ev.Compute(tt.body, tt.vars)
			if err != nil {
				t.Fatalf("Compute: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Compute mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	vars := Vars{"x": 1.0}
	if _, err := newTestEvaluator().Compute("x = x + 1", vars); err != nil {
		t.Fatal(err)
	}
	if vars["x"] != 1.0 {
		t.Errorf("input vars mutated: %v", vars)
	}
}

func TestCompute_NoHelpers(t *testing.T) {
	_, err := newTestEvaluator().Compute("return queue.AgentStaffed('x')", nil)
	var evalErr *Error
	if !errors.As(err, &evalErr) {
		t.Fatalf("error = %v", err)
	}
	if evalErr.Kind != KindUnknownHelper || !strings.Contains(evalErr.Message, "not available") {
		t.Errorf("got %s: %s", evalErr.Kind, evalErr.Message)
	}
}

func TestParseScalar(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"25", 25.0},
		{"-3.5", -3.5},
		{"1e3", 1000.0},
		{"true", true},
		{"false", false},
		{"abc", "abc"},
		{"Infinity", "Infinity"},
		{"", ""},
		{"12abc", "12abc"},
	}
	for _, tt := range tests {
		if got := ParseScalar(tt.in); got != tt.want {
			t.Errorf("ParseScalar(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}
