package scenario

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/ormasoftchile/flowsim/pkg/trace"
)

// Evaluate checks every expectation of s against tr. Map-valued
// expectations are checked in key order so results are stable.
func Evaluate(s *Scenario, tr trace.Trace) []AssertionResult {
	var results []AssertionResult

	if s.ExpectedStatus != "" {
		results = append(results, evalStatus(s.ExpectedStatus, string(tr.Status())))
	}
	if s.ExpectedEnd != "" {
		results = append(results, evalEnd(s.ExpectedEnd, tr.Completions()))
	}

	visited := tr.VisitedSet()
	for _, id := range s.MustReach {
		results = append(results, evalMustReach(id, visited))
	}
	for _, id := range s.MustNotReach {
		results = append(results, evalMustNotReach(id, visited))
	}

	vars := tr.Variables()
	for _, name := range slices.Sorted(maps.Keys(s.ExpectedVariables)) {
		results = append(results, evalVariable(name, s.ExpectedVariables[name], vars))
	}

	conds := tr.Conditions()
	for _, id := range slices.Sorted(maps.Keys(s.ExpectedConditions)) {
		results = append(results, evalCondition(id, s.ExpectedConditions[id], conds))
	}

	for _, code := range s.ExpectedWarnings {
		results = append(results, evalWarning(trace.Code(code), tr))
	}
	return results
}

// HasFailures returns true if any assertion in the slice failed.
func HasFailures(results []AssertionResult) bool {
	for _, r := range results {
		if !r.Passed {
			return true
		}
	}
	return false
}

func evalStatus(expected, actual string) AssertionResult {
	res := AssertionResult{Type: "expected_status", Expected: expected, Actual: actual, Passed: expected == actual}
	if !res.Passed {
		res.Message = fmt.Sprintf("expected run status %q, got %q", expected, actual)
	}
	return res
}

func evalEnd(expected string, completions []trace.StepRecord) AssertionResult {
	ids := make([]string, len(completions))
	for i, r := range completions {
		ids[i] = r.NodeID
	}
	res := AssertionResult{
		Type:     "expected_end",
		Key:      expected,
		Expected: expected,
		Actual:   strings.Join(ids, ","),
		Passed:   slices.Contains(ids, expected),
	}
	if !res.Passed {
		if len(ids) == 0 {
			res.Message = "no end node was reached"
		} else {
			res.Message = fmt.Sprintf("end node %q was not reached; reached %s", expected, res.Actual)
		}
	}
	return res
}

func evalMustReach(id string, visited map[string]bool) AssertionResult {
	if visited[id] {
		return AssertionResult{Type: "must_reach", Key: id, Passed: true}
	}
	return AssertionResult{
		Type:    "must_reach",
		Key:     id,
		Message: fmt.Sprintf("node %q was not visited", id),
	}
}

func evalMustNotReach(id string, visited map[string]bool) AssertionResult {
	if !visited[id] {
		return AssertionResult{Type: "must_not_reach", Key: id, Passed: true}
	}
	return AssertionResult{
		Type:    "must_not_reach",
		Key:     id,
		Message: fmt.Sprintf("node %q was visited but should not have been", id),
	}
}

func evalVariable(name, expected string, vars map[string]any) AssertionResult {
	v, ok := vars[name]
	if !ok {
		return AssertionResult{
			Type:     "expected_variable",
			Key:      name,
			Expected: expected,
			Message:  fmt.Sprintf("variable %q was never set", name),
		}
	}
	actual := display(v)
	passed, msg := compareValue(expected, actual)
	return AssertionResult{
		Type:     "expected_variable",
		Key:      name,
		Expected: expected,
		Actual:   actual,
		Passed:   passed,
		Message:  msg,
	}
}

func evalCondition(id string, expected bool, conds map[string]bool) AssertionResult {
	actual, ok := conds[id]
	res := AssertionResult{
		Type:     "expected_condition",
		Key:      id,
		Expected: strconv.FormatBool(expected),
	}
	if !ok {
		res.Message = fmt.Sprintf("condition %q was not evaluated", id)
		return res
	}
	res.Actual = strconv.FormatBool(actual)
	res.Passed = actual == expected
	if !res.Passed {
		res.Message = fmt.Sprintf("condition %q: expected %t, got %t", id, expected, actual)
	}
	return res
}

func evalWarning(code trace.Code, tr trace.Trace) AssertionResult {
	for _, r := range tr.WithCode(code) {
		if r.Status == trace.StatusWarning {
			return AssertionResult{Type: "expected_warning", Key: string(code), Actual: r.NodeID, Passed: true}
		}
	}
	return AssertionResult{
		Type:    "expected_warning",
		Key:     string(code),
		Message: fmt.Sprintf("no %s warning was recorded", code),
	}
}

// compareValue determines if an actual value satisfies an expected assertion.
// Supports three forms:
//   - Regex:   "/pattern/"
//   - Numeric: ">0", "<100", ">=1", "<=50", "==0", "!=0"
//   - Exact:   any other string (literal equality)
func compareValue(expected, actual string) (bool, string) {
	if len(expected) >= 2 && expected[0] == '/' && expected[len(expected)-1] == '/' {
		pattern := expected[1 : len(expected)-1]
		re, err := regexp.Compile(pattern)
		if err != nil {
			return false, fmt.Sprintf("invalid regex %q: %v", pattern, err)
		}
		if re.MatchString(actual) {
			return true, ""
		}
		return false, fmt.Sprintf("value %q does not match pattern %s", actual, expected)
	}

	for _, op := range []string{">=", "<=", "!=", "==", ">", "<"} {
		if threshold, ok := strings.CutPrefix(expected, op); ok {
			return compareNumeric(op, strings.TrimSpace(threshold), actual)
		}
	}

	if expected == actual {
		return true, ""
	}
	return false, fmt.Sprintf("expected %q, got %q", expected, actual)
}

func compareNumeric(op, threshold, actual string) (bool, string) {
	tVal, tErr := strconv.ParseFloat(threshold, 64)
	aVal, aErr := strconv.ParseFloat(actual, 64)
	if tErr != nil || aErr != nil {
		return false, fmt.Sprintf("numeric comparison %s%s failed: cannot parse %q as number", op, threshold, actual)
	}

	var passed bool
	switch op {
	case ">":
		passed = aVal > tVal
	case "<":
		passed = aVal < tVal
	case ">=":
		passed = aVal >= tVal
	case "<=":
		passed = aVal <= tVal
	case "==":
		passed = aVal == tVal
	case "!=":
		passed = aVal != tVal
	}
	if passed {
		return true, ""
	}
	return false, fmt.Sprintf("expected value %s%s, got %s", op, threshold, actual)
}

// display renders a variable value the way scenario files spell it.
func display(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	}
	return fmt.Sprint(v)
}
