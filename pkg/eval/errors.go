package eval

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/agext/levenshtein"
)

// ErrorKind classifies evaluation failures.
type ErrorKind string

const (
	KindSyntax            ErrorKind = "syntax_error"
	KindUnresolved        ErrorKind = "unresolved_variable"
	KindUndefinedProperty ErrorKind = "undefined_property"
	KindUnknownHelper     ErrorKind = "unknown_helper"
	KindType              ErrorKind = "type_error"
	KindRuntime           ErrorKind = "runtime_error"
)

// Error is returned by Evaluate and Compute. Suggestion is a human-readable
// hint for fixing the expression or the test configuration.
type Error struct {
	Kind       ErrorKind `json:"kind"`
	Expression string    `json:"expression,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	Err        error     `json:"-"`
}

func (e *Error) Error() string {
	if e.Identifier != "" && !strings.Contains(e.Message, e.Identifier) {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Identifier)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func unresolvedVariable(name string, available []string) *Error {
	var hint strings.Builder
	if len(available) == 0 {
		hint.WriteString("No variables are defined yet.")
	} else {
		fmt.Fprintf(&hint, "Available variables: %s.", strings.Join(available, ", "))
	}
	if m := closest(name, available); m != "" {
		fmt.Fprintf(&hint, " Did you mean '%s'?", m)
	}
	fmt.Fprintf(&hint, " Add an Input node that sets '%s' or configure it in the test configuration.", name)
	return &Error{
		Kind:       KindUnresolved,
		Identifier: name,
		Message:    fmt.Sprintf("variable '%s' is not defined", name),
		Suggestion: hint.String(),
	}
}

func undefinedProperty(receiver, prop string) *Error {
	suggestion := fmt.Sprintf("'%s' is not defined, so '%s.%s' cannot be read.", receiver, receiver, prop)
	if receiver == "session" {
		suggestion = fmt.Sprintf("Configure session['%s'] (key '%s') in the test configuration.", prop, prop)
	}
	return &Error{
		Kind:       KindUndefinedProperty,
		Identifier: receiver,
		Message:    fmt.Sprintf("cannot read property '%s' of undefined '%s'", prop, receiver),
		Suggestion: suggestion,
	}
}

func unknownFunction(name string, fns map[string]function) *Error {
	ns, method, dotted := strings.Cut(name, ".")
	if !dotted || !namespaces[ns] {
		return &Error{
			Kind:       KindUnknownHelper,
			Identifier: name,
			Message:    fmt.Sprintf("unknown function '%s'", name),
			Suggestion: didYouMean(name, callable(fns)),
		}
	}

	var methods []string
	for fn := range fns {
		if m, ok := strings.CutPrefix(fn, ns+"."); ok {
			methods = append(methods, m)
		}
	}
	slices.Sort(methods)
	if len(methods) == 0 {
		return &Error{
			Kind:       KindUnknownHelper,
			Identifier: name,
			Message:    fmt.Sprintf("helper namespace '%s' is not available here", ns),
			Suggestion: "Function bodies may only use arithmetic and string operations.",
		}
	}
	suggestion := fmt.Sprintf("Available %s helpers: %s.", ns, strings.Join(methods, ", "))
	if m := closest(method, methods); m != "" {
		suggestion += fmt.Sprintf(" Did you mean '%s.%s'?", ns, m)
	}
	return &Error{
		Kind:       KindUnknownHelper,
		Identifier: name,
		Message:    fmt.Sprintf("unknown helper '%s'", name),
		Suggestion: suggestion,
	}
}

// callable lists the function names a user can write; the comparison
// functions are only reachable through operators.
func callable(fns map[string]function) []string {
	var out []string
	for name := range fns {
		if !strings.HasPrefix(name, "op.") {
			out = append(out, name)
		}
	}
	return out
}

func didYouMean(name string, candidates []string) string {
	if m := closest(name, candidates); m != "" {
		return fmt.Sprintf("Did you mean '%s'?", m)
	}
	return ""
}

// closest returns the candidate within edit distance 2 of name, preferring
// the smallest distance and then lexical order.
func closest(name string, candidates []string) string {
	best, bestDist := "", 3
	for _, c := range slices.Sorted(slices.Values(candidates)) {
		if c == name {
			continue
		}
		d := levenshtein.Distance(strings.ToLower(name), strings.ToLower(c), nil)
		if d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func syntaxError(err error) *Error {
	return &Error{
		Kind:       KindSyntax,
		Message:    firstLine(err.Error()),
		Suggestion: "Check for unbalanced parentheses or quotes; compare with ==, != and combine with && or ||.",
		Err:        err,
	}
}

func compileError(err error) *Error {
	msg := firstLine(err.Error())
	if strings.Contains(msg, "unknown name") || strings.Contains(msg, "cannot fetch") {
		return &Error{Kind: KindUnresolved, Message: msg, Err: err}
	}
	return &Error{
		Kind:       KindType,
		Message:    msg,
		Suggestion: "Compare values of the same type. Numeric-looking values are numbers; quote text with single quotes.",
		Err:        err,
	}
}

func runtimeError(err error) *Error {
	return &Error{
		Kind:    KindRuntime,
		Message: firstLine(err.Error()),
		Err:     err,
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func sortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
