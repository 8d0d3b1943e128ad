// Package eval evaluates the condition dialect used by condition nodes and
// the statement bodies of function nodes.
//
// A condition is substituted against the variable environment and test
// configuration, lowered from its JavaScript-flavored surface syntax, parsed
// with expr-lang, checked against a whitelist of node kinds and finally
// compiled and run with only the registered helpers in scope.
package eval

import (
	"maps"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
)

// Options configures an Evaluator. The zero value uses the wall clock in
// the local time zone and no queue statistics.
type Options struct {
	Clock    func() time.Time
	Location *time.Location
	Queues   QueueStats
}

// Evaluator evaluates conditions and function bodies. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	clock  func() time.Time
	loc    *time.Location
	queues QueueStats
}

// New returns an Evaluator configured by opts.
func New(opts Options) *Evaluator {
	e := &Evaluator{clock: opts.Clock, loc: opts.Location, queues: opts.Queues}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.loc == nil {
		e.loc = time.Local
	}
	return e
}

// Result is the outcome of a condition.
type Result struct {
	Value             bool   `json:"value"`
	DisplayExpression string `json:"displayExpression"`
}

// Evaluate runs a condition against vars and cfg. DisplayExpression is set
// even when an error is returned; errors are always *Error.
func (e *Evaluator) Evaluate(expression string, vars Vars, cfg Config) (Result, error) {
	display := Substitute(expression, vars, cfg)
	res := Result{DisplayExpression: display}

	if strings.TrimSpace(expression) == "" {
		return res, &Error{Kind: KindSyntax, Message: "expression is empty", Suggestion: "Enter a condition such as age >= 18."}
	}
	if name, ok := unresolvedSystemVar(display); ok {
		err := &Error{
			Kind:       KindUnresolved,
			Identifier: name,
			Message:    "system variable ${" + name + "} is not configured",
			Suggestion: "Configure '" + name + "' in the test configuration.",
		}
		err.Expression = expression
		return res, err
	}

	fns := primitives()
	maps.Copy(fns, helpers{cfg: cfg, clock: e.clock, loc: e.loc, queues: e.queues}.functions())

	out, err := run(display, vars, fns, false, availableNames(vars, cfg))
	if err != nil {
		err.Expression = expression
		return res, err
	}
	b, ok := out.(bool)
	if !ok {
		return res, &Error{
			Kind:       KindType,
			Expression: expression,
			Message:    "condition evaluated to " + Literal(out) + ", not true or false",
			Suggestion: "Use a comparison such as == or > so the condition yields a boolean.",
		}
	}
	res.Value = b
	return res, nil
}

// run parses, inspects, compiles and executes source. Identifiers bound in
// vars are visible to the program; everything else must already have been
// substituted away.
func run(source string, vars Vars, fns map[string]function, allowMaps bool, available []string) (any, *Error) {
	lowered := lowerSource(source)

	tree, err := parser.Parse(lowered)
	if err != nil {
		return nil, syntaxError(err)
	}
	ast.Walk(&tree.Node, patcher{})
	if ierr := inspect(tree.Node, vars, fns, allowMaps, available); ierr != nil {
		return nil, ierr
	}

	env := map[string]any(vars.Clone())
	opts := []expr.Option{expr.Env(env), expr.Patch(patcher{})}
	for _, name := range sortedKeys(fns) {
		opts = append(opts, expr.Function(name, fns[name]))
	}
	program, err := expr.Compile(lowered, opts...)
	if err != nil {
		return nil, compileError(err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, runtimeError(err)
	}
	return out, nil
}

func availableNames(vars Vars, cfg Config) []string {
	names := make(map[string]bool, len(vars)+len(cfg))
	for k := range vars {
		names[k] = true
	}
	for k := range cfg {
		names[k] = true
	}
	return sortedKeys(names)
}
