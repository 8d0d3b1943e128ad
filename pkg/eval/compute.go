package eval

import (
	"fmt"
	"regexp"
	"strings"
)

// Output is what a function body produces. Record holds every assigned
// name plus the fields of a returned object; Scalar is set when the body
// ends in a non-object value.
type Output struct {
	Record    map[string]any
	Scalar    any
	HasScalar bool
}

var (
	declRe   = regexp.MustCompile(`^(?:let|const|var)\s+`)
	assignRe = regexp.MustCompile(`(?s)^([A-Za-z_]\w*)\s*=([^=].*)$`)
	returnRe = regexp.MustCompile(`(?s)^return(?:\s+(.*)|\s*)$`)
)

// Compute runs a function body against vars. Statements are separated by
// semicolons or newlines; `name = expr` binds a value visible to later
// statements and exported in the record, and `return expr` (or a trailing
// bare expression) yields the result. Only arithmetic and string
// primitives are in scope.
func (e *Evaluator) Compute(body string, vars Vars) (Output, error) {
	scope := vars.Clone()
	out := Output{Record: map[string]any{}}
	fns := primitives()

	stmts := splitStatements(body)
	for i, stmt := range stmts {
		stmt = strings.TrimSpace(declRe.ReplaceAllString(stmt, ""))

		var value any
		var err *Error
		switch {
		case returnRe.MatchString(stmt):
			src := strings.TrimSpace(returnRe.FindStringSubmatch(stmt)[1])
			if src == "" {
				return out, nil
			}
			value, err = run(src, scope, fns, true, scope.Names())
			if err != nil {
				return out, statementError(err, body, i, len(stmts))
			}
			out.absorb(value)
			return out, nil

		case assignRe.MatchString(stmt):
			m := assignRe.FindStringSubmatch(stmt)
			value, err = run(strings.TrimSpace(m[2]), scope, fns, true, scope.Names())
			if err != nil {
				return out, statementError(err, body, i, len(stmts))
			}
			scope[m[1]] = value
			out.Record[m[1]] = value

		default:
			value, err = run(stmt, scope, fns, true, scope.Names())
			if err != nil {
				return out, statementError(err, body, i, len(stmts))
			}
			if i == len(stmts)-1 {
				out.absorb(value)
			}
		}
	}
	return out, nil
}

func (o *Output) absorb(v any) {
	if rec, ok := v.(map[string]any); ok {
		for k, val := range rec {
			o.Record[k] = val
		}
		return
	}
	o.Scalar, o.HasScalar = v, true
}

func statementError(err *Error, body string, i, n int) *Error {
	err.Expression = body
	if n > 1 {
		err.Message = fmt.Sprintf("statement %d: %s", i+1, err.Message)
	}
	return err
}

// splitStatements splits body on semicolons and newlines that are not
// nested inside brackets or string literals. Blank statements and // line
// comments are dropped.
func splitStatements(body string) []string {
	var out []string
	depth, start := 0, 0
	flush := func(end int) {
		stmt := strings.TrimSpace(body[start:end])
		if stmt != "" && !strings.HasPrefix(stmt, "//") {
			out = append(out, stmt)
		}
	}
	for i := 0; i < len(body); i++ {
		switch c := body[i]; c {
		case '\'', '"', '`':
			i = skipString(body, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
		case ';', '\n':
			if depth == 0 {
				flush(i)
				start = i + 1
			}
		}
	}
	flush(len(body))
	return out
}
