package eval

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// function is the shape every registered call takes; see expr.Function.
type function = func(args ...any) (any, error)

// primitives are available to both conditions and function bodies.
func primitives() map[string]function {
	return map[string]function{
		"str.includes":    stringPredicate("includes", strings.Contains),
		"str.startsWith":  stringPredicate("startsWith", strings.HasPrefix),
		"str.endsWith":    stringPredicate("endsWith", strings.HasSuffix),
		"str.toLowerCase": stringMap("toLowerCase", strings.ToLower),
		"str.toUpperCase": stringMap("toUpperCase", strings.ToUpper),
		"str.trim":        stringMap("trim", strings.TrimSpace),

		"str.length": func(args ...any) (any, error) {
			if err := arity("length", args, 1); err != nil {
				return nil, err
			}
			if a, ok := args[0].([]any); ok {
				return len(a), nil
			}
			return utf8.RuneCountInString(toString(args[0])), nil
		},
		"str.indexOf": func(args ...any) (any, error) {
			if err := arity("indexOf", args, 2); err != nil {
				return nil, err
			}
			s, sub := toString(args[0]), toString(args[1])
			i := strings.Index(s, sub)
			if i < 0 {
				return -1, nil
			}
			return utf8.RuneCountInString(s[:i]), nil
		},
		"regexTest": func(args ...any) (any, error) {
			if err := arity("test", args, 2); err != nil {
				return nil, err
			}
			re, err := regexp.Compile(toString(args[0]))
			if err != nil {
				return nil, fmt.Errorf("invalid regular expression: %w", err)
			}
			return re.MatchString(toString(args[1])), nil
		},
		"Number": func(args ...any) (any, error) {
			if err := arity("Number", args, 1); err != nil {
				return nil, err
			}
			if f, ok := toFloat(args[0]); ok {
				return f, nil
			}
			return math.NaN(), nil
		},
		"String": func(args ...any) (any, error) {
			if err := arity("String", args, 1); err != nil {
				return nil, err
			}
			return toString(args[0]), nil
		},

		"op.eq": func(args ...any) (any, error) {
			if err := arity("==", args, 2); err != nil {
				return nil, err
			}
			return looseEqual(args[0], args[1]), nil
		},
		"op.ne": func(args ...any) (any, error) {
			if err := arity("!=", args, 2); err != nil {
				return nil, err
			}
			return !looseEqual(args[0], args[1]), nil
		},
		"op.lt": looseOrder("<", func(c int) bool { return c < 0 }),
		"op.le": looseOrder("<=", func(c int) bool { return c <= 0 }),
		"op.gt": looseOrder(">", func(c int) bool { return c > 0 }),
		"op.ge": looseOrder(">=", func(c int) bool { return c >= 0 }),

		"Math.round": mathUnary("round", func(f float64) float64 { return math.Floor(f + 0.5) }),
		"Math.floor": mathUnary("floor", math.Floor),
		"Math.ceil":  mathUnary("ceil", math.Ceil),
		"Math.abs":   mathUnary("abs", math.Abs),
		"Math.min":   mathFold("min", math.Min),
		"Math.max":   mathFold("max", math.Max),
	}
}

func arity(name string, args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("%s expects %d argument(s), got %d", name, n, len(args))
	}
	return nil
}

func stringPredicate(name string, fn func(s, sub string) bool) function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		return fn(toString(args[0]), toString(args[1])), nil
	}
}

func stringMap(name string, fn func(string) string) function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		return fn(toString(args[0])), nil
	}
}

func mathUnary(name string, fn func(float64) float64) function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1); err != nil {
			return nil, err
		}
		f, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("Math.%s: %v is not a number", name, args[0])
		}
		return fn(f), nil
	}
}

func mathFold(name string, fn func(a, b float64) float64) function {
	return func(args ...any) (any, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("Math.%s expects at least one argument", name)
		}
		var acc float64
		for i, a := range args {
			f, ok := toFloat(a)
			if !ok {
				return nil, fmt.Errorf("Math.%s: %v is not a number", name, a)
			}
			if i == 0 {
				acc = f
				continue
			}
			acc = fn(acc, f)
		}
		return acc, nil
	}
}

// looseEqual compares scalars the way JavaScript's == does: strings and
// booleans compare directly with their own kind, null only equals null, and
// any other pairing compares numerically. Values that are not numbers never
// equal a number.
func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa == sb
		}
	}
	if ba, ok := a.(bool); ok {
		if bb, ok := b.(bool); ok {
			return ba == bb
		}
	}
	fa, okA := numeric(a)
	fb, okB := numeric(b)
	return okA && okB && fa == fb
}

// looseOrder orders two strings lexically and anything else numerically.
// Pairs that cannot be ordered yield false.
func looseOrder(name string, test func(c int) bool) function {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 2); err != nil {
			return nil, err
		}
		if sa, ok := args[0].(string); ok {
			if sb, ok := args[1].(string); ok {
				return test(strings.Compare(sa, sb)), nil
			}
		}
		fa, okA := numeric(args[0])
		fb, okB := numeric(args[1])
		if !okA || !okB || math.IsNaN(fa) || math.IsNaN(fb) {
			return false, nil
		}
		switch {
		case fa < fb:
			return test(-1), nil
		case fa > fb:
			return test(1), nil
		}
		return test(0), nil
	}
}

// numeric converts numbers, numeric strings and booleans to float64.
func numeric(v any) (float64, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	return toFloat(v)
}
