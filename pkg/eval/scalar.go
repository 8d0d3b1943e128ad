package eval

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// Vars is the variable environment of a run: name → scalar.
type Vars map[string]any

// Clone returns a shallow copy of v. A nil receiver yields an empty map.
func (v Vars) Clone() Vars {
	out := make(Vars, len(v))
	maps.Copy(out, v)
	return out
}

// Names returns the variable names in sorted order.
func (v Vars) Names() []string {
	return slices.Sorted(maps.Keys(v))
}

// Config is the caller-supplied test configuration. Values are raw strings
// and are parsed with ParseScalar when used.
type Config map[string]string

var numberRe = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

// ParseScalar converts a literal into the value bound in the environment:
// numeric-looking text becomes float64, "true"/"false" become bool, and
// anything else is kept as the original string.
func ParseScalar(s string) any {
	t := strings.TrimSpace(s)
	switch {
	case t == "true":
		return true
	case t == "false":
		return false
	case numberRe.MatchString(t):
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return f
		}
	}
	return s
}

// Literal renders v as expression source: strings single-quoted, numbers
// and booleans bare, nil as null.
func Literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(x)
	case string:
		return quote(x)
	default:
		return quote(fmt.Sprint(x))
	}
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `'`, `\'`, "\n", `\n`)

func quote(s string) string {
	return "'" + quoteReplacer.Replace(s) + "'"
}

func isNumber(v any) bool {
	_, ok := toFloat(v)
	_, isString := v.(string)
	return ok && !isString
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case uint:
		return float64(x), true
	case uint64:
		return float64(x), true
	case string:
		t := strings.TrimSpace(x)
		if !numberRe.MatchString(t) {
			return 0, false
		}
		f, err := strconv.ParseFloat(t, 64)
		return f, err == nil
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}
