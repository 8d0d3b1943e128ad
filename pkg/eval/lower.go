package eval

import (
	"strconv"
	"strings"

	"github.com/expr-lang/expr/ast"
)

// lowerSource rewrites the JavaScript-flavored surface syntax into the expr
// dialect: === and !== become == and !=, and regex literals become Go
// pattern strings. A literal immediately followed by .test(x) turns into a
// regexTest(pattern, x) call; any other literal is left as a pattern string
// so that it can be used with the matches operator.
func lowerSource(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	var prev byte
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipString(s, i)
			b.WriteString(s[i:j])
			prev, i = c, j
		case strings.HasPrefix(s[i:], "==="):
			b.WriteString("==")
			prev, i = '=', i+3
		case strings.HasPrefix(s[i:], "!=="):
			b.WriteString("!=")
			prev, i = '=', i+3
		case c == '/' && regexAllowed(prev):
			j, ok := skipRegex(s, i)
			if !ok {
				b.WriteByte(c)
				prev, i = c, i+1
				continue
			}
			pattern := goPattern(s[i:j])
			if k, ok := cutTestCall(s, j); ok {
				b.WriteString("regexTest(" + pattern + ", ")
				prev, i = '(', k
				continue
			}
			b.WriteString(pattern)
			prev, i = '"', j
		case isIdentPart(c):
			j := i + 1
			for j < len(s) && (isIdentPart(s[j]) || s[j] == '.' && isDigitRun(s, i)) {
				j++
			}
			b.WriteString(s[i:j])
			prev, i = wordPrev(s[i:j]), j
		default:
			b.WriteByte(c)
			if !isSpace(c) {
				prev = c
			}
			i++
		}
	}
	return b.String()
}

func isDigitRun(s string, i int) bool {
	return s[i] >= '0' && s[i] <= '9'
}

// cutTestCall matches `.test(` starting at i (whitespace allowed around the
// dot) and returns the index just past the opening parenthesis.
func cutTestCall(s string, i int) (int, bool) {
	rest := strings.TrimLeft(s[i:], " \t")
	if !strings.HasPrefix(rest, ".") {
		return 0, false
	}
	rest = strings.TrimLeft(rest[1:], " \t")
	if !strings.HasPrefix(rest, "test") {
		return 0, false
	}
	rest = strings.TrimLeft(rest[4:], " \t")
	if !strings.HasPrefix(rest, "(") {
		return 0, false
	}
	return len(s) - len(rest) + 1, true
}

// goPattern converts a /pattern/flags literal into a quoted Go regexp. The
// i, m and s flags map to inline flags; g, u and y have no meaning for a
// single test and are dropped.
func goPattern(lit string) string {
	end := strings.LastIndexByte(lit, '/')
	pattern, flags := lit[1:end], lit[end+1:]
	var inline strings.Builder
	for _, f := range flags {
		if strings.ContainsRune("ims", f) && !strings.ContainsRune(inline.String(), f) {
			inline.WriteRune(f)
		}
	}
	if inline.Len() > 0 {
		pattern = "(?" + inline.String() + ")" + pattern
	}
	// JavaScript escapes the delimiter; Go does not need it.
	pattern = strings.ReplaceAll(pattern, `\/`, "/")
	return strconv.Quote(pattern)
}

// stringMethods maps JavaScript string methods onto registered functions
// that take the receiver as their first argument.
var stringMethods = map[string]string{
	"includes":    "str.includes",
	"startsWith":  "str.startsWith",
	"endsWith":    "str.endsWith",
	"toLowerCase": "str.toLowerCase",
	"toUpperCase": "str.toUpperCase",
	"trim":        "str.trim",
	"indexOf":     "str.indexOf",
	"toString":    "String",
}

// patcher rewrites the parsed tree into calls the sandbox and compiler
// understand:
//
//	queue.AgentStaffed('q')   → "queue.AgentStaffed"('q')
//	name.toLowerCase()        → "str.toLowerCase"(name)
//	name.length               → "str.length"(name)
//	null, undefined           → nil
//	a == b, a < b, …          → "op.eq"(a, b), "op.lt"(a, b), …
type patcher struct{}

// comparisons maps comparison operators onto the loose comparison
// functions, so that a number and a numeric string compare by value instead
// of failing to compile.
var comparisons = map[string]string{
	"==": "op.eq",
	"!=": "op.ne",
	"<":  "op.lt",
	"<=": "op.le",
	">":  "op.gt",
	">=": "op.ge",
}

func (patcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		if n.Value == "null" || n.Value == "undefined" {
			ast.Patch(node, &ast.NilNode{})
		}

	case *ast.BinaryNode:
		if fn, ok := comparisons[n.Operator]; ok {
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: fn},
				Arguments: []ast.Node{n.Left, n.Right},
			})
		}

	case *ast.MemberNode:
		if n.Method {
			return
		}
		prop, ok := n.Property.(*ast.StringNode)
		if !ok || prop.Value != "length" || receiverIsNamespace(n.Node) {
			return
		}
		ast.Patch(node, &ast.CallNode{
			Callee:    &ast.IdentifierNode{Value: "str.length"},
			Arguments: []ast.Node{n.Node},
		})

	case *ast.CallNode:
		m, ok := n.Callee.(*ast.MemberNode)
		if !ok {
			return
		}
		prop, ok := m.Property.(*ast.StringNode)
		if !ok {
			return
		}
		if ns, ok := m.Node.(*ast.IdentifierNode); ok && namespaces[ns.Value] {
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: ns.Value + "." + prop.Value},
				Arguments: n.Arguments,
			})
			return
		}
		if fn, ok := stringMethods[prop.Value]; ok {
			args := append([]ast.Node{m.Node}, n.Arguments...)
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: fn},
				Arguments: args,
			})
		}
	}
}

func receiverIsNamespace(n ast.Node) bool {
	id, ok := n.(*ast.IdentifierNode)
	return ok && namespaces[id.Value]
}
