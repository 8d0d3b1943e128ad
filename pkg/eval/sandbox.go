package eval

import (
	"fmt"
	"slices"
	"strings"

	"github.com/expr-lang/expr/ast"
)

// inspector walks a patched tree and rejects anything outside the dialect:
// node kinds that are not whitelisted, calls to unregistered functions and
// identifiers that are not bound in the environment.
type inspector struct {
	vars      Vars
	allowMaps bool

	disallowed string
	callees    map[string]bool
	unresolved []string
	properties map[string]string
}

func (in *inspector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.NilNode, *ast.BoolNode, *ast.IntegerNode, *ast.FloatNode, *ast.StringNode,
		*ast.UnaryNode, *ast.BinaryNode, *ast.ConditionalNode, *ast.ArrayNode:
	case *ast.MapNode, *ast.PairNode:
		if !in.allowMaps {
			in.disallow("object literal")
		}
	case *ast.IdentifierNode:
		if _, ok := in.vars[n.Value]; !ok && !slices.Contains(in.unresolved, n.Value) {
			in.unresolved = append(in.unresolved, n.Value)
		}
	case *ast.MemberNode:
		id, ok := n.Node.(*ast.IdentifierNode)
		if !ok {
			return
		}
		if _, bound := in.vars[id.Value]; bound {
			return
		}
		if in.properties == nil {
			in.properties = map[string]string{}
		}
		if _, seen := in.properties[id.Value]; !seen {
			in.properties[id.Value] = memberName(n.Property)
		}
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			in.disallow("method call")
			return
		}
		if in.callees == nil {
			in.callees = map[string]bool{}
		}
		in.callees[id.Value] = true
	case *ast.BuiltinNode:
		in.disallow("function " + n.Name)
	default:
		in.disallow(nodeName(n))
	}
}

func (in *inspector) disallow(what string) {
	if in.disallowed == "" {
		in.disallowed = what
	}
}

// inspect reports the first problem found in tree, or nil. Structural
// problems win over unknown functions, which win over unbound names.
func inspect(tree ast.Node, vars Vars, fns map[string]function, allowMaps bool, available []string) *Error {
	in := &inspector{vars: vars, allowMaps: allowMaps}
	ast.Walk(&tree, in)

	if in.disallowed != "" {
		return &Error{
			Kind:       KindSyntax,
			Message:    fmt.Sprintf("unsupported construct: %s", in.disallowed),
			Suggestion: "Use comparisons, logical operators, string methods and the queue/date/now/today helpers.",
		}
	}

	for _, name := range sortedKeys(in.callees) {
		if _, ok := fns[name]; ok {
			continue
		}
		return unknownFunction(name, fns)
	}

	for _, name := range in.unresolved {
		if in.callees[name] {
			continue
		}
		if prop, ok := in.properties[name]; ok {
			return undefinedProperty(name, prop)
		}
		return unresolvedVariable(name, available)
	}
	return nil
}

func memberName(n ast.Node) string {
	if s, ok := n.(*ast.StringNode); ok {
		return s.Value
	}
	return "[…]"
}

func nodeName(n ast.Node) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", n), "*ast.")
	return strings.ToLower(strings.TrimSuffix(name, "Node"))
}
