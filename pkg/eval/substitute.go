package eval

import (
	"regexp"
	"strings"
)

var (
	systemVarRe = regexp.MustCompile(`\$\{\s*([A-Za-z_][\w.]*)\s*\}`)
	sessionRe   = regexp.MustCompile(`session\s*\[\s*(?:'([^']*)'|"([^"]*)")\s*\]`)
)

// namespaces are the receivers whose method calls are rewritten into
// registered functions. Identifiers with these names are never substituted.
var namespaces = map[string]bool{
	"queue": true,
	"date":  true,
	"now":   true,
	"today": true,
	"Math":  true,
	"str":   true,
}

var keywords = map[string]bool{
	"true": true, "false": true, "null": true, "undefined": true, "nil": true,
	"and": true, "or": true, "not": true, "in": true,
	"matches": true, "contains": true, "startsWith": true, "endsWith": true,
	"let": true, "const": true, "var": true, "return": true,
	"session": true,
}

// Substitute rewrites expression the way the evaluator sees it, in three
// passes: ${name} placeholders, then session['key'] lookups (both from the
// configuration first, then the environment), then bare identifiers bound in
// the environment or configuration, with the environment taking precedence.
// Anything that does not resolve is left untouched.
func Substitute(expression string, vars Vars, cfg Config) string {
	s := outsideStrings(expression, func(code string) string {
		return systemVarRe.ReplaceAllStringFunc(code, func(m string) string {
			name := systemVarRe.FindStringSubmatch(m)[1]
			if v, ok := lookupConfigFirst(name, vars, cfg); ok {
				return Literal(v)
			}
			return m
		})
	})

	s = sessionRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := sessionRe.FindStringSubmatch(m)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		if v, ok := lookupConfigFirst(key, vars, cfg); ok {
			return Literal(v)
		}
		return m
	})

	return substituteIdentifiers(s, merged(vars, cfg))
}

// unresolvedSystemVar returns the name of the first ${name} placeholder
// left in s outside string literals.
func unresolvedSystemVar(s string) (string, bool) {
	var name string
	outsideStrings(s, func(code string) string {
		if m := systemVarRe.FindStringSubmatch(code); m != nil && name == "" {
			name = m[1]
		}
		return code
	})
	return name, name != ""
}

// outsideStrings applies fn to every stretch of s between quoted literals
// and copies the literals unchanged.
func outsideStrings(s string, fn func(code string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := 0
	for i := 0; i < len(s); {
		if c := s[i]; c == '\'' || c == '"' || c == '`' {
			b.WriteString(fn(s[start:i]))
			j := skipString(s, i)
			b.WriteString(s[i:j])
			start, i = j, j
			continue
		}
		i++
	}
	b.WriteString(fn(s[start:]))
	return b.String()
}

func lookupConfigFirst(name string, vars Vars, cfg Config) (any, bool) {
	if raw, ok := cfg[name]; ok {
		return ParseScalar(raw), true
	}
	v, ok := vars[name]
	return v, ok
}

func merged(vars Vars, cfg Config) map[string]any {
	out := make(map[string]any, len(vars)+len(cfg))
	for k, v := range cfg {
		out[k] = ParseScalar(v)
	}
	for k, v := range vars {
		out[k] = v
	}
	return out
}

func substituteIdentifiers(s string, values map[string]any) string {
	var b strings.Builder
	b.Grow(len(s))
	var prev byte
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == '\'' || c == '"' || c == '`':
			j := skipString(s, i)
			b.WriteString(s[i:j])
			prev, i = c, j
		case c == '/' && regexAllowed(prev):
			if j, ok := skipRegex(s, i); ok {
				b.WriteString(s[i:j])
				prev, i = '/', j
				continue
			}
			b.WriteByte(c)
			prev, i = c, i+1
		case isIdentStart(c):
			j := i + 1
			for j < len(s) && isIdentPart(s[j]) {
				j++
			}
			word := s[i:j]
			next := nextNonSpace(s, j)
			v, ok := values[word]
			if ok && prev != '.' && next != '(' && !keywords[word] && !namespaces[word] {
				lit := Literal(v)
				if next == '.' && isNumber(v) {
					lit = "(" + lit + ")"
				}
				b.WriteString(lit)
			} else {
				b.WriteString(word)
			}
			prev, i = wordPrev(word), j
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

// ---- scanning helpers shared with lowering ----

var operatorWords = map[string]bool{
	"and": true, "or": true, "not": true, "in": true, "return": true,
	"matches": true, "contains": true, "startsWith": true, "endsWith": true,
}

// wordPrev is the scanner state after a word: operator keywords may be
// followed by a regex literal, anything else by a division.
func wordPrev(word string) byte {
	if operatorWords[word] {
		return 0
	}
	return 'a'
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || c >= '0' && c <= '9'
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func nextNonSpace(s string, i int) byte {
	for ; i < len(s); i++ {
		if !isSpace(s[i]) {
			return s[i]
		}
	}
	return 0
}

// skipString returns the index just past the string literal opening at i.
// Unterminated literals run to the end of s.
func skipString(s string, i int) int {
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j + 1
		}
	}
	return len(s)
}

// regexAllowed reports whether a '/' following prev starts a regex literal
// rather than a division.
func regexAllowed(prev byte) bool {
	return prev == 0 || strings.IndexByte("(,=:[!&|?{};+-*%<>~^", prev) >= 0
}

// skipRegex returns the index just past the regex literal (including flags)
// opening at i.
func skipRegex(s string, i int) (int, bool) {
	inClass := false
	for j := i + 1; j < len(s); j++ {
		switch c := s[j]; {
		case c == '\\':
			j++
		case c == '\n':
			return 0, false
		case c == '[':
			inClass = true
		case c == ']':
			inClass = false
		case c == '/' && !inClass:
			if j == i+1 {
				return 0, false
			}
			k := j + 1
			for k < len(s) && isIdentPart(s[k]) {
				k++
			}
			return k, true
		}
	}
	return 0, false
}
