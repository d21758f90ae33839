package grammar

import (
	"strings"
)

// scanStatements collects complete statements from a method body, joining
// lines until the parenthesis balance closes. Recorded tests split a
// single chain call across several lines, so the scanner is the only place
// that deals with physical layout; everything downstream sees one
// statement per string. Java bodies terminate statements with `;`; Kotlin
// bodies have no terminator, so a balanced chain ends unless the next line
// continues it with a leading `.`.
func scanStatements(body string) []string {
	var lines []string
	for _, line := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" || strings.HasPrefix(stripped, "//") {
			continue
		}
		lines = append(lines, stripped)
	}

	var statements []string
	var buf []string
	balance := 0

	flush := func() {
		joined := strings.TrimSpace(strings.Join(buf, " "))
		if joined != "" {
			statements = append(statements, normalizeWhitespace(joined))
		}
		buf = nil
		balance = 0
	}

	for i, line := range lines {
		buf = append(buf, line)
		balance += parenDelta(line)
		if balance > 0 {
			continue
		}
		joined := strings.TrimSpace(strings.Join(buf, " "))
		if strings.HasSuffix(joined, ";") {
			flush()
			continue
		}
		if strings.HasSuffix(joined, ".") || strings.HasSuffix(joined, ",") {
			continue
		}
		if i+1 < len(lines) && strings.HasPrefix(lines[i+1], ".") {
			continue
		}
		flush()
	}
	if len(buf) > 0 {
		flush()
	}
	return statements
}

// parenDelta counts opening minus closing parentheses outside string
// literals.
func parenDelta(s string) int {
	delta := 0
	inString := false
	escaped := false
	for _, ch := range s {
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			delta++
		case ')':
			delta--
		}
	}
	return delta
}

// normalizeWhitespace collapses runs of whitespace and trims spaces that
// line joining introduces around delimiters.
func normalizeWhitespace(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ReplaceAll(s, "( ", "(")
	s = strings.ReplaceAll(s, " )", ")")
	s = strings.ReplaceAll(s, " .", ".")
	s = strings.ReplaceAll(s, " ;", ";")
	return s
}

// splitTopLevelArgs splits a comma-separated argument list on commas that
// are not nested inside parentheses or string literals. Required for
// arguments like:
//
//	withId("amount"), withParent(withId("row"), hasDescendant(withId("kind")))
//
// where a naive split would cut inside withParent(...).
func splitTopLevelArgs(args string) []string {
	var parts []string
	var buf strings.Builder
	depth := 0
	inString := false
	escaped := false

	for _, ch := range args {
		if inString {
			buf.WriteRune(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
			buf.WriteRune(ch)
		case '(':
			depth++
			buf.WriteRune(ch)
		case ')':
			depth--
			buf.WriteRune(ch)
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(buf.String()))
				buf.Reset()
				continue
			}
			buf.WriteRune(ch)
		default:
			buf.WriteRune(ch)
		}
	}
	if trimmed := strings.TrimSpace(buf.String()); trimmed != "" {
		parts = append(parts, trimmed)
	}
	return parts
}

// splitCall breaks `name(args)` into its call name and raw argument text.
// The closing parenthesis must balance the opening one; trailing text after
// the call is returned as rest.
func splitCall(expr string) (name, args, rest string, ok bool) {
	expr = strings.TrimSpace(expr)
	open := strings.IndexByte(expr, '(')
	if open <= 0 {
		return "", "", "", false
	}
	name = strings.TrimSpace(expr[:open])
	for _, ch := range name {
		if !isIdentRune(ch) {
			return "", "", "", false
		}
	}
	depth := 0
	inString := false
	escaped := false
	for i := open; i < len(expr); i++ {
		ch := expr[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return name, expr[open+1 : i], strings.TrimSpace(expr[i+1:]), true
			}
		}
	}
	return "", "", "", false
}

func isIdentRune(ch rune) bool {
	return ch == '_' || ch == '.' ||
		(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

// parseStringExpr interprets the argument position of a text matcher.
// Accepted shapes, all normalized to a (value, mode) pair:
//
//	"Save"                           -> ("Save", containsIgnoreCase)
//	equalsIgnoreCase("Save")         -> ("Save", equalsIgnoreCase)
//	containsStringIgnoringCase("X")  -> ("X", containsIgnoreCase)
func parseStringExpr(expr string) (string, MatchMode, bool) {
	expr = strings.TrimSpace(expr)
	if v, ok := unquote(expr); ok {
		return v, ModeContainsIgnoreCase, true
	}
	name, args, rest, ok := splitCall(expr)
	if !ok || rest != "" {
		return "", "", false
	}
	mode, ok := stringHelperModes[name]
	if !ok {
		return "", "", false
	}
	v, ok := unquote(strings.TrimSpace(args))
	if !ok {
		return "", "", false
	}
	return v, mode, true
}

// stringHelperModes maps helper call names to normalized match modes.
// `equals` and `containsStringIgnoringCase` fold into their canonical
// case-insensitive forms.
var stringHelperModes = map[string]MatchMode{
	"equalsIgnoreCase":           ModeEqualsIgnoreCase,
	"equals":                     ModeEqualsIgnoreCase,
	"contains":                   ModeContains,
	"containsIgnoreCase":         ModeContainsIgnoreCase,
	"containsStringIgnoringCase": ModeContainsIgnoreCase,
	"startsWithIgnoreCase":       ModeStartsWithIgnoreCase,
	"endsWithIgnoreCase":         ModeEndsWithIgnoreCase,
}

func unquote(s string) (string, bool) {
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", false
	}
	var buf strings.Builder
	escaped := false
	for _, ch := range s[1 : len(s)-1] {
		if escaped {
			buf.WriteRune(ch)
			escaped = false
			continue
		}
		if ch == '\\' {
			escaped = true
			continue
		}
		if ch == '"' {
			return "", false
		}
		buf.WriteRune(ch)
	}
	if escaped {
		return "", false
	}
	return buf.String(), true
}
