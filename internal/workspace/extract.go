package workspace

import (
	"regexp"
	"strings"
)

// ExtractedMethod is one annotated test method lifted out of a class file,
// source text included, in source order.
type ExtractedMethod struct {
	Name   string
	Source string
}

var (
	javaMethodHeaderRe   = regexp.MustCompile(`public\s+void\s+(\w+)\s*\(`)
	kotlinMethodHeaderRe = regexp.MustCompile(`fun\s+(\w+)\s*\(`)
)

// SplitTestMethods extracts every @Test-annotated method from a Java or
// Kotlin class source. The method body is taken by brace counting from the
// header line, so trailing class members never leak into a method.
func SplitTestMethods(source string) []ExtractedMethod {
	lines := strings.Split(source, "\n")
	var methods []ExtractedMethod

	i := 0
	for i < len(lines) {
		if !isTestAnnotation(lines[i]) {
			i++
			continue
		}

		// Find the method header within the next few lines; other
		// annotations may sit between @Test and the header.
		headerIdx := -1
		name := ""
		for j := i + 1; j < len(lines) && j <= i+5; j++ {
			if m := javaMethodHeaderRe.FindStringSubmatch(lines[j]); m != nil {
				headerIdx, name = j, m[1]
				break
			}
			if m := kotlinMethodHeaderRe.FindStringSubmatch(lines[j]); m != nil {
				headerIdx, name = j, m[1]
				break
			}
		}
		if headerIdx < 0 {
			i++
			continue
		}

		// Advance to the opening brace, then balance.
		end := headerIdx
		depth := 0
		started := false
		for ; end < len(lines); end++ {
			depth += strings.Count(lines[end], "{") - strings.Count(lines[end], "}")
			if strings.Contains(lines[end], "{") {
				started = true
			}
			if started && depth <= 0 {
				break
			}
		}
		if end >= len(lines) {
			break
		}

		methods = append(methods, ExtractedMethod{
			Name:   name,
			Source: strings.Join(lines[headerIdx:end+1], "\n"),
		})
		i = end + 1
	}
	return methods
}

func isTestAnnotation(line string) bool {
	trimmed := strings.TrimSpace(line)
	return trimmed == "@Test" || strings.HasPrefix(trimmed, "@Test(")
}
