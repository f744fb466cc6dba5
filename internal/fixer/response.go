package fixer

import (
	"strings"

	"github.com/lucasnoah/healfactory/internal/prompt"
)

// DefaultDescription is used when a fix carries no description of its own.
const DefaultDescription = "apply automated fix"

// ParseResponse splits a delegate reply into a one-line description and the
// replacement code. An empty code string means the reply is unusable.
func ParseResponse(text string) (desc string, code string) {
	desc = DefaultDescription

	descAt := strings.Index(text, prompt.DescMarker)
	codeAt := strings.Index(text, prompt.CodeMarker)

	if descAt >= 0 {
		rest := text[descAt+len(prompt.DescMarker):]
		if i := strings.Index(rest, prompt.CodeMarker); i >= 0 {
			rest = rest[:i]
		}
		if d := firstLine(strings.TrimSpace(rest)); d != "" {
			desc = d
		}
	}
	if codeAt >= 0 {
		code = stripFences(trimBlankLines(text[codeAt+len(prompt.CodeMarker):]))
	}
	return desc, code
}

// stripFences removes a surrounding markdown code fence, if any.
func stripFences(code string) string {
	if !strings.HasPrefix(strings.TrimSpace(code), "```") {
		return code
	}
	lines := strings.Split(strings.TrimSpace(code), "\n")
	lines = lines[1:]
	if n := len(lines); n > 0 && strings.TrimSpace(lines[n-1]) == "```" {
		lines = lines[:n-1]
	}
	return trimBlankLines(strings.Join(lines, "\n"))
}

// trimBlankLines drops blank lines around code while keeping the first
// line's indentation.
func trimBlankLines(s string) string {
	s = strings.TrimRight(s, " \t\r\n")
	for {
		i := strings.IndexByte(s, '\n')
		if i < 0 || strings.TrimSpace(s[:i]) != "" {
			break
		}
		s = s[i+1:]
	}
	if strings.TrimSpace(s) == "" {
		return ""
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
