package checks

import "fmt"

// GenericParser is the fallback parser. It extracts no failures and keeps the
// tail of the output as its summary.
type GenericParser struct{}

// maxOutputLen caps how much stdout/stderr the generic parser retains.
const maxOutputLen = 8000

func (p *GenericParser) Parse(stdout string, stderr string, exitCode int) ParseResult {
	if exitCode == 0 {
		return ParseResult{Summary: "passed (exit code 0)"}
	}

	combined := combine(stdout, stderr)
	// Keep the tail, error summaries and tracebacks are usually at the end.
	if len(combined) > maxOutputLen {
		combined = "…(truncated)\n" + combined[len(combined)-maxOutputLen:]
	}
	return ParseResult{
		Summary: fmt.Sprintf("exit code %d: %s", exitCode, combined),
	}
}
