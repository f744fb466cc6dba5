// Package fixer turns classified failures into applied or failed fix records,
// preferring a remote delegate and falling back to deterministic rules.
package fixer

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/pipeline"
	"github.com/lucasnoah/healfactory/internal/prompt"
)

// NotFoundDescription is reported when a failure's file cannot be located.
const NotFoundDescription = "file not found – skipped"

// Fixer synthesizes one FixRecord per FailureEvent.
type Fixer struct {
	delegate     Delegate
	contextLines int
	templateDir  string
	logger       *zap.Logger
}

// New creates a Fixer. A nil delegate uses the rule table for every failure.
func New(delegate Delegate, logger *zap.Logger) *Fixer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fixer{delegate: delegate, contextLines: 10, logger: logger}
}

// SetContextLines sets how many lines on each side of the failing line the delegate sees.
func (f *Fixer) SetContextLines(n int) {
	if n > 0 {
		f.contextLines = n
	}
}

// SetTemplateDir sets a directory whose prompt templates override the built-ins.
func (f *Fixer) SetTemplateDir(dir string) {
	f.templateDir = dir
}

// FixAll fixes every failure in order. The result has exactly one record per
// failure, in the same order.
func (f *Fixer) FixAll(ctx context.Context, root, language string, failures []pipeline.FailureEvent) []pipeline.FixRecord {
	fixes := make([]pipeline.FixRecord, 0, len(failures))
	for _, failure := range failures {
		fixes = append(fixes, f.Fix(ctx, root, language, failure))
	}
	return fixes
}

// Fix produces the fix record for a single failure.
func (f *Fixer) Fix(ctx context.Context, root, language string, failure pipeline.FailureEvent) pipeline.FixRecord {
	rec := pipeline.FixRecord{
		BugType: failure.BugType,
		File:    failure.File,
		Line:    failure.Line,
	}

	path := Resolve(root, failure.File)
	if path == "" {
		rec.FixDescription = NotFoundDescription
		rec.Status = pipeline.FixFailed
		return rec
	}

	data, err := os.ReadFile(path)
	if err != nil {
		rec.FixDescription = fmt.Sprintf("read file error: %v", err)
		rec.Status = pipeline.FixFailed
		return rec
	}
	lines := splitLines(string(data))

	if f.delegate != nil {
		if desc, code, ok := f.propose(ctx, language, failure, lines); ok {
			start, end := Window(len(lines), failure.Line, f.contextLines)
			if err := writeLines(path, Splice(lines, start, end, code)); err != nil {
				rec.FixDescription = fmt.Sprintf("delegate fix write error: %v", err)
				rec.Status = pipeline.FixFailed
				return rec
			}
			rec.FixDescription = desc
			rec.Patch = code
			rec.Status = pipeline.FixApplied
			return rec
		}
	}

	desc, patch := DefaultDescription, ""
	idx := failure.Line - 1
	if idx >= 0 && idx < len(lines) {
		var fixed string
		desc, fixed = ApplyRule(failure.BugType, language, lines[idx])
		if fixed != lines[idx] || desc != DefaultDescription {
			patch = fixed
		}
		lines[idx] = fixed
	}
	if err := writeLines(path, lines); err != nil {
		rec.FixDescription = fmt.Sprintf("rule-based fix error: %v", err)
		rec.Status = pipeline.FixFailed
		return rec
	}
	rec.FixDescription = desc
	rec.Patch = patch
	rec.Status = pipeline.FixApplied
	return rec
}

// propose asks the delegate for a replacement of the context window. Any
// failure is reported as ok=false so the caller falls back to the rules.
func (f *Fixer) propose(ctx context.Context, language string, failure pipeline.FailureEvent, lines []string) (string, string, bool) {
	start, end := Window(len(lines), failure.Line, f.contextLines)
	req, err := f.buildRequest(language, failure, lines, start, end)
	if err != nil {
		f.logger.Warn("render fix prompt", zap.Error(err))
		return "", "", false
	}

	text, err := f.delegate.Complete(ctx, req)
	if err != nil {
		f.logger.Info("delegate unavailable, using rules",
			zap.String("delegate", f.delegate.Name()),
			zap.String("file", failure.File),
			zap.Int("line", failure.Line),
			zap.Error(err))
		return "", "", false
	}

	desc, code := ParseResponse(text)
	if code == "" {
		f.logger.Info("delegate response had no code, using rules",
			zap.String("file", failure.File), zap.Int("line", failure.Line))
		return "", "", false
	}
	return desc, code, true
}

func (f *Fixer) buildRequest(language string, failure pipeline.FailureEvent, lines []string, start, end int) (Request, error) {
	system, err := prompt.Load(prompt.FixSystem, f.templateDir)
	if err != nil {
		return Request{}, err
	}
	tmpl, err := prompt.Load(prompt.FixUser, f.templateDir)
	if err != nil {
		return Request{}, err
	}
	user, err := prompt.Render(tmpl, prompt.Vars{
		"bug_type": failure.BugType,
		"file":     failure.File,
		"line":     strconv.Itoa(failure.Line),
		"message":  failure.Message,
		"language": language,
		"start":    strconv.Itoa(start + 1),
		"end":      strconv.Itoa(end),
		"context":  strings.Join(lines[start:end], ""),
	})
	if err != nil {
		return Request{}, err
	}
	return Request{System: system, Prompt: user}, nil
}

// Window returns the half-open line index range [start, end) covering
// radius lines on each side of the 1-based line, clipped to the file.
func Window(total, line, radius int) (start, end int) {
	start = line - radius - 1
	if start < 0 {
		start = 0
	}
	end = line + radius
	if end > total {
		end = total
	}
	if start > end {
		start = end
	}
	return start, end
}

// Splice replaces lines[start:end] with code. The replacement ends with a
// newline whenever the replaced window did.
func Splice(lines []string, start, end int, code string) []string {
	replacement := code
	if end > start && strings.HasSuffix(lines[end-1], "\n") && !strings.HasSuffix(replacement, "\n") {
		replacement += "\n"
	}
	out := make([]string, 0, len(lines)-(end-start)+1)
	out = append(out, lines[:start]...)
	out = append(out, splitLines(replacement)...)
	out = append(out, lines[end:]...)
	return out
}

// splitLines splits text into lines that keep their line endings.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.SplitAfter(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func writeLines(path string, lines []string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strings.Join(lines, "")), info.Mode().Perm())
}
