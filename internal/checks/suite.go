package checks

import (
	"context"

	"github.com/lucasnoah/healfactory/internal/pipeline"
)

// Suite picks the configured toolset for a working tree's language.
type Suite struct {
	runner *Runner
	python Toolset
	js     Toolset
}

// NewSuite creates a Suite. JavaScript and TypeScript share the js toolset.
func NewSuite(runner *Runner, python, js Toolset) *Suite {
	return &Suite{runner: runner, python: python, js: js}
}

// Analyze plans and runs the tools for language in dir.
func (s *Suite) Analyze(ctx context.Context, dir, language string) (*Analysis, error) {
	tools := s.js
	if language == pipeline.LangPython || language == pipeline.LangUnknown || language == "" {
		language = pipeline.LangPython
		tools = s.python
	}
	return s.runner.Analyze(ctx, dir, PlanFor(dir, language, tools))
}
