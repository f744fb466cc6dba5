package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/lucasnoah/healfactory/internal/checks"
)

// ValidationError represents a single validation issue with a config.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

var recognizedLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var recognizedFormats = map[string]bool{
	"console": true,
	"json":    true,
}

// Validate checks a Config for structural and semantic errors.
// It returns a slice of all validation errors found (empty if valid).
func Validate(cfg *Config) []ValidationError {
	var errs []ValidationError
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		add("server.port", "must be between 1 and 65535, got %d", cfg.Server.Port)
	}

	p := cfg.Pipeline
	if p.MaxRetryLimit < 0 || p.MaxRetryLimit > 100 {
		add("pipeline.max_retry_limit", "must be between 0 and 100, got %d", p.MaxRetryLimit)
	}
	if p.DefaultRetryLimit < 0 || p.DefaultRetryLimit > p.MaxRetryLimit {
		add("pipeline.default_retry_limit", "must be between 0 and max_retry_limit (%d), got %d", p.MaxRetryLimit, p.DefaultRetryLimit)
	}

	for _, lang := range []struct {
		name  string
		tools LanguageTools
	}{
		{"python", cfg.Tools.Python},
		{"javascript", cfg.Tools.JavaScript},
	} {
		for _, tool := range []struct {
			kind string
			t    Tool
		}{
			{"test", lang.tools.Test},
			{"lint", lang.tools.Lint},
		} {
			prefix := fmt.Sprintf("tools.%s.%s", lang.name, tool.kind)
			if tool.t.Command == "" {
				add(prefix+".command", "is required")
			}
			if !validParser(tool.t.Parser) {
				add(prefix+".parser", "unrecognized parser %q", tool.t.Parser)
			}
			validateDuration(prefix+".timeout", tool.t.Timeout, &errs)
		}
	}

	d := cfg.Delegate
	validateDuration("delegate.timeout", d.Timeout, &errs)
	if d.MaxRetries < 0 {
		add("delegate.max_retries", "must not be negative")
	}
	if d.ContextLines < 1 {
		add("delegate.context_lines", "must be at least 1")
	}
	if d.MaxTokens < 1 {
		add("delegate.max_tokens", "must be at least 1")
	}
	if d.Temperature < 0 || d.Temperature > 2 {
		add("delegate.temperature", "must be between 0 and 2, got %g", d.Temperature)
	}
	validateURL("delegate.openai_base_url", d.OpenAIBaseURL, &errs)
	validateURL("delegate.anthropic_base_url", d.AnthropicBaseURL, &errs)

	validateDuration("git.timeout", cfg.Git.Timeout, &errs)
	if cfg.Git.CloneDepth < 0 {
		add("git.clone_depth", "must not be negative")
	}
	validateURL("github.api_url", cfg.GitHub.APIURL, &errs)

	validateDuration("ci.initial_delay", cfg.CI.InitialDelay, &errs)
	validateDuration("ci.poll_interval", cfg.CI.PollInterval, &errs)
	if cfg.CI.MaxPolls < 1 {
		add("ci.max_polls", "must be at least 1")
	}
	if cfg.CI.RequestsPerSecond < 0 {
		add("ci.requests_per_second", "must not be negative")
	}

	if cfg.Database.URL != "" {
		u, err := url.Parse(cfg.Database.URL)
		if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
			add("database.url", "must be a postgres:// URL")
		}
	}

	if !recognizedLevels[cfg.Logging.Level] {
		add("logging.level", "unrecognized level %q", cfg.Logging.Level)
	}
	if !recognizedFormats[cfg.Logging.Format] {
		add("logging.format", "must be console or json, got %q", cfg.Logging.Format)
	}

	return errs
}

func validParser(name string) bool {
	for _, p := range checks.ParserNames() {
		if p == name {
			return true
		}
	}
	return false
}

func validateDuration(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid duration %q", value)})
		return
	}
	if d < 0 {
		*errs = append(*errs, ValidationError{Field: field, Message: "must not be negative"})
	}
}

func validateURL(field, value string, errs *[]ValidationError) {
	if value == "" {
		return
	}
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		*errs = append(*errs, ValidationError{Field: field, Message: fmt.Sprintf("invalid URL %q", value)})
	}
}
