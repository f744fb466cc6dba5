package config

import (
	"time"

	"github.com/lucasnoah/healfactory/internal/checks"
)

// Config is the top-level configuration structure parsed from healfactory.yaml.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Tools    ToolsConfig    `yaml:"tools"`
	Delegate DelegateConfig `yaml:"delegate"`
	Git      GitConfig      `yaml:"git"`
	GitHub   GitHubConfig   `yaml:"github"`
	CI       CIConfig       `yaml:"ci"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig is the HTTP front door's listen address.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig locates run records and working trees.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	WorkspaceDir string `yaml:"workspace_dir"`
}

// PipelineConfig holds run defaults applied to trigger requests.
type PipelineConfig struct {
	DefaultRetryLimit int    `yaml:"default_retry_limit"`
	MaxRetryLimit     int    `yaml:"max_retry_limit"`
	DefaultTeam       string `yaml:"default_team"`
	DefaultLeader     string `yaml:"default_leader"`
}

// ToolsConfig holds the test and lint tools per language family.
type ToolsConfig struct {
	Python     LanguageTools `yaml:"python"`
	JavaScript LanguageTools `yaml:"javascript"`
}

// LanguageTools is one language family's test and lint tool.
type LanguageTools struct {
	Test Tool `yaml:"test"`
	Lint Tool `yaml:"lint"`
}

// Tool is an external command whose output is parsed into failures.
type Tool struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
	Parser  string `yaml:"parser"`
	Timeout string `yaml:"timeout"`
}

// DelegateConfig configures the remote fixer.
type DelegateConfig struct {
	FixerKey         string  `yaml:"fixer_key"`
	OpenAIModel      string  `yaml:"openai_model"`
	OpenAIBaseURL    string  `yaml:"openai_base_url"`
	AnthropicModel   string  `yaml:"anthropic_model"`
	AnthropicBaseURL string  `yaml:"anthropic_base_url"`
	Timeout          string  `yaml:"timeout"`
	MaxRetries       int     `yaml:"max_retries"`
	ContextLines     int     `yaml:"context_lines"`
	MaxTokens        int     `yaml:"max_tokens"`
	Temperature      float64 `yaml:"temperature"`
	TemplateDir      string  `yaml:"template_dir"`
}

// GitConfig configures publishing.
type GitConfig struct {
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
	OpenPR      bool   `yaml:"open_pr"`
	BaseBranch  string `yaml:"base_branch"`
	Timeout     string `yaml:"timeout"`
	CloneDepth  int    `yaml:"clone_depth"`
}

// GitHubConfig holds the default token and API endpoint.
type GitHubConfig struct {
	Token  string `yaml:"token"`
	APIURL string `yaml:"api_url"`
}

// CIConfig configures the CI poll loop.
type CIConfig struct {
	InitialDelay      string  `yaml:"initial_delay"`
	PollInterval      string  `yaml:"poll_interval"`
	MaxPolls          int     `yaml:"max_polls"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// DatabaseConfig enables PostgreSQL run history when URL is set.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// LoggingConfig configures the zap logger and its rotating file.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ToolConfig converts t for the check runner.
func (t Tool) ToolConfig() checks.ToolConfig {
	return checks.ToolConfig{
		Name:    t.Name,
		Command: t.Command,
		Parser:  t.Parser,
		Timeout: Duration(t.Timeout, 2*time.Minute),
	}
}

// Toolset converts l for the check runner.
func (l LanguageTools) Toolset() checks.Toolset {
	return checks.Toolset{Test: l.Test.ToolConfig(), Lint: l.Lint.ToolConfig()}
}

// Duration parses s, returning def when s is empty or invalid.
// Validate reports invalid values.
func Duration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
