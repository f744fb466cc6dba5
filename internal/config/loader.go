package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "healfactory.yaml"

// Load reads and parses a configuration from the given YAML file path.
// After parsing, it applies defaults to every field left unset.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadDefault searches for a config in standard locations and loads the first
// one found. Search order: ./healfactory.yaml, ~/.healfactory/config.yaml.
// With no file present it returns the built-in defaults and an empty path.
func LoadDefault() (*Config, string, error) {
	for _, path := range searchPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := Load(path)
			return cfg, path, err
		}
	}
	return Default(), "", nil
}

func searchPaths() []string {
	candidates := []string{FileName}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".healfactory", "config.yaml"))
	}
	return candidates
}

// DataHome returns ~/.healfactory, or .healfactory when the home directory is unknown.
func DataHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".healfactory"
	}
	return filepath.Join(home, ".healfactory")
}

// applyDefaults fills every zero-valued setting with its built-in default.
func applyDefaults(cfg *Config) {
	setString(&cfg.Server.Host, "0.0.0.0")
	setInt(&cfg.Server.Port, 8000)

	setString(&cfg.Storage.DataDir, DataHome())
	setString(&cfg.Storage.WorkspaceDir, filepath.Join(cfg.Storage.DataDir, "workspace"))

	setInt(&cfg.Pipeline.DefaultRetryLimit, 5)
	setInt(&cfg.Pipeline.MaxRetryLimit, 20)
	setString(&cfg.Pipeline.DefaultTeam, "HEAL_TEAM")
	setString(&cfg.Pipeline.DefaultLeader, "LEADER")

	py := &cfg.Tools.Python
	setTool(&py.Test, "pytest", "python -m pytest --tb=short -v .", "pytest", "2m")
	setTool(&py.Lint, "flake8", "python -m flake8 . --max-line-length=120 --format=%(path)s:%(row)d:%(col)d: %(code)s %(text)s", "flake8", "1m")
	js := &cfg.Tools.JavaScript
	setTool(&js.Test, "jest", "npm test -- --no-coverage --forceExit --passWithNoTests", "jest", "3m")
	setTool(&js.Lint, "eslint", "npx eslint . --format compact", "eslint-compact", "1m")

	d := &cfg.Delegate
	setString(&d.OpenAIModel, "gpt-4o")
	setString(&d.AnthropicModel, "claude-3-5-haiku-latest")
	setString(&d.Timeout, "60s")
	setInt(&d.MaxRetries, 2)
	setInt(&d.ContextLines, 10)
	setInt(&d.MaxTokens, 1024)
	if d.Temperature == 0 {
		d.Temperature = 0.1
	}

	g := &cfg.Git
	setString(&g.AuthorName, "healfactory")
	setString(&g.AuthorEmail, "healfactory@localhost")
	setString(&g.Timeout, "2m")
	setInt(&g.CloneDepth, 1)

	c := &cfg.CI
	setString(&c.InitialDelay, "5s")
	setString(&c.PollInterval, "10s")
	setInt(&c.MaxPolls, 60)
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = 1
	}

	l := &cfg.Logging
	setString(&l.Level, "info")
	setString(&l.Format, "console")
	setInt(&l.MaxSizeMB, 50)
	setInt(&l.MaxBackups, 3)
	setInt(&l.MaxAgeDays, 28)
}

func setTool(t *Tool, name, command, parser, timeout string) {
	setString(&t.Name, name)
	setString(&t.Command, command)
	setString(&t.Parser, parser)
	setString(&t.Timeout, timeout)
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst == 0 {
		*dst = def
	}
}
