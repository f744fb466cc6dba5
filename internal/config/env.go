package config

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. HEALFACTORY_SERVER_PORT.
const EnvPrefix = "HEALFACTORY"

// NewViper returns a viper instance that resolves config keys from
// HEALFACTORY_* environment variables. Callers may bind cobra flags to it.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("delegate.fixer_key", EnvPrefix+"_FIXER_KEY", EnvPrefix+"_DELEGATE_FIXER_KEY")
	_ = v.BindEnv("github.token", EnvPrefix+"_GITHUB_TOKEN")
	return v
}

// ApplyOverrides copies every key set in v, from the environment or a bound
// flag, onto cfg. Keys left unset keep the file or default value.
func ApplyOverrides(cfg *Config, v *viper.Viper) {
	str := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	num := func(key string, dst *int) {
		if v.IsSet(key) {
			*dst = v.GetInt(key)
		}
	}
	flag := func(key string, dst *bool) {
		if v.IsSet(key) {
			*dst = v.GetBool(key)
		}
	}

	str("server.host", &cfg.Server.Host)
	num("server.port", &cfg.Server.Port)
	str("storage.data_dir", &cfg.Storage.DataDir)
	str("storage.workspace_dir", &cfg.Storage.WorkspaceDir)
	num("pipeline.default_retry_limit", &cfg.Pipeline.DefaultRetryLimit)
	num("pipeline.max_retry_limit", &cfg.Pipeline.MaxRetryLimit)
	str("pipeline.default_team", &cfg.Pipeline.DefaultTeam)
	str("pipeline.default_leader", &cfg.Pipeline.DefaultLeader)
	str("delegate.fixer_key", &cfg.Delegate.FixerKey)
	str("delegate.openai_model", &cfg.Delegate.OpenAIModel)
	str("delegate.openai_base_url", &cfg.Delegate.OpenAIBaseURL)
	str("delegate.anthropic_model", &cfg.Delegate.AnthropicModel)
	str("delegate.anthropic_base_url", &cfg.Delegate.AnthropicBaseURL)
	str("delegate.template_dir", &cfg.Delegate.TemplateDir)
	flag("git.open_pr", &cfg.Git.OpenPR)
	str("git.base_branch", &cfg.Git.BaseBranch)
	str("github.token", &cfg.GitHub.Token)
	str("github.api_url", &cfg.GitHub.APIURL)
	str("ci.poll_interval", &cfg.CI.PollInterval)
	num("ci.max_polls", &cfg.CI.MaxPolls)
	str("database.url", &cfg.Database.URL)
	str("logging.level", &cfg.Logging.Level)
	str("logging.format", &cfg.Logging.Format)
	str("logging.file", &cfg.Logging.File)
}
