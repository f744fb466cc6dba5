package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lucasnoah/healfactory/internal/config"
	"github.com/lucasnoah/healfactory/internal/logging"
)

var version = "dev"

func SetVersion(v string) {
	version = v
}

var (
	configPath string
	appConfig  *config.Config
	configFrom string
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "healfactory",
	Short: "healfactory is an autonomous CI healing agent",
	Long: `healfactory clones a repository, runs its tests and linters, fixes the
failures it finds, pushes the fixes to a branch and waits for CI, retrying
until CI passes or the retry budget is spent. Every run ends with a score.

Configuration is read from --config, ./healfactory.yaml or
~/.healfactory/config.yaml, then overridden by HEALFACTORY_* environment
variables and flags.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

// setup loads the configuration and builds the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.Load(configPath)
		configFrom = configPath
	} else {
		cfg, configFrom, err = config.LoadDefault()
	}
	if err != nil {
		return err
	}

	v := config.NewViper()
	bindFlags(v, cmd.Flags(), map[string]string{
		"log-level":    "logging.level",
		"host":         "server.host",
		"port":         "server.port",
		"database-url": "database.url",
		"open-pr":      "git.open_pr",
	})
	config.ApplyOverrides(cfg, v)

	appConfig = cfg
	logger = logging.New(cfg.Logging)
	return nil
}

// bindFlags binds each flag present on the command to its config key.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for name, key := range keys {
		if f := flags.Lookup(name); f != nil {
			_ = v.BindPFlag(key, f)
		}
	}
}

func writeJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to healfactory.yaml")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(analyticsCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(templateCmd)
	rootCmd.AddCommand(dbCmd)
}
