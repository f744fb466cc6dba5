package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lucasnoah/healfactory/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate and inspect configuration",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		errs := config.Validate(appConfig)
		if len(errs) == 0 {
			cmd.Printf("Configuration is valid (%s).\n", describeSource(configFrom))
			return nil
		}
		return validationFailure(cmd, errs)
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the resolved configuration with defaults merged",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := *appConfig
		cfg.Delegate.FixerKey = redacted(cfg.Delegate.FixerKey)
		cfg.GitHub.Token = redacted(cfg.GitHub.Token)

		data, err := yaml.Marshal(&cfg)
		if err != nil {
			return fmt.Errorf("marshalling config: %w", err)
		}
		cmd.Print(string(data))
		return nil
	},
}

func validationFailure(cmd *cobra.Command, errs []config.ValidationError) error {
	cmd.Println("Validation errors:")
	for _, e := range errs {
		cmd.Printf("  - %s\n", e)
	}
	return fmt.Errorf("config has %d validation error(s)", len(errs))
}

func redacted(secret string) string {
	if secret == "" {
		return ""
	}
	return "***"
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
