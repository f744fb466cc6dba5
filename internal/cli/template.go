package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/lucasnoah/healfactory/internal/config"
	"github.com/lucasnoah/healfactory/internal/prompt"
)

var templateCmd = &cobra.Command{
	Use:   "template",
	Short: "Manage fixer prompt templates",
}

var templateInstallCmd = &cobra.Command{
	Use:   "install [dir]",
	Short: "Write the built-in prompt templates for editing",
	Long: `Copy the built-in fixer prompt templates into dir (default:
delegate.template_dir, or ~/.healfactory/templates). Existing files are kept.
Point delegate.template_dir at the directory to use the edited copies.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := appConfig.Delegate.TemplateDir
		if len(args) == 1 {
			dir = args[0]
		}
		if dir == "" {
			dir = filepath.Join(config.DataHome(), "templates")
		}

		written, err := prompt.InstallBuiltins(dir)
		if err != nil {
			return err
		}
		if len(written) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "Templates already present in %s\n", dir)
			return nil
		}
		for _, path := range written {
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
		}
		return nil
	},
}

var templateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the built-in prompt templates",
	Run: func(cmd *cobra.Command, args []string) {
		for _, name := range prompt.BuiltinNames() {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
	},
}

func init() {
	templateCmd.AddCommand(templateInstallCmd)
	templateCmd.AddCommand(templateListCmd)
}
