package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alumet-io/alumet/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the agent configuration file",
	Long: `Validate loads the configuration file named by --config, applies
defaults and runs every structural check (log level, pipeline channel
capacities, poll/flush interval ordering) without starting the agent.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd, configFile)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "INVALID: %v\n", err)
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "VALID: %q — %d plugin(s) configured\n", path, len(cfg.Plugins))
	return nil
}
