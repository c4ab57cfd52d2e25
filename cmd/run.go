package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alumet-io/alumet/internal/daemon"
	"github.com/alumet-io/alumet/internal/log"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the agent in the foreground",
	Long: `Run loads the configuration, starts every configured plugin and the
measurement pipeline they assemble, and blocks until SIGTERM/SIGINT
requests a graceful shutdown or SIGHUP requests a configuration reload.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runAgent(configFile)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runAgent(configPath string) error {
	d, err := daemon.New(configPath)
	if err != nil {
		return fmt.Errorf("failed to initialize agent: %w", err)
	}

	if err := d.Start(); err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}

	if err := d.Run(); err != nil {
		log.GetLogger().WithError(err).Error("agent exited with error")
		return err
	}
	return nil
}
