// Package cmd implements CLI commands using the cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

// configFile is shared by every subcommand that needs to load the agent's
// configuration file.
var configFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "alumet",
	Short: "Alumet - modular measurement pipeline agent",
	Long: `Alumet runs a measurement pipeline agent: plugins contribute sources
(probes that poll a measurement), transforms (a fixed-order processing
chain) and outputs (writers/forwarders), wired together by a control
plane that can pause, resume or reconfigure them while the agent runs.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and runs it. Called
// once by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/alumet/config.yml",
		"config file path")
}
