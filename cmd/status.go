package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alumet-io/alumet/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running agent's pipeline status",
	Long: `Status queries a running agent's read-only /status HTTP endpoint
(served alongside /metrics) and prints the instance id, registered
sources, outputs and each transform's current enable state.

The control handle itself has no wire protocol: this command only ever
reads the snapshot the agent publishes, it never issues control commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStatus(cmd, configFile)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.Metrics.Enabled {
		return fmt.Errorf("metrics/status server is disabled in %s", configPath)
	}

	url := fmt.Sprintf("http://%s/status", dialAddr(cfg.Metrics.Listen))
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to reach agent at %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("agent returned status %d", resp.StatusCode)
	}

	var report map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return fmt.Errorf("failed to decode status response: %w", err)
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format status: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// dialAddr turns a listen address ("", ":9091", "0.0.0.0:9091") into
// something a client can actually connect to.
func dialAddr(listen string) string {
	if strings.HasPrefix(listen, ":") {
		return "127.0.0.1" + listen
	}
	if strings.HasPrefix(listen, "0.0.0.0:") {
		return "127.0.0.1" + strings.TrimPrefix(listen, "0.0.0.0")
	}
	return listen
}
