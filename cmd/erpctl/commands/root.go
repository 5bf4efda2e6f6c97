package commands

import (
	"github.com/spf13/cobra"

	"erpinsight/internal/adapters/config"
	"erpinsight/pkg/errors"
	"erpinsight/pkg/logger"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "erpctl",
	Short: "erpctl - operator tool for the erpinsight agent service",
	Long: `erpctl inspects agent routing offline, sends questions to a running
erpinsight server, issues API tokens and tails the service's Kafka events.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(logLevel, "development")
	},
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(routeCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(eventsCmd)
}

// loadConfig reads the same environment as the server
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return cfg, nil
}
