package cli

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	port       string
	configPath string
)

// Execute runs the CLI.
func Execute() error {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envPort := os.Getenv("PORT")
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quiz-attempt-service",
		Short:        "Timed quiz attempts, scoring and leaderboards",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	start := NewStartCmd(&configPath, &port)
	start.Flags().StringVar(&port, "port", envPort, "port to listen on (overrides config)")
	cmd.AddCommand(start)
	cmd.AddCommand(NewMigrateCmd(&configPath))
	cmd.AddCommand(NewLeaderboardCmd(&configPath))
	cmd.AddCommand(NewSeedCmd(&configPath))
	return cmd
}
