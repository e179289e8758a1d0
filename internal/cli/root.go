package cli

import (
	"context"
	"os"

	"github.com/joho/godotenv"
	"github.com/mroshb/quiz_bot/pkg/logger"
	"github.com/spf13/cobra"
)

var envFile string

// Execute runs the CLI.
func Execute() error {
	defer logger.Sync()
	return newRootCmd().ExecuteContext(context.Background())
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "quizbot",
		Short:        "Elimination quiz bot for a Telegram group",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			envErr := godotenv.Load(envFile)
			logger.Init(os.Getenv("LOG_LEVEL"), os.Getenv("APP_ENV"))
			if envErr != nil {
				logger.Info("No .env file found, using system environment", "path", envFile)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "path to the .env file")
	cmd.AddCommand(NewRunCmd())
	cmd.AddCommand(NewImportCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewFlagsCmd())
	return cmd
}
