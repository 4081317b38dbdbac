package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}

	cmd := &cobra.Command{
		Use:          "quizdesk",
		Short:        "Take AI-generated quizzes and export certificates",
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.AddCommand(
		NewLoginCmd(&configPath),
		NewRegisterCmd(&configPath),
		NewLogoutCmd(&configPath),
		NewStatusCmd(&configPath),
		NewQuizzesCmd(&configPath),
		NewGenerateCmd(&configPath),
		NewTakeCmd(&configPath),
		NewHistoryCmd(&configPath),
		NewCertificatesCmd(&configPath),
		NewDownloadCmd(&configPath),
		NewServeCmd(&configPath),
	)
	return cmd
}
