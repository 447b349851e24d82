package internal

import (
	"context"
	"os"
	"os/signal"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "synapse",
	Short: "Refactoring suggestions for JavaScript and TypeScript",
	Long: `synapse sends a snippet to the Synapse gateway (or analyses it locally
with --offline) and prints the detected smell, metrics and the suggested code.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"})
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
		if debug, _ := cmd.Flags().GetBool("debug"); debug || os.Getenv("DEBUG") == "1" {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		}
	},
}

func init() {
	api := os.Getenv("SYNAPSE_API_URL")
	if api == "" {
		api = "http://localhost:8080"
	}
	rootCmd.PersistentFlags().String("api", api, "gateway base URL")
	rootCmd.PersistentFlags().Bool("debug", false, "verbose logging")

	rootCmd.AddCommand(analyzeCmd, historyCmd, versionCmd)
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
