// Package cmd holds the authctl command tree.
package cmd

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	serverAddr string
	verbose    bool
	logger     zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "authctl",
	Short: "authctl is a CLI tool to exercise the auth session core",
	Long: `A command-line interface for issuing and resolving single-use session
codes against a running authcored host, and for inspecting callback
links locally.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.WarnLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "server", "http://localhost:8080",
		"base URL of the authcored host")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
}
