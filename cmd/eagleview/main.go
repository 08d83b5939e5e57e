// Package main implements the eagleview CLI: scan an image file, ask about it and speak the
// narration without a browser or a server.
package main

import (
	"os"

	"github.com/localnerve/eagleview/internal/config"
	"github.com/spf13/cobra"
)

var (
	// envFile is an optional .env to load before the environment
	envFile string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eagleview",
	Short: "Read pill organizers, fine print and documents aloud",
	Long: `eagleview sends a photo to the vision model, prints the spoken narration and can
read it aloud through the configured speech command (SPEECH_COMMAND, default espeak).

GEMINI_API_KEY must be set for scan and ask.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "path to an optional .env file")
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sayCmd)
	rootCmd.AddCommand(healthCmd)
}

// loadConfig reads the configuration. The CLI never touches the backend, so it defaults to local.
func loadConfig() (*config.Config, error) {
	if os.Getenv("BACKEND") == "" {
		os.Setenv("BACKEND", config.BackendLocal)
	}
	return config.LoadFile(envFile)
}
