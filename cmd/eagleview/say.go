package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/logging"
	"github.com/localnerve/eagleview/internal/speech"
	"github.com/localnerve/eagleview/internal/utils"
	"github.com/spf13/cobra"
)

var serverURL string

func init() {
	healthCmd.Flags().StringVar(&serverURL, "server", "http://localhost:3000", "eagleview server URL")
}

// sayCmd speaks text through the speech command
var sayCmd = &cobra.Command{
	Use:   "say <text...>",
	Short: "Speak text through the configured speech command",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return speak(cmd.Context(), cfg, strings.Join(args, " "))
	},
}

// healthCmd checks a running server
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check eagleview server health",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := utils.GetHealthy(strings.TrimRight(serverURL, "/")+"/healthz", 5*time.Second); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "healthy")
		return nil
	},
}

// speak plays text and waits for it to finish
func speak(ctx context.Context, cfg *config.Config, text string) error {
	synth, err := speech.NewCommandSynthesizer(cfg.SpeechCommand)
	if err != nil {
		return err
	}
	log, err := logging.New("warn", "console", "eagleview-cli")
	if err != nil {
		return err
	}
	defer log.Sync()

	svc := speech.New(synth, log)
	svc.Speak(text)
	if ctx == nil {
		ctx = context.Background()
	}
	return svc.Wait(ctx)
}
