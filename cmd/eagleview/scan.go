package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/localnerve/eagleview/internal/capture"
	"github.com/localnerve/eagleview/internal/config"
	"github.com/localnerve/eagleview/internal/logging"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/vision"
	"github.com/spf13/cobra"
)

var (
	scanType    string
	scanSched   string
	scanSpeak   bool
	scanJSON    bool
	scanVerbose bool
)

func init() {
	for _, cmd := range []*cobra.Command{scanCmd, askCmd} {
		cmd.Flags().StringVarP(&scanType, "type", "t", string(models.AnalysisDocument), "PILLBOX, FINE_PRINT or DOCUMENT")
		cmd.Flags().StringVar(&scanSched, "schedule", "", "medication schedule to check a PILLBOX against")
		cmd.Flags().BoolVar(&scanSpeak, "speak", false, "read the result aloud")
		cmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "log vision calls")
	}
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "print the full result as JSON")
}

// scanCmd analyzes one image
var scanCmd = &cobra.Command{
	Use:   "scan <image>",
	Short: "Analyze a photo and print the narration",
	Long: `Analyze a JPEG, PNG or GIF photo.

Examples:
  # Check a pill organizer against a schedule
  eagleview scan --type PILLBOX --schedule "Mon 8am: aspirin" pills.jpg

  # Read a medication label aloud
  eagleview scan -t FINE_PRINT --speak label.png`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

// askCmd analyzes one image and answers a question about it
var askCmd = &cobra.Command{
	Use:   "ask <image> <question>",
	Short: "Analyze a photo and answer a follow-up question",
	Long: `Analyze a photo, then ask the vision model about it.

Examples:
  eagleview ask -t DOCUMENT letter.jpg "When is the bill due?"`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func analyzeFile(ctx context.Context, cfg *config.Config, path string) (*vision.Client, models.AnalysisResult, error) {
	kind := models.AnalysisType(strings.ToUpper(scanType))
	if !kind.Valid() {
		return nil, models.AnalysisResult{}, fmt.Errorf("unknown type %q, expected PILLBOX, FINE_PRINT or DOCUMENT", scanType)
	}
	if cfg.GeminiAPIKey == "" {
		return nil, models.AnalysisResult{}, errors.New("GEMINI_API_KEY is not set")
	}

	level := "warn"
	if scanVerbose {
		level = "debug"
	}
	log, err := logging.New(level, "console", "eagleview-cli")
	if err != nil {
		return nil, models.AnalysisResult{}, err
	}

	image, err := capture.New(0).FromFile(ctx, path)
	if err != nil {
		return nil, models.AnalysisResult{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	client := vision.New(vision.Config{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
		Timeout: cfg.VisionTimeout,
	}, log)

	schedule := ""
	if kind == models.AnalysisPillbox {
		schedule = scanSched
	}
	payload, err := client.Analyze(ctx, image, kind, schedule)
	if err != nil {
		return nil, models.AnalysisResult{}, err
	}

	result, err := models.NewAnalysisResult(models.ResultInput{
		ID:          uuid.NewString(),
		TargetID:    "cli",
		PerformedBy: "cli",
		Timestamp:   time.Now().UnixMilli(),
		Type:        kind,
		ImageURL:    image,
		Details:     payload,
	})
	return client, result, err
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	_, result, err := analyzeFile(ctx, cfg, args[0])
	if err != nil {
		return err
	}

	narration := vision.Narrate(result)
	if scanJSON {
		result.ImageURL = ""
		out, err := json.MarshalIndent(struct {
			Result    models.AnalysisResult `json:"result"`
			Narration string                `json:"narration"`
		}{result, narration}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), narration)
	}

	if scanSpeak {
		return speak(ctx, cfg, narration)
	}
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	client, result, err := analyzeFile(ctx, cfg, args[0])
	if err != nil {
		return err
	}
	answer, err := client.Ask(ctx, result, args[1])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), answer)

	if scanSpeak {
		return speak(ctx, cfg, answer)
	}
	return nil
}
