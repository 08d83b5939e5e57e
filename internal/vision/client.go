// Package vision is the client for the multimodal model that reads pillboxes, labels and
// documents for the senior.
package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/localnerve/eagleview/internal/metrics"
	"github.com/localnerve/eagleview/internal/models"
	"go.uber.org/zap"
)

// FriendlyMessage is what the user sees for any vision failure
const FriendlyMessage = "I had trouble seeing that. Could you try taking a clearer photo?"

// ErrUnreadable matches every vision failure
var ErrUnreadable = errors.New("image could not be analyzed")

// Error is a vision failure. Its message is always FriendlyMessage; Reason and Err are for logs.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string { return FriendlyMessage }

func (e *Error) Unwrap() []error { return []error{ErrUnreadable, e.Err} }

// Config configures the Gemini client
type Config struct {
	APIKey  string
	Model   string
	BaseURL string
	// Timeout bounds each model call; there is no automatic retry
	Timeout time.Duration
}

// Client calls the Gemini generateContent endpoint
type Client struct {
	http  *resty.Client
	model string
	log   *zap.Logger
}

type inlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type part struct {
	InlineData *inlineData `json:"inlineData,omitempty"`
	Text       string      `json:"text,omitempty"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	Contents         []content         `json:"contents"`
	GenerationConfig *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

type apiError struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// New creates a client. A zero timeout means 45s.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-3-flash-preview"
	}
	if log == nil {
		log = zap.NewNop()
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &Client{http: client, model: cfg.Model, log: log}
}

// Analyze sends the image with the instruction for kind and returns the model's JSON payload
func (c *Client) Analyze(ctx context.Context, image string, kind models.AnalysisType, schedule string) (json.RawMessage, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("invalid analysis type %q", kind)
	}
	mimeType, data := splitDataURL(image)
	if data == "" {
		return nil, c.fail("empty_image", errors.New("no image data"))
	}

	req := generateRequest{
		Contents: []content{{
			Role: "user",
			Parts: []part{
				{InlineData: &inlineData{MimeType: mimeType, Data: data}},
				{Text: Prompt(kind, schedule)},
			},
		}},
		GenerationConfig: &generationConfig{ResponseMimeType: "application/json"},
	}

	c.log.Debug("calling vision model", zap.String("type", string(kind)), zap.Bool("schedule", schedule != ""))
	text, err := c.generate(ctx, req)
	if err != nil {
		return nil, err
	}

	payload, err := parsePayload(kind, text)
	if err != nil {
		return nil, c.fail("parse", err)
	}
	return payload, nil
}

// Ask answers a follow-up question about result, sending the original image when it is available
func (c *Client) Ask(ctx context.Context, result models.AnalysisResult, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", errors.New("question is empty")
	}

	details := string(result.Details.JSON)
	if details == "" {
		details = fmt.Sprintf(`{"summary": %q}`, result.Summary)
	}

	var parts []part
	if mimeType, data := splitDataURL(string(result.ImageURL)); data != "" {
		parts = append(parts, part{InlineData: &inlineData{MimeType: mimeType, Data: data}})
	}
	parts = append(parts, part{Text: fmt.Sprintf(askPrompt, result.Type, details, question)})

	text, err := c.generate(ctx, generateRequest{Contents: []content{{Role: "user", Parts: parts}}})
	if err != nil {
		return "", err
	}
	answer := strings.TrimSpace(text)
	if answer == "" {
		return "", c.fail("empty", errors.New("empty answer"))
	}
	return answer, nil
}

func (c *Client) generate(ctx context.Context, body generateRequest) (string, error) {
	var result generateResponse
	var apiErr apiError
	resp, err := c.http.R().
		SetContext(ctx).
		SetPathParam("model", c.model).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		if isTimeout(err) {
			return "", c.fail("timeout", err)
		}
		return "", c.fail("transport", err)
	}
	if resp.IsError() {
		return "", c.fail("status", fmt.Errorf("vision model returned %d: %s", resp.StatusCode(), apiErr.Error.Message))
	}

	if len(result.Candidates) == 0 {
		return "", nil
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

func (c *Client) fail(reason string, err error) error {
	metrics.VisionFailures.WithLabelValues(reason).Inc()
	c.log.Warn("vision model call failed", zap.String("reason", reason), zap.Error(err))
	return &Error{Reason: reason, Err: err}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// splitDataURL returns the mime type and base64 data of a data URL. Bare base64 is taken as JPEG.
func splitDataURL(image string) (string, string) {
	image = strings.TrimSpace(image)
	if !strings.HasPrefix(image, "data:") {
		return "image/jpeg", image
	}
	comma := strings.IndexByte(image, ',')
	if comma < 0 {
		return "image/jpeg", ""
	}
	mimeType := strings.TrimPrefix(image[:comma], "data:")
	mimeType = strings.TrimSuffix(mimeType, ";base64")
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	return mimeType, image[comma+1:]
}

// parsePayload checks the model text is a JSON object of the expected schema. An empty
// answer becomes "{}" so the result falls back to the default summary.
func parsePayload(kind models.AnalysisType, text string) (json.RawMessage, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		text = "{}"
	}

	raw := json.RawMessage(text)
	probe := models.AnalysisResult{Type: kind, Details: models.NewJSON(raw)}
	var err error
	switch kind {
	case models.AnalysisPillbox:
		_, err = probe.Pillbox()
	case models.AnalysisFinePrint:
		_, err = probe.FinePrint()
	case models.AnalysisDocument:
		_, err = probe.Document()
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}
