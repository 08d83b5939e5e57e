package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// modelServer answers the first call with payload and later calls with answer
func modelServer(t *testing.T, payload, answer string) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := payload
		if calls.Add(1) > 1 {
			text = answer
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"candidates": []interface{}{
				map[string]interface{}{
					"content": map[string]interface{}{
						"parts": []interface{}{map[string]interface{}{"text": text}},
					},
				},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writePNG(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})
	path := filepath.Join(t.TempDir(), "photo.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	scanType, scanSched, scanSpeak, scanJSON, scanVerbose = "DOCUMENT", "", false, false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--env", filepath.Join(t.TempDir(), "missing.env")))
	err := rootCmd.Execute()
	return out.String(), err
}

func setupEnv(t *testing.T, baseURL string) {
	t.Setenv("BACKEND", "local")
	t.Setenv("FEED_TYPE", "memory")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("GEMINI_BASE_URL", baseURL)
	t.Setenv("SPEECH_COMMAND", "true")
}

func TestScan(t *testing.T) {
	srv := modelServer(t, `{"summary":"A utility bill","docType":"Bill","fraudRisk":"Low","fraudReasoning":"Matches your provider"}`, "")
	setupEnv(t, srv.URL)

	out, err := execute(t, "scan", writePNG(t))
	require.NoError(t, err)
	assert.Contains(t, out, "Result: A utility bill.")
	assert.Contains(t, out, "Fraud risk level is Low.")

	out, err = execute(t, "scan", "--json", writePNG(t))
	require.NoError(t, err)
	var decoded struct {
		Result struct {
			Type      string `json:"type"`
			FraudRisk string `json:"fraudRisk"`
			ImageURL  string `json:"imageUrl"`
		} `json:"result"`
		Narration string `json:"narration"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "DOCUMENT", decoded.Result.Type)
	assert.Equal(t, "Low", decoded.Result.FraudRisk)
	assert.Empty(t, decoded.Result.ImageURL)
	assert.NotEmpty(t, decoded.Narration)
}

func TestScan_Errors(t *testing.T) {
	srv := modelServer(t, `{"summary":"x"}`, "")
	setupEnv(t, srv.URL)

	_, err := execute(t, "scan", "--type", "RECEIPT", writePNG(t))
	assert.ErrorContains(t, err, "unknown type")

	_, err = execute(t, "scan", filepath.Join(t.TempDir(), "nope.png"))
	assert.Error(t, err)

	t.Setenv("GEMINI_API_KEY", "")
	_, err = execute(t, "scan", writePNG(t))
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestAsk(t *testing.T) {
	srv := modelServer(t, `{"summary":"A utility bill","docType":"Bill"}`, "It is due on Friday.")
	setupEnv(t, srv.URL)

	out, err := execute(t, "ask", writePNG(t), "When is it due?")
	require.NoError(t, err)
	assert.Contains(t, out, "It is due on Friday.")
}

func TestSayAndHealth(t *testing.T) {
	setupEnv(t, "http://127.0.0.1:1")
	if _, err := os.Stat("/bin/true"); err != nil {
		if _, err := os.Stat("/usr/bin/true"); err != nil {
			t.Skip("true is not available")
		}
	}

	_, err := execute(t, "say", "hello", "there")
	assert.NoError(t, err)

	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer healthy.Close()
	out, err := execute(t, "health", "--server", healthy.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "healthy")
}
