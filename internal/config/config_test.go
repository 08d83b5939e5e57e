package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFile_LocalBackendDefaults(t *testing.T) {
	t.Setenv("BACKEND", BackendLocal)

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, FeedMemory, cfg.FeedType)
	assert.Equal(t, 3, cfg.ProfileRetryAttempts)
	assert.Equal(t, 800*time.Millisecond, cfg.ProfileRetryDelay)
	assert.Equal(t, 50, cfg.HistoryPageSize)
	assert.Equal(t, 1500*time.Millisecond, cfg.NoteReadoutDelay)
	assert.Equal(t, 30*time.Minute, cfg.SessionIdleTimeout)
}

func TestLoadFile_RemoteRequiresAuthorizer(t *testing.T) {
	t.Setenv("BACKEND", BackendRemote)
	t.Setenv("DB_DATABASE", "eagleview.db")
	t.Setenv("AUTHZ_URL", "")

	_, err := LoadFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUTHZ_URL")
}

func TestLoadFile_ReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "BACKEND=local\nFEED_TYPE=nats\nNATS_URL=nats://127.0.0.1:4222\nPROFILE_RETRY_DELAY=250\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))

	// godotenv does not override variables that are already set
	for _, key := range []string{"BACKEND", "FEED_TYPE", "NATS_URL", "PROFILE_RETRY_DELAY"} {
		prev, ok := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if ok {
				os.Setenv(key, prev)
			} else {
				os.Unsetenv(key)
			}
		})
	}

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)
	assert.Equal(t, FeedNATS, cfg.FeedType)
	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATSURL)
	assert.Equal(t, 250*time.Millisecond, cfg.ProfileRetryDelay)
}

func TestValidate_FeedRequiresAddress(t *testing.T) {
	cfg := &Config{Backend: BackendLocal, FeedType: FeedRedis, ProfileRetryAttempts: 3, HistoryPageSize: 50, SessionIdleTimeout: time.Minute}
	require.Error(t, cfg.Validate())

	cfg.RedisAddr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}
