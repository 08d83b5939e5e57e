package devstack

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/localnerve/eagleview/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("DB_DATABASE", "")
	t.Setenv("REDIS_IMAGE", "redis:7.4")
	t.Setenv("DEBUG_CONTAINER", "true")

	opts := OptionsFromEnv()
	assert.Equal(t, "eagleview", opts.DBDatabase)
	assert.Equal(t, "redis:7.4", opts.RedisImage)
	assert.Equal(t, "8080", opts.AuthzPort)
	assert.True(t, opts.Debug)
	assert.False(t, opts.WithServer)
}

func TestWriteEnv(t *testing.T) {
	s := &Stack{Env: map[string]string{
		"BACKEND":    "remote",
		"REDIS_ADDR": "localhost:32768",
		"NATS_URL":   "nats://localhost:32769",
	}}
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, s.WriteEnv(path))

	got, err := godotenv.Read(path)
	require.NoError(t, err)
	assert.Equal(t, s.Env, got)
}

func TestTerminate_Empty(t *testing.T) {
	assert.NoError(t, (&Stack{}).Terminate(context.Background()))
}

// TestStart needs a docker daemon; set DEVSTACK_TEST=true to run it
func TestStart(t *testing.T) {
	if os.Getenv("DEVSTACK_TEST") != "true" {
		t.Skip("set DEVSTACK_TEST=true to run against docker")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stack, err := Start(ctx, OptionsFromEnv(), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, stack.Terminate(context.Background()))
	})

	for _, key := range []string{"DB_HOST", "DB_PORT", "AUTHZ_URL", "REDIS_ADDR", "NATS_URL"} {
		assert.NotEmpty(t, stack.Env[key], key)
	}
	assert.NoError(t, utils.PingRedis(ctx, stack.Env["REDIS_ADDR"], "", 0))
	assert.NoError(t, utils.PingNATS(stack.Env["NATS_URL"]))
}
