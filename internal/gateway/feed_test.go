package gateway

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/go-redis/redis/v8"
	"github.com/localnerve/eagleview/internal/models"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

// exerciseFeed publishes two changes for s1 and one for s2 and checks what a s1 subscriber sees
func exerciseFeed(t *testing.T, feed Feed) {
	ctx := context.Background()
	received := make(chan models.Preferences, 4)

	unsubscribe, err := feed.Subscribe("s1", func(p models.Preferences) { received <- p })
	require.NoError(t, err)

	updated := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, feed.Publish(ctx, models.Preferences{TargetID: "s2", FontSize: models.FontLarge}))
	require.NoError(t, feed.Publish(ctx, models.Preferences{
		TargetID: "s1", HighContrast: true, FontSize: models.FontNormal, CaregiverNote: "Lunch at noon", UpdatedAt: updated,
	}))

	select {
	case p := <-received:
		assert.Equal(t, "s1", p.TargetID)
		assert.True(t, p.HighContrast)
		assert.Equal(t, "Lunch at noon", p.CaregiverNote)
		assert.True(t, updated.Equal(p.UpdatedAt))
	case <-time.After(5 * time.Second):
		t.Fatal("no preferences delivered")
	}

	unsubscribe()
	require.NoError(t, feed.Publish(ctx, models.Preferences{TargetID: "s1"}))

	select {
	case p := <-received:
		t.Fatalf("delivery after unsubscribe: %+v", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestMemoryFeed(t *testing.T) {
	feed := NewMemoryFeed()
	exerciseFeed(t, feed)
	assert.Equal(t, 0, feed.Subscribers("s1"))
	require.NoError(t, feed.Close())
}

func TestNATSFeed(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	exerciseFeed(t, NewNATSFeed(nc, zap.NewNop()))
}

func TestNATSFeed_StoreSubscription(t *testing.T) {
	server := startTestNATSServer(t)
	log := zap.NewNop()
	nc, err := ConnectNATS(server.ClientURL(), log)
	require.NoError(t, err)
	defer nc.Close()

	store := NewStore(setupTestDB(t), NewNATSFeed(nc, log), log)
	ctx := context.Background()

	received := make(chan models.Preferences, 4)
	unsubscribe, err := store.SubscribePreferences(ctx, "s1", func(p models.Preferences) { received <- p })
	require.NoError(t, err)
	defer unsubscribe()

	_, err = store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{MedicationSchedule: strPtr("9pm: statin")})
	require.NoError(t, err)

	select {
	case p := <-received:
		assert.Equal(t, "9pm: statin", p.MedicationSchedule)
	case <-time.After(5 * time.Second):
		t.Fatal("no preferences delivered over NATS")
	}
}

// startRedisContainer runs redis in docker; skipped with -short
func startRedisContainer(t *testing.T) *redis.Client {
	if testing.Short() {
		t.Skip("skipping redis container test in short mode")
	}
	ctx := context.Background()

	port, err := nat.NewPort("tcp", "6379")
	require.NoError(t, err)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{string(port)},
			WaitingFor:   wait.ForListeningPort(port).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mapped, err := container.MappedPort(ctx, port)
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("%s:%s", host, mapped.Port())})
	t.Cleanup(func() { client.Close() })
	require.NoError(t, client.Ping(ctx).Err())
	return client
}

func TestRedisFeedAndKV(t *testing.T) {
	client := startRedisContainer(t)
	ctx := context.Background()

	exerciseFeed(t, NewRedisFeed(client, zap.NewNop()))

	kv := NewRedisKV(client)
	_, err := kv.Get(ctx, "user_nobody")
	assert.ErrorIs(t, err, ErrMiss)

	ok, err := kv.SetNX(ctx, "cred_a@example.com", "x", 0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = kv.SetNX(ctx, "cred_a@example.com", "y", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, kv.Set(ctx, "history_s1", "[]", 0))
	keys, err := kv.ScanKeys(ctx, "history_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"history_s1"}, keys)

	require.NoError(t, kv.Delete(ctx, "history_s1"))
	_, err = kv.Get(ctx, "history_s1")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisKV_SharedWritersKeepEveryUpdate(t *testing.T) {
	client := startRedisContainer(t)
	other := redis.NewClient(client.Options())
	t.Cleanup(func() { other.Close() })

	// two clients stand in for two server processes
	exerciseSharedKV(t, &splitKV{RedisKV: NewRedisKV(client), other: NewRedisKV(other)}, 8)
}

// splitKV alternates Update between two KVs over the same redis
type splitKV struct {
	*RedisKV
	other *RedisKV
	turn  atomic.Uint64
}

func (s *splitKV) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if s.turn.Add(1)%2 == 0 {
		return s.other.Update(ctx, key, fn)
	}
	return s.RedisKV.Update(ctx, key, fn)
}
