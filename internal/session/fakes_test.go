package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/eagleview/internal/database"
	"github.com/localnerve/eagleview/internal/gateway"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/localnerve/eagleview/internal/retry"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var errStoreDown = errors.New("store unavailable")

type fixture struct {
	idKV    *gateway.MemoryKV
	storeKV *gateway.MemoryKV
	feed    *gateway.MemoryFeed
	store   *gateway.LocalStore
}

func newFixture() *fixture {
	f := &fixture{
		idKV:    gateway.NewMemoryKV(),
		storeKV: gateway.NewMemoryKV(),
		feed:    gateway.NewMemoryFeed(),
	}
	f.store = gateway.NewLocalStore(f.storeKV, f.feed, zap.NewNop())
	return f
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func (f *fixture) identity() *gateway.LocalIdentity {
	return gateway.NewLocalIdentity(f.idKV).WithCost(bcrypt.MinCost)
}

func testOptions() Options {
	return Options{
		Retry:            retry.Policy{Attempts: 3, Delay: 5 * time.Millisecond},
		HistoryPageSize:  50,
		NoteReadoutDelay: 10 * time.Millisecond,
		Now:              func() time.Time { return time.UnixMilli(1700000000000) },
	}
}

func newTestCore(t *testing.T, store gateway.Store, identity gateway.Identity, vision Vision, speaker Speaker) *Core {
	t.Helper()
	c := New(store, identity, vision, speaker, zap.NewNop(), testOptions())
	t.Cleanup(c.Close)
	return c
}

func syncCore(t *testing.T, c *Core) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Sync(ctx))
}

// storedPreferences reads the stored record through a subscription snapshot
func storedPreferences(t *testing.T, store gateway.Store, targetID string) models.Preferences {
	t.Helper()
	got := make(chan models.Preferences, 4)
	unsubscribe, err := store.SubscribePreferences(context.Background(), targetID, func(p models.Preferences) {
		got <- p
	})
	require.NoError(t, err)
	defer unsubscribe()

	select {
	case p := <-got:
		return p
	case <-time.After(time.Second):
		t.Fatal("no preferences snapshot delivered")
		return models.Preferences{}
	}
}

// laggingStore hides each profile for the first lag lookups, like a store that has not
// caught up with a fresh write
type laggingStore struct {
	gateway.Store
	lag int

	mu      sync.Mutex
	lookups map[string]int
}

func newLaggingStore(store gateway.Store, lag int) *laggingStore {
	return &laggingStore{Store: store, lag: lag, lookups: make(map[string]int)}
}

func (s *laggingStore) GetProfile(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	s.lookups[id]++
	n := s.lookups[id]
	s.mu.Unlock()

	if n <= s.lag {
		return models.User{}, gateway.ErrNotFound
	}
	return s.Store.GetProfile(ctx, id)
}

func (s *laggingStore) Lookups(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups[id]
}

// slowProfileStore takes delay for every profile lookup
type slowProfileStore struct {
	gateway.Store
	delay time.Duration

	mu      sync.Mutex
	lookups int
}

func (s *slowProfileStore) GetProfile(ctx context.Context, id string) (models.User, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()

	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return models.User{}, ctx.Err()
	}
	return s.Store.GetProfile(ctx, id)
}

func (s *slowProfileStore) Lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lookups
}

// capturingStore keeps every preferences callback and counts live subscriptions
type capturingStore struct {
	gateway.Store

	mu        sync.Mutex
	callbacks map[string][]func(models.Preferences)
	active    map[string]int
}

func newCapturingStore(store gateway.Store) *capturingStore {
	return &capturingStore{
		Store:     store,
		callbacks: make(map[string][]func(models.Preferences)),
		active:    make(map[string]int),
	}
}

func (s *capturingStore) SubscribePreferences(ctx context.Context, targetID string, onChange func(models.Preferences)) (gateway.Unsubscribe, error) {
	s.mu.Lock()
	s.callbacks[targetID] = append(s.callbacks[targetID], onChange)
	s.active[targetID]++
	s.mu.Unlock()

	inner, err := s.Store.SubscribePreferences(ctx, targetID, onChange)
	if err != nil {
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.active[targetID]--
			s.mu.Unlock()
			inner()
		})
	}, nil
}

func (s *capturingStore) Callback(targetID string) func(models.Preferences) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cbs := s.callbacks[targetID]
	if len(cbs) == 0 {
		return nil
	}
	return cbs[len(cbs)-1]
}

func (s *capturingStore) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, n := range s.active {
		total += n
	}
	return total
}

// failingStore fails the selected operations
type failingStore struct {
	gateway.Store
	failInsert bool
	failPrefs  bool
	failList   bool
}

func (s *failingStore) InsertHistory(ctx context.Context, result models.AnalysisResult) error {
	if s.failInsert {
		return errStoreDown
	}
	return s.Store.InsertHistory(ctx, result)
}

func (s *failingStore) UpsertPreferences(ctx context.Context, targetID string, patch models.PreferencesPatch) (models.Preferences, error) {
	if s.failPrefs {
		return models.Preferences{}, errStoreDown
	}
	return s.Store.UpsertPreferences(ctx, targetID, patch)
}

func (s *failingStore) ListHistory(ctx context.Context, targetID string, limit int) ([]models.AnalysisResult, error) {
	if s.failList {
		return nil, errStoreDown
	}
	return s.Store.ListHistory(ctx, targetID, limit)
}

type recordingSpeaker struct {
	mu      sync.Mutex
	spoken  []string
	cancels int
}

func (s *recordingSpeaker) Speak(text string) {
	s.mu.Lock()
	s.spoken = append(s.spoken, text)
	s.mu.Unlock()
}

func (s *recordingSpeaker) Cancel() {
	s.mu.Lock()
	s.cancels++
	s.mu.Unlock()
}

func (s *recordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *recordingSpeaker) Cancels() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancels
}

type visionCall struct {
	kind     models.AnalysisType
	schedule string
}

type fakeVision struct {
	details json.RawMessage
	answer  string
	err     error

	mu    sync.Mutex
	calls []visionCall
	asked []string
}

func (v *fakeVision) Analyze(_ context.Context, _ string, kind models.AnalysisType, schedule string) (json.RawMessage, error) {
	v.mu.Lock()
	v.calls = append(v.calls, visionCall{kind: kind, schedule: schedule})
	v.mu.Unlock()
	if v.err != nil {
		return nil, v.err
	}
	return v.details, nil
}

func (v *fakeVision) Ask(_ context.Context, result models.AnalysisResult, question string) (string, error) {
	v.mu.Lock()
	v.asked = append(v.asked, result.ID+": "+question)
	v.mu.Unlock()
	return v.answer, nil
}

func (v *fakeVision) Calls() []visionCall {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]visionCall(nil), v.calls...)
}

func sequentialIDs(ids ...string) func() string {
	var mu sync.Mutex
	next := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		id := ids[next%len(ids)]
		next++
		return id
	}
}
