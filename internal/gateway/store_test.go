package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/localnerve/eagleview/internal/database"
	"github.com/localnerve/eagleview/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// every connection to :memory: is its own database
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.AutoMigrate(db))
	return db
}

func setupTestStore(t *testing.T) (*DocStore, *MemoryFeed) {
	feed := NewMemoryFeed()
	return NewStore(setupTestDB(t), feed, zap.NewNop()), feed
}

func boolPtr(b bool) *bool { return &b }

func fontPtr(f models.FontSize) *models.FontSize { return &f }

func TestDocStore_UpsertPreferencesMerges(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{
		HighContrast: boolPtr(true),
		FontSize:     fontPtr(models.FontNormal),
	})
	require.NoError(t, err)

	merged, err := store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{FontSize: fontPtr(models.FontLarge)})
	require.NoError(t, err)

	assert.True(t, merged.HighContrast)
	assert.Equal(t, models.FontLarge, merged.FontSize)

	var stored models.Preferences
	require.NoError(t, store.db.First(&stored, "target_id = ?", "s1").Error)
	assert.True(t, stored.HighContrast)
	assert.Equal(t, models.FontLarge, stored.FontSize)
}

func TestDocStore_UpsertPreferencesRejectsBadFont(t *testing.T) {
	store, _ := setupTestStore(t)
	_, err := store.UpsertPreferences(context.Background(), "s1", models.PreferencesPatch{FontSize: fontPtr("huge")})
	assert.Error(t, err)
}

func TestDocStore_SubscribePreferences(t *testing.T) {
	store, feed := setupTestStore(t)
	ctx := context.Background()

	_, err := store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{MedicationSchedule: strPtr("8am: aspirin")})
	require.NoError(t, err)

	var mu sync.Mutex
	var got []models.Preferences
	unsubscribe, err := store.SubscribePreferences(ctx, "s1", func(p models.Preferences) {
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
	})
	require.NoError(t, err)

	// snapshot first
	mu.Lock()
	require.Len(t, got, 1)
	assert.Equal(t, "8am: aspirin", got[0].MedicationSchedule)
	mu.Unlock()

	_, err = store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{CaregiverNote: strPtr("Call me")})
	require.NoError(t, err)

	mu.Lock()
	require.Len(t, got, 2)
	assert.Equal(t, "Call me", got[1].CaregiverNote)
	assert.Equal(t, "8am: aspirin", got[1].MedicationSchedule)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	assert.Equal(t, 0, feed.Subscribers("s1"))

	_, err = store.UpsertPreferences(ctx, "s1", models.PreferencesPatch{HighContrast: boolPtr(true)})
	require.NoError(t, err)
	mu.Lock()
	assert.Len(t, got, 2)
	mu.Unlock()
}

func TestPrefSubscription_DropsOlderRecords(t *testing.T) {
	var got []string
	sub := &prefSubscription{fn: func(p models.Preferences) { got = append(got, p.CaregiverNote) }}
	now := time.Now()

	sub.deliver(models.Preferences{CaregiverNote: "new", UpdatedAt: now})
	sub.deliver(models.Preferences{CaregiverNote: "old", UpdatedAt: now.Add(-time.Second)})
	sub.deliver(models.Preferences{CaregiverNote: "same", UpdatedAt: now})
	sub.close()
	sub.deliver(models.Preferences{CaregiverNote: "late", UpdatedAt: now.Add(time.Second)})

	assert.Equal(t, []string{"new", "same"}, got)
}

func TestDocStore_ListHistoryOrdersNewestFirst(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	for i, ts := range []int64{100, 300, 200} {
		result, err := models.NewAnalysisResult(models.ResultInput{
			ID:          string(rune('a' + i)),
			TargetID:    "s1",
			PerformedBy: "s1",
			Timestamp:   ts,
			Type:        models.AnalysisFinePrint,
		})
		require.NoError(t, err)
		require.NoError(t, store.InsertHistory(ctx, result))
	}

	results, err := store.ListHistory(ctx, "s1", 50)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []int64{300, 200, 100}, timestamps(results))

	results, err = store.ListHistory(ctx, "s1", 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{300, 200}, timestamps(results))

	results, err = store.ListHistory(ctx, "other", 50)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSortHistory(t *testing.T) {
	results := []models.AnalysisResult{{Timestamp: 100}, {Timestamp: 300}, {Timestamp: 200}}
	assert.Equal(t, []int64{300, 200, 100}, timestamps(SortHistory(results, 0)))
	assert.Equal(t, []int64{300}, timestamps(SortHistory(results, 1)))
}

func TestInsertHistory_OmitsFraudRiskColumn(t *testing.T) {
	db := setupTestDB(t)
	dry := db.Session(&gorm.Session{DryRun: true})

	pillbox, err := models.NewAnalysisResult(models.ResultInput{
		ID: "p1", TargetID: "s1", Type: models.AnalysisPillbox,
		Details: json.RawMessage(`{"summary":"ok","compartments":[]}`),
	})
	require.NoError(t, err)
	stmt := insertHistory(dry, &pillbox).Statement
	assert.NotContains(t, stmt.SQL.String(), "fraud_risk")

	document, err := models.NewAnalysisResult(models.ResultInput{
		ID: "d1", TargetID: "s1", Type: models.AnalysisDocument,
		Details: json.RawMessage(`{"docType":"Bill","summary":"Power bill","fraudRisk":"Low"}`),
	})
	require.NoError(t, err)
	stmt = insertHistory(dry, &document).Statement
	assert.Contains(t, stmt.SQL.String(), "fraud_risk")
}

func TestDocStore_GetHistoryRoundTrip(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	result, err := models.NewAnalysisResult(models.ResultInput{
		ID: "d1", TargetID: "s1", PerformedBy: "c1", Timestamp: 42, Type: models.AnalysisDocument,
		ImageURL: "data:image/jpeg;base64,AAAA",
		Details:  json.RawMessage(`{"docType":"Letter","summary":"Prize","fraudRisk":"High"}`),
	})
	require.NoError(t, err)
	require.NoError(t, store.InsertHistory(ctx, result))

	got, err := store.GetHistory(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.UserID)
	assert.Equal(t, "c1", got.PerformedBy)
	assert.Equal(t, models.FraudHigh, got.Risk())
	assert.Equal(t, models.LongText("data:image/jpeg;base64,AAAA"), got.ImageURL)

	doc, err := got.Document()
	require.NoError(t, err)
	assert.Equal(t, "Letter", doc.DocType)

	_, err = store.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocStore_EnsureProfileConcurrentSingleRecord(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.EnsureProfile(ctx, models.DefaultProfile("u1", "betty@example.com"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	var count int64
	require.NoError(t, store.db.Model(&models.User{}).Where("id = ?", "u1").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDocStore_EnsureProfileKeepsExisting(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertProfile(ctx, models.User{
		ID: "c1", Name: "Carol", Email: "carol@example.com", Role: models.RoleCaregiver,
	}))

	got, err := store.EnsureProfile(ctx, models.DefaultProfile("c1", "carol@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "Carol", got.Name)
	assert.Equal(t, models.RoleCaregiver, got.Role)
}

func TestDocStore_ProfilesAndSeniors(t *testing.T) {
	store, _ := setupTestStore(t)
	ctx := context.Background()

	_, err := store.GetProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.UpsertProfile(ctx, models.User{ID: "c1", Name: "Carol", Role: models.RoleCaregiver}))
	require.NoError(t, store.UpsertProfile(ctx, models.User{ID: "s2", Name: "Walter", Role: models.RoleSenior, CaregiverID: "c1"}))
	require.NoError(t, store.UpsertProfile(ctx, models.User{ID: "s1", Name: "Betty", Role: models.RoleSenior, CaregiverID: "c1"}))
	require.NoError(t, store.UpsertProfile(ctx, models.User{ID: "s3", Name: "Other", Role: models.RoleSenior, CaregiverID: "c9"}))

	// a later write without the back-reference does not clear it
	require.NoError(t, store.UpsertProfile(ctx, models.User{ID: "s1", Name: "Betty B", Role: models.RoleSenior}))

	seniors, err := store.FindSeniorsOfCaregiver(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, seniors, 2)
	assert.Equal(t, "Betty B", seniors[0].Name)
	assert.Equal(t, "c1", seniors[0].CaregiverID)
	assert.Equal(t, "Walter", seniors[1].Name)

	assert.Error(t, store.UpsertProfile(ctx, models.User{ID: "x", Role: "ADMIN"}))
}

func strPtr(s string) *string { return &s }

func timestamps(results []models.AnalysisResult) []int64 {
	ts := make([]int64, len(results))
	for i, r := range results {
		ts[i] = r.Timestamp
	}
	return ts
}
