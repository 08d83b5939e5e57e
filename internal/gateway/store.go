// store.go
//
// GORM-backed document store for users, preferences and history
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/localnerve/eagleview/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"gorm.io/hints"
)

const historyIndex = "idx_history_user_ts"

// DocStore is the Store backed by the users, preferences and history tables
type DocStore struct {
	db   *gorm.DB
	feed Feed
	log  *zap.Logger
}

// NewStore creates a DocStore. Preference changes are published on feed.
func NewStore(db *gorm.DB, feed Feed, log *zap.Logger) *DocStore {
	return &DocStore{db: db, feed: feed, log: log}
}

// quiet returns a session that does not log record-not-found on hot read paths
func (s *DocStore) quiet(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Session(&gorm.Session{Logger: s.db.Logger.LogMode(logger.Silent)})
}

func (s *DocStore) GetProfile(ctx context.Context, id string) (models.User, error) {
	var user models.User
	err := s.quiet(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// UpsertProfile writes the profile, merging into an existing record. An empty
// caregiverId never clears a stored back-reference.
func (s *DocStore) UpsertProfile(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}

	cols := []string{"name", "email", "role", "updated_at"}
	if user.CaregiverID != "" {
		cols = append(cols, "caregiver_id")
	}
	user.UpdatedAt = time.Now().UTC()

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&user).Error
}

// EnsureProfile inserts user only if no profile with its id exists, then returns the stored profile
func (s *DocStore) EnsureProfile(ctx context.Context, user models.User) (models.User, error) {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(&user).Error
	if err != nil {
		return models.User{}, fmt.Errorf("failed to ensure profile %s: %w", user.ID, err)
	}
	return s.GetProfile(ctx, user.ID)
}

func (s *DocStore) FindSeniorsOfCaregiver(ctx context.Context, caregiverID string) ([]models.User, error) {
	var seniors []models.User
	err := s.quiet(ctx).
		Where("caregiver_id = ? AND role = ?", caregiverID, models.RoleSenior).
		Order("name").
		Find(&seniors).Error
	return seniors, err
}

func (s *DocStore) SubscribePreferences(ctx context.Context, targetID string, onChange func(models.Preferences)) (Unsubscribe, error) {
	sub := &prefSubscription{fn: onChange}
	unsubscribe, err := s.feed.Subscribe(targetID, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to preferences %s: %w", targetID, err)
	}

	var stored models.Preferences
	err = s.quiet(ctx).Where("target_id = ?", targetID).First(&stored).Error
	switch {
	case err == nil:
		sub.deliver(stored)
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		s.log.Warn("preferences snapshot failed, continuing with live updates",
			zap.String("target_id", targetID), zap.Error(err))
	}

	return func() {
		sub.close()
		unsubscribe()
	}, nil
}

// UpsertPreferences merges patch into the target's record, creating it on first write,
// and publishes the merged record.
func (s *DocStore) UpsertPreferences(ctx context.Context, targetID string, patch models.PreferencesPatch) (models.Preferences, error) {
	if err := patch.Validate(); err != nil {
		return models.Preferences{}, err
	}

	row := models.DefaultPreferences(targetID)
	patch.Apply(&row)
	row.UpdatedAt = time.Now().UTC()

	cols := append(patch.Columns(), "updated_at")
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "target_id"}},
		DoUpdates: clause.AssignmentColumns(cols),
	}).Create(&row).Error
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to upsert preferences %s: %w", targetID, err)
	}

	var merged models.Preferences
	if err := s.quiet(ctx).Where("target_id = ?", targetID).First(&merged).Error; err != nil {
		return models.Preferences{}, err
	}

	if err := s.feed.Publish(ctx, merged); err != nil {
		s.log.Warn("failed to publish preferences change",
			zap.String("target_id", targetID), zap.Error(err))
	}

	return merged, nil
}

func (s *DocStore) InsertHistory(ctx context.Context, result models.AnalysisResult) error {
	return insertHistory(s.db.WithContext(ctx), &result).Error
}

// insertHistory leaves fraud_risk out of the statement entirely when there is no risk
func insertHistory(tx *gorm.DB, result *models.AnalysisResult) *gorm.DB {
	if result.FraudRisk == nil {
		tx = tx.Omit("FraudRisk")
	}
	return tx.Create(result)
}

func (s *DocStore) ListHistory(ctx context.Context, targetID string, limit int) ([]models.AnalysisResult, error) {
	q := s.quiet(ctx)
	if s.db.Dialector.Name() == "mysql" {
		q = q.Clauses(hints.UseIndex(historyIndex))
	}

	var results []models.AnalysisResult
	err := q.Where("user_id = ?", targetID).
		Order("timestamp desc").
		Limit(limit).
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	return SortHistory(results, limit), nil
}

func (s *DocStore) GetHistory(ctx context.Context, id string) (models.AnalysisResult, error) {
	var result models.AnalysisResult
	err := s.quiet(ctx).Where("id = ?", id).First(&result).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.AnalysisResult{}, ErrNotFound
		}
		return models.AnalysisResult{}, err
	}
	return result, nil
}

// SortHistory orders results newest first and truncates to limit (limit <= 0 keeps all)
func SortHistory(results []models.AnalysisResult, limit int) []models.AnalysisResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Timestamp > results[j].Timestamp
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// prefSubscription serializes deliveries for one subscriber and drops records older
// than the last one delivered, so a snapshot read cannot overwrite a newer live change.
type prefSubscription struct {
	mu     sync.Mutex
	fn     func(models.Preferences)
	last   time.Time
	closed atomic.Bool
}

func (p *prefSubscription) deliver(prefs models.Preferences) {
	if p.closed.Load() {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed.Load() || prefs.UpdatedAt.Before(p.last) {
		return
	}
	p.last = prefs.UpdatedAt
	p.fn(prefs)
}

func (p *prefSubscription) close() {
	p.closed.Store(true)
}
