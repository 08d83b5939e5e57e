package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/localnerve/eagleview/internal/models"
	"go.uber.org/zap"
)

// LocalStore is the offline Store over a KV. Keys:
//
//	user_{id}             profile
//	seniors_{caregiverId} ids of seniors whose caregiverId is caregiverId
//	history_{targetId}    results, newest first
//	prefs_{targetId}      preferences
//
// seniors_ is an index rebuilt from the back-reference on every profile write and
// re-checked against it on read; the back-reference stays authoritative.
//
// Every read-modify-write goes through KV.Update, so several processes may
// share one KV.
type LocalStore struct {
	kv   KV
	feed Feed
	log  *zap.Logger
}

// NewLocalStore creates a LocalStore. Preference changes are published on feed.
func NewLocalStore(kv KV, feed Feed, log *zap.Logger) *LocalStore {
	return &LocalStore{kv: kv, feed: feed, log: log}
}

func userKey(id string) string             { return "user_" + id }
func seniorsKey(caregiverID string) string { return "seniors_" + caregiverID }
func historyKey(targetID string) string    { return "history_" + targetID }
func prefsKey(targetID string) string      { return "prefs_" + targetID }

func (s *LocalStore) getJSON(ctx context.Context, key string, v interface{}) error {
	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return ErrNotFound
		}
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

// updateJSON decodes key into v (left as is when absent), lets mutate change it and
// writes it back in one KV.Update. mutate may return ErrUnchanged to skip the write.
func updateJSON[T any](ctx context.Context, kv KV, key string, mutate func(v *T, found bool) error) error {
	return kv.Update(ctx, key, func(current string, found bool) (string, error) {
		var v T
		if found {
			if err := json.Unmarshal([]byte(current), &v); err != nil {
				return "", err
			}
		}
		if err := mutate(&v, found); err != nil {
			return "", err
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return "", err
		}
		return string(raw), nil
	})
}

func (s *LocalStore) GetProfile(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := s.getJSON(ctx, userKey(id), &user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *LocalStore) UpsertProfile(ctx context.Context, user models.User) error {
	if user.ID == "" {
		return fmt.Errorf("profile id is required")
	}
	if !user.Role.Valid() {
		return fmt.Errorf("invalid role %q", user.Role)
	}

	written := user
	err := updateJSON(ctx, s.kv, userKey(user.ID), func(stored *models.User, found bool) error {
		written = user
		if found && written.CaregiverID == "" {
			written.CaregiverID = stored.CaregiverID
		}
		*stored = written
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert profile %s: %w", user.ID, err)
	}
	if written.CaregiverID != "" && written.Role == models.RoleSenior {
		return s.indexSenior(ctx, written.CaregiverID, written.ID)
	}
	return nil
}

func (s *LocalStore) indexSenior(ctx context.Context, caregiverID, seniorID string) error {
	return updateJSON(ctx, s.kv, seniorsKey(caregiverID), func(ids *[]string, _ bool) error {
		for _, id := range *ids {
			if id == seniorID {
				return ErrUnchanged
			}
		}
		*ids = append(*ids, seniorID)
		return nil
	})
}

// EnsureProfile writes user with SetNX so concurrent heals agree on one record
func (s *LocalStore) EnsureProfile(ctx context.Context, user models.User) (models.User, error) {
	raw, err := json.Marshal(user)
	if err != nil {
		return models.User{}, err
	}
	if _, err := s.kv.SetNX(ctx, userKey(user.ID), string(raw), 0); err != nil {
		return models.User{}, fmt.Errorf("failed to ensure profile %s: %w", user.ID, err)
	}
	return s.GetProfile(ctx, user.ID)
}

func (s *LocalStore) FindSeniorsOfCaregiver(ctx context.Context, caregiverID string) ([]models.User, error) {
	var ids []string
	if err := s.getJSON(ctx, seniorsKey(caregiverID), &ids); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	seniors := make([]models.User, 0, len(ids))
	for _, id := range ids {
		user, err := s.GetProfile(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if user.Role == models.RoleSenior && user.CaregiverID == caregiverID {
			seniors = append(seniors, user)
		}
	}
	sort.Slice(seniors, func(i, j int) bool { return seniors[i].Name < seniors[j].Name })
	return seniors, nil
}

func (s *LocalStore) getPreferences(ctx context.Context, targetID string) (models.Preferences, error) {
	raw, err := s.kv.Get(ctx, prefsKey(targetID))
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return models.Preferences{}, ErrNotFound
		}
		return models.Preferences{}, err
	}
	return decodeFeedMessage([]byte(raw))
}

func (s *LocalStore) SubscribePreferences(ctx context.Context, targetID string, onChange func(models.Preferences)) (Unsubscribe, error) {
	sub := &prefSubscription{fn: onChange}
	unsubscribe, err := s.feed.Subscribe(targetID, sub.deliver)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to preferences %s: %w", targetID, err)
	}

	stored, err := s.getPreferences(ctx, targetID)
	switch {
	case err == nil:
		sub.deliver(stored)
	case errors.Is(err, ErrNotFound):
	default:
		s.log.Warn("preferences snapshot failed, continuing with live updates",
			zap.String("target_id", targetID), zap.Error(err))
	}

	return func() {
		sub.close()
		unsubscribe()
	}, nil
}

func (s *LocalStore) UpsertPreferences(ctx context.Context, targetID string, patch models.PreferencesPatch) (models.Preferences, error) {
	if err := patch.Validate(); err != nil {
		return models.Preferences{}, err
	}

	var merged models.Preferences
	err := s.kv.Update(ctx, prefsKey(targetID), func(current string, found bool) (string, error) {
		merged = models.DefaultPreferences(targetID)
		if found {
			stored, err := decodeFeedMessage([]byte(current))
			if err != nil {
				return "", err
			}
			merged = stored
		}
		patch.Apply(&merged)
		merged.UpdatedAt = time.Now().UTC()

		raw, err := encodeFeedMessage(merged)
		return string(raw), err
	})
	if err != nil {
		return models.Preferences{}, fmt.Errorf("failed to upsert preferences %s: %w", targetID, err)
	}

	if err := s.feed.Publish(ctx, merged); err != nil {
		s.log.Warn("failed to publish preferences change",
			zap.String("target_id", targetID), zap.Error(err))
	}
	return merged, nil
}

func (s *LocalStore) listAll(ctx context.Context, targetID string) ([]models.AnalysisResult, error) {
	var results []models.AnalysisResult
	if err := s.getJSON(ctx, historyKey(targetID), &results); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}

func (s *LocalStore) InsertHistory(ctx context.Context, result models.AnalysisResult) error {
	return updateJSON(ctx, s.kv, historyKey(result.UserID), func(results *[]models.AnalysisResult, _ bool) error {
		for _, r := range *results {
			if r.ID == result.ID {
				return fmt.Errorf("history record %s already exists", result.ID)
			}
		}
		*results = SortHistory(append(*results, result), 0)
		return nil
	})
}

func (s *LocalStore) ListHistory(ctx context.Context, targetID string, limit int) ([]models.AnalysisResult, error) {
	results, err := s.listAll(ctx, targetID)
	if err != nil {
		return nil, err
	}
	return SortHistory(results, limit), nil
}

// GetHistory scans every history list; the offline store has no id index
func (s *LocalStore) GetHistory(ctx context.Context, id string) (models.AnalysisResult, error) {
	keys, err := s.kv.ScanKeys(ctx, historyKey("*"))
	if err != nil {
		return models.AnalysisResult{}, err
	}
	for _, key := range keys {
		var results []models.AnalysisResult
		if err := s.getJSON(ctx, key, &results); err != nil {
			continue
		}
		for _, r := range results {
			if r.ID == id {
				return r, nil
			}
		}
	}
	return models.AnalysisResult{}, ErrNotFound
}
