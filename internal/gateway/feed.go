package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/localnerve/eagleview/internal/models"
)

// Feed carries merged preference records to live subscribers
type Feed interface {
	Publish(ctx context.Context, prefs models.Preferences) error
	Subscribe(targetID string, fn func(models.Preferences)) (Unsubscribe, error)
	Close() error
}

// feedMessage is the wire form; Preferences hides its key and timestamp from JSON
type feedMessage struct {
	TargetID    string             `json:"targetId"`
	UpdatedAt   time.Time          `json:"updatedAt"`
	Preferences models.Preferences `json:"preferences"`
}

func encodeFeedMessage(prefs models.Preferences) ([]byte, error) {
	return json.Marshal(feedMessage{
		TargetID:    prefs.TargetID,
		UpdatedAt:   prefs.UpdatedAt,
		Preferences: prefs,
	})
}

func decodeFeedMessage(data []byte) (models.Preferences, error) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return models.Preferences{}, err
	}
	prefs := msg.Preferences
	prefs.TargetID = msg.TargetID
	prefs.UpdatedAt = msg.UpdatedAt
	return prefs, nil
}

func feedSubject(targetID string) string {
	return "eagleview.preferences." + targetID
}

// MemoryFeed is an in-process Feed
type MemoryFeed struct {
	mu   sync.Mutex
	subs map[string]map[int]func(models.Preferences)
	next int
}

// NewMemoryFeed creates an in-process feed
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[string]map[int]func(models.Preferences))}
}

// Publish calls every subscriber of the record's target in the caller's goroutine
func (f *MemoryFeed) Publish(_ context.Context, prefs models.Preferences) error {
	f.mu.Lock()
	fns := make([]func(models.Preferences), 0, len(f.subs[prefs.TargetID]))
	for _, fn := range f.subs[prefs.TargetID] {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	for _, fn := range fns {
		fn(prefs)
	}
	return nil
}

// Subscribe registers fn for targetID
func (f *MemoryFeed) Subscribe(targetID string, fn func(models.Preferences)) (Unsubscribe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.subs[targetID] == nil {
		f.subs[targetID] = make(map[int]func(models.Preferences))
	}
	f.next++
	id := f.next
	f.subs[targetID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			delete(f.subs[targetID], id)
			if len(f.subs[targetID]) == 0 {
				delete(f.subs, targetID)
			}
		})
	}, nil
}

// Subscribers reports the live subscription count for targetID
func (f *MemoryFeed) Subscribers(targetID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[targetID])
}

// Close drops every subscription
func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = make(map[string]map[int]func(models.Preferences))
	return nil
}
