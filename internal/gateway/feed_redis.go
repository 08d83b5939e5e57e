package gateway

import (
	"context"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/localnerve/eagleview/internal/models"
	"go.uber.org/zap"
)

// RedisFeed fans preference changes out over redis pub/sub
type RedisFeed struct {
	c   *redis.Client
	log *zap.Logger
}

// NewRedisFeed creates a feed on an existing client
func NewRedisFeed(c *redis.Client, log *zap.Logger) *RedisFeed {
	return &RedisFeed{c: c, log: log}
}

func (r *RedisFeed) Publish(ctx context.Context, prefs models.Preferences) error {
	data, err := encodeFeedMessage(prefs)
	if err != nil {
		return err
	}
	return r.c.Publish(ctx, feedSubject(prefs.TargetID), data).Err()
}

// Subscribe waits for the subscription to be confirmed so no publish after return is missed
func (r *RedisFeed) Subscribe(targetID string, fn func(models.Preferences)) (Unsubscribe, error) {
	ctx := context.Background()
	ps := r.c.Subscribe(ctx, feedSubject(targetID))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}

	ch := ps.Channel()
	go func() {
		for msg := range ch {
			prefs, err := decodeFeedMessage([]byte(msg.Payload))
			if err != nil {
				r.log.Warn("dropping malformed preferences message",
					zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			fn(prefs)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := ps.Close(); err != nil {
				r.log.Debug("redis unsubscribe", zap.Error(err))
			}
		})
	}, nil
}

// Close leaves the client open; its owner closes it
func (r *RedisFeed) Close() error {
	return nil
}
