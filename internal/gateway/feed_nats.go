package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/localnerve/eagleview/internal/models"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// NATSFeed fans preference changes out over core NATS subjects
type NATSFeed struct {
	nc  *nats.Conn
	log *zap.Logger
}

// NewNATSFeed creates a feed on an existing connection
func NewNATSFeed(nc *nats.Conn, log *zap.Logger) *NATSFeed {
	return &NATSFeed{nc: nc, log: log}
}

// ConnectNATS dials url with the reconnect policy used by the service
func ConnectNATS(url string, log *zap.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("eagleview"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(1*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", zap.Error(err))
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Info("Connected to NATS", zap.String("url", url))
	return nc, nil
}

func (n *NATSFeed) Publish(_ context.Context, prefs models.Preferences) error {
	data, err := encodeFeedMessage(prefs)
	if err != nil {
		return err
	}
	return n.nc.Publish(feedSubject(prefs.TargetID), data)
}

func (n *NATSFeed) Subscribe(targetID string, fn func(models.Preferences)) (Unsubscribe, error) {
	sub, err := n.nc.Subscribe(feedSubject(targetID), func(msg *nats.Msg) {
		prefs, err := decodeFeedMessage(msg.Data)
		if err != nil {
			n.log.Warn("dropping malformed preferences message",
				zap.String("subject", msg.Subject), zap.Error(err))
			return
		}
		fn(prefs)
	})
	if err != nil {
		return nil, err
	}
	// Make sure the server has the interest registered before returning
	if err := n.nc.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if err := sub.Unsubscribe(); err != nil {
				n.log.Debug("nats unsubscribe", zap.Error(err))
			}
		})
	}, nil
}

// Close leaves the connection open; its owner closes it
func (n *NATSFeed) Close() error {
	return nil
}
