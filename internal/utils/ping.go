package utils

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-resty/resty/v2"
	"github.com/nats-io/nats.go"
)

// PingService checks if a service is reachable at the given URL
func PingService(serviceURL string, timeout time.Duration) error {
	parsedURL, err := url.Parse(serviceURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	host := parsedURL.Hostname()
	port := parsedURL.Port()

	if port == "" {
		switch parsedURL.Scheme {
		case "https":
			port = "443"
		case "nats":
			port = "4222"
		default:
			port = "80"
		}
	}

	address := net.JoinHostPort(host, port)

	conn, err := net.DialTimeout("tcp", address, timeout)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	return nil
}

// PingAuthorizer checks if the Authorizer service is reachable
func PingAuthorizer(authzURL string) error {
	return PingService(authzURL, 1500*time.Millisecond)
}

// PingRedis issues a PING on a short-lived client
func PingRedis(ctx context.Context, addr, password string, db int) error {
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 1500 * time.Millisecond,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis at %s: %w", addr, err)
	}
	return nil
}

// PingNATS connects, flushes a round trip and disconnects
func PingNATS(natsURL string) error {
	nc, err := nats.Connect(natsURL, nats.Timeout(1500*time.Millisecond), nats.NoReconnect())
	if err != nil {
		return fmt.Errorf("failed to connect to nats at %s: %w", natsURL, err)
	}
	defer nc.Close()

	if err := nc.FlushTimeout(1500 * time.Millisecond); err != nil {
		return fmt.Errorf("nats round trip failed: %w", err)
	}
	return nil
}

// GetHealthy requests healthURL and fails unless it answers 200
func GetHealthy(healthURL string, timeout time.Duration) error {
	resp, err := resty.New().SetTimeout(timeout).R().Get(healthURL)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", healthURL, err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("%s answered %d: %s", healthURL, resp.StatusCode(), resp.String())
	}
	return nil
}
