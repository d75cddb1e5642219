// Package events publishes crawl progress to NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL            string
	Name           string
	Stream         string // JetStream stream; empty publishes on core NATS
	MaxReconnects  int
	ReconnectWait  time.Duration
	ConnectTimeout time.Duration
}

// DefaultNATSConfig returns a sensible default configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:            nats.DefaultURL,
		Name:           "wealth-advisor-scraper",
		MaxReconnects:  -1, // Infinite reconnects
		ReconnectWait:  2 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// NATSClient wraps a NATS connection and, when a stream is configured, a
// JetStream context.
type NATSClient struct {
	conn   *nats.Conn
	js     nats.JetStreamContext
	config NATSConfig
	logger *slog.Logger
	mu     sync.RWMutex
}

// NewNATSClient connects to NATS.
func NewNATSClient(cfg NATSConfig, logger *slog.Logger) (*NATSClient, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client := &NATSClient{
		config: cfg,
		logger: logger.With("component", "nats"),
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func (c *NATSClient) connect() error {
	opts := []nats.Option{
		nats.Name(c.config.Name),
		nats.MaxReconnects(c.config.MaxReconnects),
		nats.ReconnectWait(c.config.ReconnectWait),
		nats.Timeout(c.config.ConnectTimeout),
		nats.DisconnectErrHandler(func(conn *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("disconnected from NATS", "error", err)
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			c.logger.Info("reconnected to NATS", "url", conn.ConnectedUrl())
		}),
		nats.ClosedHandler(func(conn *nats.Conn) {
			c.logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(c.config.URL, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	var js nats.JetStreamContext
	if c.config.Stream != "" {
		js, err = conn.JetStream()
		if err != nil {
			conn.Close()
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.logger.Info("connected to NATS", "url", c.config.URL, "jetstream", js != nil)
	return nil
}

// SetupStream creates or updates the configured JetStream stream to capture
// subjects. It is a no-op on core NATS.
func (c *NATSClient) SetupStream(ctx context.Context, subjects ...string) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()
	if js == nil {
		return nil
	}

	cfg := &nats.StreamConfig{
		Name:        c.config.Stream,
		Description: "Advisor crawl progress events",
		Subjects:    subjects,
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		MaxMsgs:     -1,
		MaxBytes:    -1,
		Replicas:    1,
		Discard:     nats.DiscardOld,
	}

	_, err := js.StreamInfo(cfg.Name, nats.Context(ctx))
	switch {
	case errors.Is(err, nats.ErrStreamNotFound):
		if _, err := js.AddStream(cfg, nats.Context(ctx)); err != nil {
			return fmt.Errorf("failed to create stream %s: %w", cfg.Name, err)
		}
		c.logger.Info("created stream", "stream", cfg.Name)
	case err != nil:
		return fmt.Errorf("failed to get stream info for %s: %w", cfg.Name, err)
	default:
		if _, err := js.UpdateStream(cfg, nats.Context(ctx)); err != nil {
			c.logger.Warn("failed to update stream", "stream", cfg.Name, "error", err)
		}
	}
	return nil
}

// Publish publishes an event to a subject as JSON.
func (c *NATSClient) Publish(ctx context.Context, subject string, event any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	c.mu.RLock()
	conn, js := c.conn, c.js
	c.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("publish to %s: %w", subject, nats.ErrConnectionClosed)
	}

	if js != nil {
		_, err = js.Publish(subject, data, nats.Context(ctx))
	} else {
		err = conn.Publish(subject, data)
	}
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	c.logger.Debug("published event", "subject", subject, "size", len(data))
	return nil
}

// IsConnected returns true if connected to NATS.
func (c *NATSClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains pending publishes and closes the connection.
func (c *NATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
		c.conn = nil
		c.js = nil
	}

	c.logger.Info("closed NATS connection")
	return nil
}
