// Package redis publishes stage completion events over Redis pub/sub.
//
// Each event is published as JSON to a channel and, so that late
// subscribers can catch up, also stored under "<channel>:last:<stage>".
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/pithecene-io/stagekit/adapter"
)

// DefaultChannel is the default pub/sub channel name.
const DefaultChannel = "stagekit:stage_completed"

// DefaultTimeout is the default per-publish timeout.
const DefaultTimeout = 5 * time.Second

// DefaultRetries is the default number of retry attempts.
const DefaultRetries = 3

// Config configures the Redis adapter.
type Config struct {
	// URL is the Redis connection URL (required).
	// Format: redis://[:password@]host:port[/db]
	URL string
	// Channel is the pub/sub channel name (default: stagekit:stage_completed).
	Channel string
	// Timeout is the per-publish timeout (default 5s).
	Timeout time.Duration
	// Retries is the number of retry attempts on failure.
	Retries int
	// LastTTL expires the last-event key. Zero keeps it forever.
	LastTTL time.Duration
}

// Adapter publishes stage completion events via Redis.
type Adapter struct {
	config Config
	client *goredis.Client
}

// New creates a Redis adapter from the given config.
// Returns an error if the URL is empty or invalid.
func New(cfg Config) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis adapter requires a URL")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis adapter: invalid URL: %w", err)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 0 {
		return nil, fmt.Errorf("retries must be >= 0, got %d", cfg.Retries)
	}
	return &Adapter{config: cfg, client: goredis.NewClient(opts)}, nil
}

// LastKey is the key holding the most recent event for stage.
func (a *Adapter) LastKey(stage string) string {
	return a.config.Channel + ":last:" + stage
}

// Publish stores the event under LastKey and publishes it to the channel
// in one pipeline. Retries with exponential backoff on failures.
func (a *Adapter) Publish(ctx context.Context, event *adapter.StageCompletedEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("redis: marshal event: %w", err)
	}

	return adapter.Retry(ctx, "redis", a.config.Retries, func(ctx context.Context) error {
		publishCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
		_, err := a.client.Pipelined(publishCtx, func(p goredis.Pipeliner) error {
			p.Set(publishCtx, a.LastKey(event.Stage), body, a.config.LastTTL)
			p.Publish(publishCtx, a.config.Channel, body)
			return nil
		})
		return err
	})
}

// Last returns the most recent event stored for stage, or nil if none.
func (a *Adapter) Last(ctx context.Context, stage string) (*adapter.StageCompletedEvent, error) {
	body, err := a.client.Get(ctx, a.LastKey(stage)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get last event: %w", err)
	}
	var event adapter.StageCompletedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("redis: decode last event: %w", err)
	}
	return &event, nil
}

// Close releases adapter resources.
func (a *Adapter) Close() error {
	return a.client.Close()
}

// Verify Adapter implements the adapter interface.
var _ adapter.Adapter = (*Adapter)(nil)
