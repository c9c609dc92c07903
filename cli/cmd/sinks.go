package cmd

import (
	"context"
	"fmt"

	"github.com/pithecene-io/stagekit/adapter"
	"github.com/pithecene-io/stagekit/adapter/redis"
	"github.com/pithecene-io/stagekit/adapter/webhook"
	"github.com/pithecene-io/stagekit/cli/config"
	"github.com/pithecene-io/stagekit/lode"
)

// Archive backends.
const (
	backendFS = "fs"
	backendS3 = "s3"
)

// Adapter types.
const (
	adapterRedis   = "redis"
	adapterWebhook = "webhook"
)

// buildArchive opens the metadata archive described by cfg, or returns nil
// when no archive path is configured.
func buildArchive(ctx context.Context, cfg config.ArchiveConfig) (*lode.Archive, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	switch cfg.Backend {
	case backendFS, "":
		return lode.NewFSArchive(cfg.Dataset, cfg.Path)
	case backendS3:
		return lode.NewS3Archive(ctx, cfg.Dataset, cfg.S3())
	default:
		return nil, fmt.Errorf("unknown archive backend: %s (must be %s or %s)", cfg.Backend, backendFS, backendS3)
	}
}

// buildAdapter creates the completion notifier described by cfg, or
// returns nil when no adapter type is configured.
func buildAdapter(cfg config.AdapterConfig) (adapter.Adapter, error) {
	switch cfg.Type {
	case "":
		return nil, nil
	case adapterRedis:
		rc := redis.Config{
			URL:     cfg.URL,
			Channel: cfg.Channel,
			Timeout: cfg.Timeout.Duration,
			Retries: redis.DefaultRetries,
		}
		if cfg.Retries != nil {
			rc.Retries = *cfg.Retries
		}
		return redis.New(rc)
	case adapterWebhook:
		wc := webhook.Config{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Secret:  cfg.Secret,
			Timeout: cfg.Timeout.Duration,
			Retries: webhook.DefaultRetries,
		}
		if cfg.Retries != nil {
			wc.Retries = *cfg.Retries
		}
		return webhook.New(wc)
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be %s or %s)", cfg.Type, adapterRedis, adapterWebhook)
	}
}

// archiveBackendName is the backend label recorded in the counters.
func archiveBackendName(cfg config.ArchiveConfig) string {
	if !cfg.Enabled() {
		return ""
	}
	if cfg.Backend == "" {
		return backendFS
	}
	return cfg.Backend
}
