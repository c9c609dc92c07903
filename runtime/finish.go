package runtime

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pithecene-io/stagekit/adapter"
	"github.com/pithecene-io/stagekit/lode"
	"github.com/pithecene-io/stagekit/log"
	"github.com/pithecene-io/stagekit/metadata"
	"github.com/pithecene-io/stagekit/metrics"
	"github.com/pithecene-io/stagekit/rundir"
	"github.com/pithecene-io/stagekit/types"
)

// Archiver stores the finished run's record. *lode.Archive implements it.
type Archiver interface {
	Write(ctx context.Context, r lode.Record) error
}

// FinishConfig carries everything Finish needs after Monitor returns.
type FinishConfig struct {
	Metadata *metadata.RunMetadata
	Outcome  *Outcome
	// RunDir is the allocated run directory; metadata.yaml is written there.
	RunDir string
	// Stage names the pipeline stage in archive records and events.
	Stage string
	Links rundir.LinkOptions
	// AppMetadata is recorded under app_metadata when non-nil.
	AppMetadata map[string]any

	// Optional.
	Archive   Archiver
	Notifier  adapter.Adapter
	Collector *metrics.Collector
	Logger    *log.Logger
}

// Finish records the outcome, dumps metadata.yaml into the run directory,
// promotes the run, then archives and announces it. Archive and notification
// failures are logged and do not change the result. The returned error is
// the outcome's materialized error joined with any dump or link failure.
func Finish(ctx context.Context, cfg FinishConfig) error {
	logger := log.OrNop(cfg.Logger)
	md := cfg.Metadata
	outcome := cfg.Outcome
	if outcome == nil {
		outcome = &Outcome{Status: OutcomeSuccess}
	}

	switch outcome.Status {
	case OutcomeSuccess:
		cfg.Collector.IncRunCompleted()
	case OutcomeInterrupted:
		cfg.Collector.IncRunInterrupted()
	default:
		cfg.Collector.IncRunFailed()
	}

	var errs []error
	if cfg.AppMetadata != nil {
		if err := md.Set(metadata.KeyAppMetadata, cfg.AppMetadata); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.Collector != nil {
		if err := md.Set(metadata.KeyCounters, cfg.Collector.Snapshot().Map()); err != nil {
			logger.Warn("could not record counters", map[string]any{"error": err.Error()})
		}
	}

	if err := md.Dump(filepath.Join(cfg.RunDir, types.MetadataFileName)); err != nil {
		errs = append(errs, fmt.Errorf("dump metadata: %w", err))
	}

	promotion, err := rundir.MakeLinks(outcome.Success(), cfg.RunDir, cfg.Links, logger)
	if err != nil {
		errs = append(errs, err)
	}
	links := promotionNames(promotion)
	for _, l := range links {
		cfg.Collector.IncLinkMoved(l)
	}
	if promotion.Any() {
		logger.Info("run promoted", map[string]any{"run_directory": cfg.RunDir, "links": links})
	}

	version := filepath.Base(cfg.RunDir)
	day, _, _ := strings.Cut(version, ".")

	if cfg.Archive != nil {
		rec := lode.Record{
			Stage:        cfg.Stage,
			Day:          day,
			RunID:        version,
			RunDirectory: cfg.RunDir,
			Outcome:      string(outcome.Status),
			Links:        links,
			CompletedAt:  metadata.Clock(),
			Metadata:     md.ToMap(),
			Counters:     cfg.Collector.Snapshot().Map(),
		}
		if err := cfg.Archive.Write(ctx, rec); err != nil {
			cfg.Collector.IncArchiveWriteFailure()
			logger.Warn("archive write failed", map[string]any{"error": err.Error()})
		} else {
			cfg.Collector.IncArchiveWriteSuccess()
		}
	}

	if cfg.Notifier != nil {
		event := adapter.NewStageCompletedEvent(types.ContractVersion, metadata.Clock())
		event.Stage = cfg.Stage
		event.RunDirectory = cfg.RunDir
		event.Version = version
		event.Day = day
		event.Outcome = string(outcome.Status)
		event.Links = links
		event.DurationMs = md.Elapsed().Milliseconds()
		if outcome.Cause != nil {
			event.ErrorMessage = outcome.Cause.Error()
		}
		if err := cfg.Notifier.Publish(ctx, event); err != nil {
			cfg.Collector.IncNotifyFailure()
			logger.Warn("stage notification failed", map[string]any{"error": err.Error()})
		} else {
			cfg.Collector.IncNotifySuccess()
		}
	}

	if len(errs) == 0 {
		return outcome.Err()
	}
	return errors.Join(append([]error{outcome.Err()}, errs...)...)
}

func promotionNames(p rundir.Promotion) []string {
	var names []string
	if p.Latest {
		names = append(names, types.LatestLink)
	}
	if p.Best {
		names = append(names, types.BestLink)
	}
	if p.Production != "" {
		names = append(names, types.ProductionRuns)
	}
	return names
}
