// Package parallel maps a function over independent items with a bounded
// number of workers.
package parallel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/progress"
	"golang.org/x/sync/errgroup"

	"github.com/pithecene-io/stagekit/metrics"
)

// Options configures Map.
type Options struct {
	// Workers bounds concurrency. One or fewer runs the items serially in
	// the calling goroutine, which keeps stack traces readable when
	// debugging.
	Workers int
	// Progress renders a progress bar on Out.
	Progress bool
	// Out receives the progress bar. Defaults to os.Stderr.
	Out io.Writer
	// Collector counts finished and failed items. May be nil.
	Collector *metrics.Collector
}

// Map calls fn for every item and returns the results in input order.
// The first error cancels the context passed to the remaining calls and
// is returned once every started call has finished.
func Map[T, R any](ctx context.Context, items []T, fn func(ctx context.Context, item T) (R, error), opts Options) ([]R, error) {
	results := make([]R, len(items))
	bar := newBar(len(items), opts)
	defer bar.finish()

	var succeeded, failed atomic.Int64
	defer func() { opts.Collector.AddJobs(succeeded.Load(), failed.Load()) }()

	run := func(ctx context.Context, i int) error {
		r, err := fn(ctx, items[i])
		if err != nil {
			failed.Add(1)
			return fmt.Errorf("item %d: %w", i, err)
		}
		results[i] = r
		succeeded.Add(1)
		bar.step()
		return nil
	}

	if opts.Workers <= 1 {
		for i := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if err := run(ctx, i); err != nil {
				return nil, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Workers)
	for i := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return run(gctx, i)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// bar renders a static bubbles progress bar, redrawn in place.
type bar struct {
	mu    sync.Mutex
	out   io.Writer
	model progress.Model
	total int
	done  int
}

func newBar(total int, opts Options) *bar {
	if !opts.Progress || total == 0 {
		return nil
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	b := &bar{
		out:   out,
		model: progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		total: total,
	}
	b.render()
	return b
}

func (b *bar) step() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.done++
	b.render()
}

func (b *bar) render() {
	_, _ = fmt.Fprintf(b.out, "\r%s %d/%d", b.model.ViewAs(float64(b.done)/float64(b.total)), b.done, b.total)
}

func (b *bar) finish() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, _ = fmt.Fprintln(b.out)
}
