// Package pipeline turns an element stream into a refined POI table. The
// whole build is one transaction, so a failure at any stage leaves no
// partial dataset behind.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/bbox"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/metrics"
	"github.com/wegman-software/osmpoi-go/internal/middle"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Options configures a build.
type Options struct {
	Policy    bbox.Policy
	BatchSize int
	// MetricsInterval enables the system metrics collector when > 0.
	MetricsInterval time.Duration
	// ProgressInterval controls how often ingest progress is logged for
	// byte-sized sources; zero disables it.
	ProgressInterval time.Duration
	OnProgress       func(Event)
}

// Coordinator orchestrates one build against a store.
type Coordinator struct {
	store *store.Store
	opts  Options
}

// NewCoordinator creates a coordinator writing to s.
func NewCoordinator(s *store.Store, opts Options) *Coordinator {
	return &Coordinator{store: s, opts: opts}
}

// Build is shorthand for NewCoordinator(s, opts).Run(ctx, stream).
func Build(ctx context.Context, s *store.Store, stream source.Stream, opts Options) (*BuildStats, error) {
	return NewCoordinator(s, opts).Run(ctx, stream)
}

func (c *Coordinator) emit(e Event) {
	if c.opts.OnProgress != nil {
		c.opts.OnProgress(e)
	}
}

// sizedSource is implemented by file-backed streams.
type sizedSource interface {
	BytesRead() int64
	Size() int64
}

// Run consumes stream once and builds the poi table.
func (c *Coordinator) Run(ctx context.Context, stream source.Stream) (*BuildStats, error) {
	log := logger.Get()
	start := time.Now()
	stats := &BuildStats{Stages: map[Stage]time.Duration{}}

	if c.opts.MetricsInterval > 0 {
		metricsCtx, cancelMetrics := context.WithCancel(ctx)
		defer cancelMetrics()

		collector := metrics.NewCollector(c.opts.MetricsInterval, log)
		go collector.Start(metricsCtx)
		log.Info("System metrics collection started",
			zap.Duration("interval", c.opts.MetricsInterval))
	}

	timed := func(stage Stage, fn func() error) error {
		t := time.Now()
		log.Info("Stage started", zap.String("stage", string(stage)))
		err := fn()
		d := time.Since(t)
		stats.Stages[stage] = d
		metrics.BuildStageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
		return err
	}

	err := c.store.WithTx(ctx, func(tx *store.Tx) error {
		if err := middle.CreateTables(ctx, tx); err != nil {
			return err
		}

		err := timed(StageIngest, func() error {
			var ingested atomic.Int64
			if sized, ok := stream.(sizedSource); ok && c.opts.ProgressInterval > 0 {
				progressCtx, cancel := context.WithCancel(ctx)
				defer cancel()
				go reportIngest(progressCtx, sized, &ingested, c.opts.ProgressInterval)
			}
			counts, err := middle.Ingest(ctx, tx, stream, middle.IngestOptions{
				Progress: func(n middle.Counts) {
					ingested.Store(n.Elements())
					c.emit(Event{Stage: StageIngest, Count: n.Elements()})
				},
			})
			stats.Ingest = counts
			return err
		})
		if err != nil {
			return err
		}
		metrics.ElementsIngested.WithLabelValues("node").Add(float64(stats.Ingest.Nodes))
		metrics.ElementsIngested.WithLabelValues("way").Add(float64(stats.Ingest.Ways))
		metrics.ElementsIngested.WithLabelValues("relation").Add(float64(stats.Ingest.Relations))
		log.Info("Ingest complete",
			zap.Int64("nodes", stats.Ingest.Nodes),
			zap.Int64("ways", stats.Ingest.Ways),
			zap.Int64("relations", stats.Ingest.Relations),
			zap.Int64("way_nodes", stats.Ingest.WayNodes),
			zap.Int64("references", stats.Ingest.References))

		resolver := bbox.New(tx, bbox.Options{
			Policy:    c.opts.Policy,
			BatchSize: c.opts.BatchSize,
			Progress:  c.resolveProgress,
		})
		if err := timed(StageWays, func() error {
			var err error
			stats.Ways, err = resolver.ResolveWays(ctx)
			return err
		}); err != nil {
			return err
		}
		if err := timed(StageRelations, func() error {
			var err error
			stats.Relations, err = resolver.ResolveRelations(ctx)
			return err
		}); err != nil {
			return err
		}
		metrics.ElementsSkipped.WithLabelValues("way").Add(float64(stats.Ways.Skipped))
		metrics.ElementsSkipped.WithLabelValues("relation").Add(float64(stats.Relations.Skipped))

		return timed(StageRefine, func() error {
			var err error
			stats.POIs, err = poi.Refine(ctx, tx)
			c.emit(Event{Stage: StageRefine, Count: stats.POIs.Total()})
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.POIsRefined.WithLabelValues(poi.Point.String()).Add(float64(stats.POIs.Points))
	metrics.POIsRefined.WithLabelValues(poi.Area.String()).Add(float64(stats.POIs.Areas))
	stats.Duration = time.Since(start)
	return stats, nil
}

func (c *Coordinator) resolveProgress(p bbox.Progress) {
	stage := StageWays
	if p.Kind == source.KindRelation {
		stage = StageRelations
	}
	c.emit(Event{Stage: stage, Count: p.Resolved, Skipped: p.Skipped, Sweep: p.Sweep, Remaining: p.Remaining})
}

// reportIngest logs decode progress until ctx is cancelled.
func reportIngest(ctx context.Context, src sizedSource, ingested *atomic.Int64, interval time.Duration) {
	log := logger.Get()
	tracker := NewProgressTracker(src.Size())
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			est := tracker.Calculate(ingested.Load(), src.BytesRead())
			log.Info("Ingesting",
				zap.Int64("elements", est.Count),
				zap.String("read", FormatBytes(src.BytesRead())),
				zap.String("percent", fmt.Sprintf("%.1f%%", est.Percentage)),
				zap.String("rate", FormatThroughput(est.Throughput)),
				zap.String("eta", FormatETA(est.ETA)))
		}
	}
}
