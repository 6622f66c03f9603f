// Package bbox computes bounding boxes for ways and relations in the raw
// tables. Ways are resolved in one pass over their member nodes; relations
// are resolved by repeated sweeps until every relation whose references are
// all resolvable has a box.
package bbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Progress describes resolver advancement for observers.
type Progress struct {
	Kind      source.Kind // KindWay or KindRelation
	Sweep     int         // relation sweeps only
	Resolved  int64
	Skipped   int64
	Remaining int64 // relations only: dep=0 rows left after the sweep
}

// Options configures a Resolver.
type Options struct {
	Policy    Policy
	BatchSize int
	Progress  func(Progress)
}

// WayStats summarizes pass A.
type WayStats struct {
	Resolved int64
	Skipped  int64
}

// RelationStats summarizes pass B.
type RelationStats struct {
	Resolved int64
	Skipped  int64
	Sweeps   int
}

// Resolver fills in the box columns of ways and relations within a build
// transaction.
type Resolver struct {
	tx   *store.Tx
	opts Options
}

// New creates a resolver bound to tx.
func New(tx *store.Tx, opts Options) *Resolver {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10000
	}
	return &Resolver{tx: tx, opts: opts}
}

func (r *Resolver) report(p Progress) {
	if r.opts.Progress != nil {
		r.opts.Progress(p)
	}
}

const wayBoxQuery = `
	SELECT w.way_id, MIN(n.lat), MIN(n.lon), MAX(n.lat), MAX(n.lon)
	FROM ways w
	LEFT JOIN way_nodes wn ON wn.way_id = w.way_id
	LEFT JOIN nodes n ON n.node_id = wn.node_id
	WHERE w.way_id > ?
	GROUP BY w.way_id
	ORDER BY w.way_id
	LIMIT ?`

type wayBox struct {
	id  int64
	box coord.NullBox
}

// ResolveWays sets every way's box to the min/max of its member nodes.
// Member ids with no node row are ignored; a way with no resolvable member
// at all is degenerate and handled by the policy.
func (r *Resolver) ResolveWays(ctx context.Context) (WayStats, error) {
	log := logger.Get()
	start := time.Now()

	var stats WayStats
	update, err := r.tx.Prepare(ctx, "UPDATE ways SET lat_lb = ?, lon_lb = ?, lat_rt = ?, lon_rt = ? WHERE way_id = ?")
	if err != nil {
		return stats, fmt.Errorf("preparing way update: %w", err)
	}
	defer update.Close()

	var degenerate []int64
	var degenerateCount int64
	var after int64 = -1

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		batch, err := r.wayBatch(ctx, after)
		if err != nil {
			return stats, err
		}
		if len(batch) == 0 {
			break
		}
		after = batch[len(batch)-1].id

		for _, wb := range batch {
			if !wb.box.Valid {
				degenerateCount++
				if len(degenerate) < maxReportedIDs {
					degenerate = append(degenerate, wb.id)
				}
				if r.opts.Policy == PolicySkip {
					if err := r.deleteWay(ctx, wb.id); err != nil {
						return stats, err
					}
					stats.Skipped++
				}
				continue
			}
			b := wb.box.Box
			if _, err := update.Exec(ctx, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, wb.id); err != nil {
				return stats, fmt.Errorf("updating way %d: %w", wb.id, err)
			}
			stats.Resolved++
		}
		r.report(Progress{Kind: source.KindWay, Resolved: stats.Resolved, Skipped: stats.Skipped})
	}

	if degenerateCount > 0 {
		if r.opts.Policy == PolicyFail {
			return stats, &DegenerateGeometryError{Kind: source.KindWay, IDs: degenerate, Count: degenerateCount}
		}
		log.Warn("Skipped ways without resolvable nodes",
			zap.Int64("count", degenerateCount),
			zap.Int64s("first_ids", degenerate))
	}

	log.Info("Way boxes resolved",
		zap.Int64("resolved", stats.Resolved),
		zap.Int64("skipped", stats.Skipped),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return stats, nil
}

// wayBatch reads the next page of aggregated way boxes. Rows are fully read
// and closed before any update runs on the same transaction.
func (r *Resolver) wayBatch(ctx context.Context, after int64) ([]wayBox, error) {
	rows, err := r.tx.Query(ctx, wayBoxQuery, after, r.opts.BatchSize)
	if err != nil {
		return nil, fmt.Errorf("aggregating way boxes: %w", err)
	}
	defer rows.Close()

	batch := make([]wayBox, 0, r.opts.BatchSize)
	for rows.Next() {
		var wb wayBox
		var minLat, minLon, maxLat, maxLon sql.NullInt64
		if err := rows.Scan(&wb.id, &minLat, &minLon, &maxLat, &maxLon); err != nil {
			return nil, err
		}
		wb.box = nullBox(minLat, minLon, maxLat, maxLon)
		batch = append(batch, wb)
	}
	return batch, rows.Err()
}

func (r *Resolver) deleteWay(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, "DELETE FROM way_nodes WHERE way_id = ?", id); err != nil {
		return fmt.Errorf("deleting way %d members: %w", id, err)
	}
	if _, err := r.tx.Exec(ctx, "DELETE FROM ways WHERE way_id = ?", id); err != nil {
		return fmt.Errorf("deleting way %d: %w", id, err)
	}
	return nil
}

func nullBox(minLat, minLon, maxLat, maxLon sql.NullInt64) coord.NullBox {
	if !minLat.Valid || !minLon.Valid || !maxLat.Valid || !maxLon.Valid {
		return coord.NullBox{}
	}
	return coord.NullBox{
		Box:   coord.Box{MinLat: minLat.Int64, MinLon: minLon.Int64, MaxLat: maxLat.Int64, MaxLon: maxLon.Int64},
		Valid: true,
	}
}
