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

// readyQuery selects unresolved relations whose relation-typed references
// are all resolved. References to relations missing from the extract do not
// block readiness.
const readyQuery = `
	SELECT r.relation_id FROM relations r
	WHERE r.dep = 0 AND NOT EXISTS (
		SELECT 1 FROM relation_references rr
		JOIN relations d ON d.relation_id = rr.reference_id
		WHERE rr.relation_id = r.relation_id AND rr.reference_type = 2 AND d.dep = 0
	)
	ORDER BY r.relation_id`

// The three member sources of a relation box. Each aggregate is NULL when
// the source contributes nothing.
const (
	nodeSourceQuery = `
		SELECT MIN(n.lat), MIN(n.lon), MAX(n.lat), MAX(n.lon)
		FROM relation_references rr JOIN nodes n ON n.node_id = rr.reference_id
		WHERE rr.relation_id = ? AND rr.reference_type = 0`
	waySourceQuery = `
		SELECT MIN(w.lat_lb), MIN(w.lon_lb), MAX(w.lat_rt), MAX(w.lon_rt)
		FROM relation_references rr JOIN ways w ON w.way_id = rr.reference_id
		WHERE rr.relation_id = ? AND rr.reference_type = 1`
	relationSourceQuery = `
		SELECT MIN(d.lat_lb), MIN(d.lon_lb), MAX(d.lat_rt), MAX(d.lon_rt)
		FROM relation_references rr JOIN relations d ON d.relation_id = rr.reference_id
		WHERE rr.relation_id = ? AND rr.reference_type = 2 AND d.dep = 1`
)

type relationQueries struct {
	sources [3]*store.Stmt
	update  *store.Stmt
}

func (r *Resolver) prepareRelations(ctx context.Context) (*relationQueries, error) {
	q := &relationQueries{}
	texts := []string{nodeSourceQuery, waySourceQuery, relationSourceQuery}
	for i, text := range texts {
		st, err := r.tx.Prepare(ctx, text)
		if err != nil {
			q.close()
			return nil, fmt.Errorf("preparing relation source query: %w", err)
		}
		q.sources[i] = st
	}
	st, err := r.tx.Prepare(ctx, "UPDATE relations SET lat_lb = ?, lon_lb = ?, lat_rt = ?, lon_rt = ?, dep = 1 WHERE relation_id = ?")
	if err != nil {
		q.close()
		return nil, fmt.Errorf("preparing relation update: %w", err)
	}
	q.update = st
	return q, nil
}

func (q *relationQueries) close() {
	for _, st := range append(q.sources[:], q.update) {
		if st != nil {
			st.Close()
		}
	}
}

// box folds the node, way and relation sources of one relation.
func (q *relationQueries) box(ctx context.Context, id int64) (coord.Box, bool, error) {
	var parts [3]coord.NullBox
	for i, st := range q.sources {
		var minLat, minLon, maxLat, maxLon sql.NullInt64
		if err := st.QueryRow(ctx, id).Scan(&minLat, &minLon, &maxLat, &maxLon); err != nil {
			return coord.Box{}, false, fmt.Errorf("relation %d %s members: %w", id, source.Kind(i), err)
		}
		parts[i] = nullBox(minLat, minLon, maxLat, maxLon)
	}
	b, ok := coord.Merge(parts[:]...)
	return b, ok, nil
}

// ResolveRelations runs sweeps until no unresolved relation remains.
//
// A sweep resolves exactly the relations that were ready when it started.
// None of them can reference another member of the same ready set (those
// were unresolved at sweep start), so updating rows in place still computes
// every box from the previous sweep's state.
func (r *Resolver) ResolveRelations(ctx context.Context) (RelationStats, error) {
	log := logger.Get()
	start := time.Now()

	var stats RelationStats
	q, err := r.prepareRelations(ctx)
	if err != nil {
		return stats, err
	}
	defer q.close()

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		ready, err := r.readySet(ctx)
		if err != nil {
			return stats, err
		}
		if len(ready) == 0 {
			break
		}
		stats.Sweeps++

		var degenerate []int64
		var degenerateCount int64
		for _, id := range ready {
			b, ok, err := q.box(ctx, id)
			if err != nil {
				return stats, err
			}
			if !ok {
				degenerateCount++
				if len(degenerate) < maxReportedIDs {
					degenerate = append(degenerate, id)
				}
				if r.opts.Policy == PolicySkip {
					if err := r.deleteRelation(ctx, id); err != nil {
						return stats, err
					}
					stats.Skipped++
				}
				continue
			}
			if _, err := q.update.Exec(ctx, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, id); err != nil {
				return stats, fmt.Errorf("updating relation %d: %w", id, err)
			}
			stats.Resolved++
		}

		if degenerateCount > 0 {
			if r.opts.Policy == PolicyFail {
				return stats, &DegenerateGeometryError{Kind: source.KindRelation, IDs: degenerate, Count: degenerateCount}
			}
			log.Warn("Skipped relations without resolvable members",
				zap.Int("sweep", stats.Sweeps),
				zap.Int64("count", degenerateCount),
				zap.Int64s("first_ids", degenerate))
		}

		remaining, err := r.unresolvedCount(ctx)
		if err != nil {
			return stats, err
		}
		log.Debug("Relation sweep complete",
			zap.Int("sweep", stats.Sweeps),
			zap.Int("ready", len(ready)),
			zap.Int64("remaining", remaining))
		r.report(Progress{
			Kind:      source.KindRelation,
			Sweep:     stats.Sweeps,
			Resolved:  stats.Resolved,
			Skipped:   stats.Skipped,
			Remaining: remaining,
		})
	}

	// The ready set is empty; anything still unresolved sits on a cycle or
	// depends on one.
	remaining, err := r.unresolvedCount(ctx)
	if err != nil {
		return stats, err
	}
	if remaining > 0 {
		ids, err := r.unresolvedIDs(ctx)
		if err != nil {
			return stats, err
		}
		return stats, &UnresolvedDependencyError{IDs: ids, Remaining: remaining}
	}

	log.Info("Relation boxes resolved",
		zap.Int64("resolved", stats.Resolved),
		zap.Int64("skipped", stats.Skipped),
		zap.Int("sweeps", stats.Sweeps),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return stats, nil
}

func (r *Resolver) readySet(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, readyQuery)
	if err != nil {
		return nil, fmt.Errorf("selecting ready relations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Resolver) unresolvedCount(ctx context.Context) (int64, error) {
	var n int64
	if err := r.tx.QueryRow(ctx, "SELECT COUNT(*) FROM relations WHERE dep = 0").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting unresolved relations: %w", err)
	}
	return n, nil
}

func (r *Resolver) unresolvedIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.tx.Query(ctx, "SELECT relation_id FROM relations WHERE dep = 0 ORDER BY relation_id LIMIT ?", maxReportedIDs)
	if err != nil {
		return nil, fmt.Errorf("listing unresolved relations: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *Resolver) deleteRelation(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, "DELETE FROM relation_references WHERE relation_id = ?", id); err != nil {
		return fmt.Errorf("deleting relation %d references: %w", id, err)
	}
	if _, err := r.tx.Exec(ctx, "DELETE FROM relations WHERE relation_id = ?", id); err != nil {
		return fmt.Errorf("deleting relation %d: %w", id, err)
	}
	return nil
}
