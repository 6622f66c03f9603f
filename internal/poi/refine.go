package poi

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wegman-software/osmpoi-go/internal/logger"
	"github.com/wegman-software/osmpoi-go/internal/middle"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Table is the name of the refined table.
const Table = "poi"

// Columns lists the poi table columns in storage order.
var Columns = []string{"poi_type", "lat", "lon", "d_lat", "d_lon", "tags"}

// CreateStatements create an empty poi table. They work on both dialects.
var CreateStatements = []string{
	`CREATE TABLE poi (
		poi_type SMALLINT NOT NULL CHECK (poi_type IN (0, 1)),
		lat BIGINT NOT NULL CHECK (lat BETWEEN -900000000 AND 900000000),
		lon BIGINT NOT NULL CHECK (lon BETWEEN -1800000000 AND 1800000000),
		d_lat BIGINT NOT NULL CHECK (d_lat >= 0),
		d_lon BIGINT NOT NULL CHECK (d_lon >= 0),
		tags TEXT NOT NULL
	)`,
}

// IndexStatement creates the lookup index used by box searches.
const IndexStatement = "CREATE INDEX poi_lat_lon ON poi (lat, lon)"

var refineStatements = []struct {
	kind Kind
	sql  string
}{
	{Point, `INSERT INTO poi (poi_type, lat, lon, d_lat, d_lon, tags)
		SELECT 0, lat, lon, 0, 0, tags FROM nodes WHERE has_name`},
	{Area, `INSERT INTO poi (poi_type, lat, lon, d_lat, d_lon, tags)
		SELECT 1, (lat_lb + lat_rt) / 2, (lon_lb + lon_rt) / 2, (lat_rt - lat_lb) / 2, (lon_rt - lon_lb) / 2, tags
		FROM ways WHERE has_name`},
	{Area, `INSERT INTO poi (poi_type, lat, lon, d_lat, d_lon, tags)
		SELECT 1, (lat_lb + lat_rt) / 2, (lon_lb + lon_rt) / 2, (lat_rt - lat_lb) / 2, (lon_rt - lon_lb) / 2, tags
		FROM relations WHERE has_name AND dep = 1`},
}

// CreateTable replaces any existing poi table with an empty one.
func CreateTable(ctx context.Context, tx *store.Tx) error {
	if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+Table); err != nil {
		return fmt.Errorf("dropping old poi table: %w", err)
	}
	if err := tx.ExecAll(ctx, CreateStatements...); err != nil {
		return fmt.Errorf("creating poi table: %w", err)
	}
	return nil
}

// RefineStats counts POIs by source.
type RefineStats struct {
	Points int64
	Areas  int64
}

// Total returns all POIs written.
func (s RefineStats) Total() int64 { return s.Points + s.Areas }

// Refine replaces the poi table with named elements from the resolved raw
// tables, then drops the raw tables.
func Refine(ctx context.Context, tx *store.Tx) (RefineStats, error) {
	log := logger.Get()
	start := time.Now()

	var stats RefineStats
	if err := CreateTable(ctx, tx); err != nil {
		return stats, err
	}

	for _, st := range refineStatements {
		res, err := tx.Exec(ctx, st.sql)
		if err != nil {
			return stats, fmt.Errorf("refining %s POIs: %w", st.kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return stats, err
		}
		if st.kind == Point {
			stats.Points += n
		} else {
			stats.Areas += n
		}
	}

	if _, err := tx.Exec(ctx, IndexStatement); err != nil {
		return stats, fmt.Errorf("indexing poi: %w", err)
	}
	if err := middle.DropTables(ctx, tx); err != nil {
		return stats, err
	}

	log.Info("POI table refined",
		zap.Int64("points", stats.Points),
		zap.Int64("areas", stats.Areas),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)))
	return stats, nil
}
