// Package middle holds the raw element tables that exist between ingestion
// and refinement. They are scratch space: the refiner drops them once the
// POI table is built.
package middle

import (
	"context"
	"fmt"

	"github.com/wegman-software/osmpoi-go/internal/store"
)

// Tables lists the raw tables in drop order.
var Tables = []string{"relation_references", "relations", "way_nodes", "ways", "nodes"}

func schema(d store.Dialect) []string {
	// INTEGER PRIMARY KEY makes the id the rowid on SQLite.
	id := "BIGINT"
	if d == store.SQLite {
		id = "INTEGER"
	}
	box := `
		lat_lb BIGINT NOT NULL DEFAULT 0 CHECK (lat_lb BETWEEN -900000000 AND 900000000),
		lon_lb BIGINT NOT NULL DEFAULT 0 CHECK (lon_lb BETWEEN -1800000000 AND 1800000000),
		lat_rt BIGINT NOT NULL DEFAULT 0 CHECK (lat_rt BETWEEN -900000000 AND 900000000),
		lon_rt BIGINT NOT NULL DEFAULT 0 CHECK (lon_rt BETWEEN -1800000000 AND 1800000000),`
	// Table constraints must follow every column definition.
	ordered := `,
		CHECK (lat_rt >= lat_lb AND lon_rt >= lon_lb)`

	return []string{
		fmt.Sprintf(`CREATE TABLE nodes (
			node_id %s PRIMARY KEY CHECK (node_id >= 0),
			lat BIGINT NOT NULL CHECK (lat BETWEEN -900000000 AND 900000000),
			lon BIGINT NOT NULL CHECK (lon BETWEEN -1800000000 AND 1800000000),
			has_name BOOLEAN NOT NULL,
			tags TEXT NOT NULL
		)`, id),
		fmt.Sprintf(`CREATE TABLE ways (
			way_id %s PRIMARY KEY CHECK (way_id >= 0),%s
			has_name BOOLEAN NOT NULL,
			tags TEXT NOT NULL%s
		)`, id, box, ordered),
		`CREATE TABLE way_nodes (
			way_id BIGINT NOT NULL CHECK (way_id >= 0),
			node_id BIGINT NOT NULL CHECK (node_id >= 0)
		)`,
		fmt.Sprintf(`CREATE TABLE relations (
			relation_id %s PRIMARY KEY CHECK (relation_id >= 0),%s
			dep SMALLINT NOT NULL DEFAULT 0 CHECK (dep IN (0, 1)),
			has_name BOOLEAN NOT NULL,
			tags TEXT NOT NULL%s
		)`, id, box, ordered),
		`CREATE TABLE relation_references (
			relation_id BIGINT NOT NULL CHECK (relation_id >= 0),
			reference_id BIGINT NOT NULL CHECK (reference_id >= 0),
			reference_type SMALLINT NOT NULL CHECK (reference_type IN (0, 1, 2))
		)`,
		`CREATE INDEX way_nodes_way_id ON way_nodes (way_id)`,
		`CREATE INDEX relation_references_relation_id ON relation_references (relation_id)`,
		`CREATE INDEX relation_references_reference ON relation_references (reference_type, reference_id)`,
	}
}

// CreateTables drops any leftover raw tables and creates them empty.
func CreateTables(ctx context.Context, tx *store.Tx) error {
	if err := DropTables(ctx, tx); err != nil {
		return err
	}
	if err := tx.ExecAll(ctx, schema(tx.Dialect())...); err != nil {
		return fmt.Errorf("creating raw tables: %w", err)
	}
	return nil
}

// DropTables removes all raw tables if present.
func DropTables(ctx context.Context, tx *store.Tx) error {
	for _, t := range Tables {
		if _, err := tx.Exec(ctx, "DROP TABLE IF EXISTS "+t); err != nil {
			return fmt.Errorf("dropping %s: %w", t, err)
		}
	}
	return nil
}
