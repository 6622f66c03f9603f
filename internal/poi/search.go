package poi

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

const columns = "poi_type, lat, lon, d_lat, d_lon, tags"

// StoreSearcher answers box queries directly against a finished store.
type StoreSearcher struct {
	store *store.Store
}

// NewStoreSearcher wraps s, which must contain a refined poi table.
func NewStoreSearcher(s *store.Store) *StoreSearcher {
	return &StoreSearcher{store: s}
}

// Centers returns POIs whose center lies inside box, edges included.
func (s *StoreSearcher) Centers(ctx context.Context, box coord.Box) ([]POI, error) {
	return s.collect(ctx,
		"SELECT "+columns+" FROM poi WHERE lat >= ? AND lat <= ? AND lon >= ? AND lon <= ?",
		box.MinLat, box.MaxLat, box.MinLon, box.MaxLon)
}

// Overlapping returns POIs whose own box intersects box.
func (s *StoreSearcher) Overlapping(ctx context.Context, box coord.Box) ([]POI, error) {
	return s.collect(ctx,
		"SELECT "+columns+" FROM poi WHERE NOT (lat - d_lat > ? OR lat + d_lat < ? OR lon - d_lon > ? OR lon + d_lon < ?)",
		box.MaxLat, box.MinLat, box.MaxLon, box.MinLon)
}

func (s *StoreSearcher) collect(ctx context.Context, query string, args ...any) ([]POI, error) {
	rows, err := s.store.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching poi: %w", err)
	}
	defer rows.Close()

	var out []POI
	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scan(rows *sql.Rows) (POI, error) {
	var p POI
	var kind int64
	if err := rows.Scan(&kind, &p.Lat, &p.Lon, &p.DLat, &p.DLon, &p.Tags); err != nil {
		return p, fmt.Errorf("scanning poi: %w", err)
	}
	p.Kind = Kind(kind)
	return p, nil
}

// Scan calls fn for every POI in store order.
func Scan(ctx context.Context, s *store.Store, fn func(POI) error) error {
	rows, err := s.Query(ctx, "SELECT "+columns+" FROM poi")
	if err != nil {
		return fmt.Errorf("reading poi: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scan(rows)
		if err != nil {
			return err
		}
		if err := fn(p); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of POIs in the store.
func Count(ctx context.Context, s *store.Store) (int64, error) {
	var n int64
	if err := s.QueryRow(ctx, "SELECT COUNT(*) FROM poi").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting poi: %w", err)
	}
	return n, nil
}
