// Package poiindex keeps a finished POI table in an in-memory R-tree for
// repeated queries, as done by the HTTP server.
package poiindex

import (
	"context"
	"fmt"

	"github.com/dhconnelly/rtreego"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// pad widens every rectangle by half a decimicro-degree on each side. The
// R-tree treats touching rectangles as disjoint and rejects zero-size ones;
// exact inclusive predicates are applied to the candidates afterwards.
const pad = 0.5

type entry struct {
	p    poi.POI
	rect rtreego.Rect
}

func (e *entry) Bounds() rtreego.Rect { return e.rect }

// Index is a read-only spatial index over POIs. It is safe for concurrent
// searches once built.
type Index struct {
	tree *rtreego.Rtree
}

func rect(b coord.Box) rtreego.Rect {
	r, _ := rtreego.NewRectFromPoints(
		rtreego.Point{float64(b.MinLat) - pad, float64(b.MinLon) - pad},
		rtreego.Point{float64(b.MaxLat) + pad, float64(b.MaxLon) + pad},
	)
	return r
}

// Build indexes pois.
func Build(pois []poi.POI) *Index {
	objs := make([]rtreego.Spatial, len(pois))
	for i, p := range pois {
		objs[i] = &entry{p: p, rect: rect(p.Box())}
	}
	return &Index{tree: rtreego.NewTree(2, 25, 50, objs...)}
}

// Load reads the poi table of s into a new index.
func Load(ctx context.Context, s *store.Store) (*Index, error) {
	n, err := poi.Count(ctx, s)
	if err != nil {
		return nil, err
	}
	pois := make([]poi.POI, 0, n)
	err = poi.Scan(ctx, s, func(p poi.POI) error {
		pois = append(pois, p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading index from %s: %w", s.Name(), err)
	}
	return Build(pois), nil
}

// Len returns the number of indexed POIs.
func (ix *Index) Len() int { return ix.tree.Size() }

func (ix *Index) candidates(box coord.Box) []rtreego.Spatial {
	return ix.tree.SearchIntersect(rect(box))
}

// Centers returns POIs whose center lies inside box, edges included.
func (ix *Index) Centers(_ context.Context, box coord.Box) ([]poi.POI, error) {
	var out []poi.POI
	for _, s := range ix.candidates(box) {
		p := s.(*entry).p
		if box.ContainsPoint(p.Lat, p.Lon) {
			out = append(out, p)
		}
	}
	return out, nil
}

// Overlapping returns POIs whose own box intersects box.
func (ix *Index) Overlapping(_ context.Context, box coord.Box) ([]poi.POI, error) {
	var out []poi.POI
	for _, s := range ix.candidates(box) {
		p := s.(*entry).p
		if box.Intersects(p.Box()) {
			out = append(out, p)
		}
	}
	return out, nil
}
