// Package query answers proximity questions against a finished POI store.
package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/metrics"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/style"
)

// Searcher finds POI candidates for a fixed-point box.
type Searcher interface {
	// Centers returns POIs whose center lies inside the box.
	Centers(ctx context.Context, box coord.Box) ([]poi.POI, error)
	// Overlapping returns POIs whose own box intersects the box.
	Overlapping(ctx context.Context, box coord.Box) ([]poi.POI, error)
}

// Point is one query location in degrees.
type Point struct {
	ID  int64
	Lat float64
	Lon float64
}

// Result is a POI matched to a query point. Distance is the haversine
// distance in km from the query point to the POI center.
type Result struct {
	ReferID  int64
	POI      poi.POI
	Distance float64
}

// Options configures an Engine.
type Options struct {
	RadiusKm float64
	// Strict keeps only POIs whose center is within RadiusKm. Otherwise any
	// POI whose box overlaps the search box is returned.
	Strict  bool
	Workers int
	// Style optionally narrows results by tags.
	Style *style.Config
}

// Engine runs proximity queries. It holds no mutable state and is safe for
// concurrent use.
type Engine struct {
	searcher Searcher
	opts     Options
}

// NewEngine validates opts and returns an engine over s.
func NewEngine(s Searcher, opts Options) (*Engine, error) {
	if math.IsNaN(opts.RadiusKm) || math.IsInf(opts.RadiusKm, 0) || opts.RadiusKm < 0 {
		return nil, fmt.Errorf("%w: radius must be a non-negative number of km, got %v", ErrQueryInput, opts.RadiusKm)
	}
	if opts.Workers < 1 {
		opts.Workers = runtime.NumCPU()
	}
	return &Engine{searcher: s, opts: opts}, nil
}

func (e *Engine) mode() string {
	if e.opts.Strict {
		return "strict"
	}
	return "overlap"
}

// Search returns the matches for a single point, in searcher order.
func (e *Engine) Search(ctx context.Context, p Point) ([]Result, error) {
	if err := coord.ValidLatLon(p.Lat, p.Lon); err != nil {
		return nil, fmt.Errorf("%w: point %d: %v", ErrQueryInput, p.ID, err)
	}
	start := time.Now()
	candidates, err := e.candidates(ctx, coord.SearchBoxes(p.Lat, p.Lon, e.opts.RadiusKm))
	if err != nil {
		return nil, fmt.Errorf("point %d: %w", p.ID, err)
	}

	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		lat, lon, _, _ := c.Degrees()
		d := coord.Haversine(p.Lat, p.Lon, lat, lon)
		if e.opts.Strict && d > e.opts.RadiusKm {
			continue
		}
		if e.opts.Style != nil {
			ok, err := e.matchStyle(c)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, Result{ReferID: p.ID, POI: c, Distance: d})
	}

	metrics.QueryPoints.WithLabelValues(e.mode()).Inc()
	metrics.QueryResults.WithLabelValues(e.mode()).Add(float64(len(out)))
	metrics.QueryDuration.WithLabelValues(e.mode()).Observe(time.Since(start).Seconds())
	return out, nil
}

// candidates searches each box in turn. A POI already matched by an earlier
// box is not returned again.
func (e *Engine) candidates(ctx context.Context, boxes []coord.Box) ([]poi.POI, error) {
	var out []poi.POI
	for i, box := range boxes {
		var (
			found []poi.POI
			err   error
		)
		if e.opts.Strict {
			found, err = e.searcher.Centers(ctx, box)
		} else {
			found, err = e.searcher.Overlapping(ctx, box)
		}
		if err != nil {
			return nil, err
		}
		for _, c := range found {
			if !e.matchedEarlier(c, boxes[:i]) {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (e *Engine) matchedEarlier(c poi.POI, boxes []coord.Box) bool {
	for _, b := range boxes {
		if e.opts.Strict && b.ContainsPoint(c.Lat, c.Lon) {
			return true
		}
		if !e.opts.Strict && b.Intersects(c.Box()) {
			return true
		}
	}
	return false
}

func (e *Engine) matchStyle(p poi.POI) (bool, error) {
	var tags map[string]string
	if err := json.Unmarshal([]byte(p.Tags), &tags); err != nil {
		return false, fmt.Errorf("decoding poi tags: %w", err)
	}
	return e.opts.Style.Match(p.Kind == poi.Area, tags), nil
}

// Run searches every point, up to Workers at a time, and returns the results
// grouped by point in input order.
func (e *Engine) Run(ctx context.Context, points []Point) ([]Result, error) {
	groups := make([][]Result, len(points))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)
	for i, p := range points {
		i, p := i, p
		g.Go(func() error {
			res, err := e.Search(gctx, p)
			if err != nil {
				return err
			}
			groups[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, grp := range groups {
		total += len(grp)
	}
	out := make([]Result, 0, total)
	for _, grp := range groups {
		out = append(out, grp...)
	}
	return out, nil
}

// ErrQueryInput marks malformed query input.
var ErrQueryInput = errors.New("invalid query input")

// InputError locates a malformed row in a query input file.
type InputError struct {
	Line int
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("query input line %d: %v", e.Line, e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

func (e *InputError) Is(target error) bool { return target == ErrQueryInput }
