package coord

import "github.com/paulmach/orb"

// Box is an axis-aligned rectangle in decimicro-degrees. Edges are inclusive.
type Box struct {
	MinLat, MinLon int64
	MaxLat, MaxLon int64
}

// PointBox returns the zero-extent box at a point.
func PointBox(lat, lon int64) Box {
	return Box{MinLat: lat, MinLon: lon, MaxLat: lat, MaxLon: lon}
}

// Extend grows b to include the point.
func (b Box) Extend(lat, lon int64) Box {
	return b.Union(PointBox(lat, lon))
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		MinLat: min(b.MinLat, o.MinLat),
		MinLon: min(b.MinLon, o.MinLon),
		MaxLat: max(b.MaxLat, o.MaxLat),
		MaxLon: max(b.MaxLon, o.MaxLon),
	}
}

// Center returns the midpoint of the box, truncated toward zero the same way
// the refiner's integer SQL arithmetic does.
func (b Box) Center() (lat, lon int64) {
	return (b.MinLat + b.MaxLat) / 2, (b.MinLon + b.MaxLon) / 2
}

// HalfExtent returns half the box's span on each axis.
func (b Box) HalfExtent() (dLat, dLon int64) {
	return (b.MaxLat - b.MinLat) / 2, (b.MaxLon - b.MinLon) / 2
}

// ContainsPoint reports whether the point lies inside b, edges included.
func (b Box) ContainsPoint(lat, lon int64) bool {
	return lat >= b.MinLat && lat <= b.MaxLat && lon >= b.MinLon && lon <= b.MaxLon
}

// Intersects reports whether b and o share at least one point. Touching edges
// count as an intersection.
func (b Box) Intersects(o Box) bool {
	return !(b.MinLat > o.MaxLat || b.MaxLat < o.MinLat ||
		b.MinLon > o.MaxLon || b.MaxLon < o.MinLon)
}

// Bound converts b to an orb.Bound in degrees.
func (b Box) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{ToDegrees(b.MinLon), ToDegrees(b.MinLat)},
		Max: orb.Point{ToDegrees(b.MaxLon), ToDegrees(b.MaxLat)},
	}
}

// FromBound converts an orb.Bound in degrees to a fixed-point box.
func FromBound(bound orb.Bound) Box {
	return Box{
		MinLat: ToFixed(bound.Min.Lat()),
		MinLon: ToFixed(bound.Min.Lon()),
		MaxLat: ToFixed(bound.Max.Lat()),
		MaxLon: ToFixed(bound.Max.Lon()),
	}
}

// NullBox is a box that may be absent, as produced by SQL aggregates over an
// empty set.
type NullBox struct {
	Box   Box
	Valid bool
}

// Merge folds the present boxes into one, ignoring absent ones. It returns
// false only when every input is absent.
func Merge(boxes ...NullBox) (Box, bool) {
	var (
		out Box
		ok  bool
	)
	for _, nb := range boxes {
		if !nb.Valid {
			continue
		}
		if !ok {
			out, ok = nb.Box, true
			continue
		}
		out = out.Union(nb.Box)
	}
	return out, ok
}
