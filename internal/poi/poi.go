// Package poi builds and reads the refined POI table, the only table a
// finished dataset keeps.
package poi

import (
	"github.com/wegman-software/osmpoi-go/internal/coord"
)

// Kind distinguishes point POIs (nodes) from area POIs (ways, relations).
type Kind int

const (
	Point Kind = 0
	Area  Kind = 1
)

func (k Kind) String() string {
	if k == Area {
		return "area"
	}
	return "point"
}

// POI is one refined row. Lat/Lon is the point or box center and DLat/DLon
// the half-extent, all in decimicro-degrees. Tags is a JSON object string.
type POI struct {
	Kind Kind
	Lat  int64
	Lon  int64
	DLat int64
	DLon int64
	Tags string
}

// Box returns the extent covered by the POI.
func (p POI) Box() coord.Box {
	return coord.Box{
		MinLat: p.Lat - p.DLat,
		MinLon: p.Lon - p.DLon,
		MaxLat: p.Lat + p.DLat,
		MaxLon: p.Lon + p.DLon,
	}
}

// Degrees returns center and half-extent in degrees.
func (p POI) Degrees() (lat, lon, dLat, dLon float64) {
	return coord.ToDegrees(p.Lat), coord.ToDegrees(p.Lon), coord.ToDegrees(p.DLat), coord.ToDegrees(p.DLon)
}
