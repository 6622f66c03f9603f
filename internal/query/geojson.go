package query

import (
	"encoding/json"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/poi"
)

// FeatureCollection converts results to GeoJSON. Point POIs become Point
// features; area POIs become the Polygon of their box.
func FeatureCollection(results []Result) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, r := range results {
		lat, lon, dLat, dLon := r.POI.Degrees()

		var geom orb.Geometry = orb.Point{lon, lat}
		if r.POI.Kind == poi.Area {
			geom = r.POI.Box().Bound().ToPolygon()
		}

		f := geojson.NewFeature(geom)
		f.Properties["refer_id"] = r.ReferID
		f.Properties["poi_type"] = r.POI.Kind.String()
		f.Properties["lat"] = lat
		f.Properties["lon"] = lon
		f.Properties["delta_lat"] = dLat
		f.Properties["delta_lon"] = dLon
		f.Properties["distance"] = r.Distance
		f.Properties["tags"] = json.RawMessage(r.POI.Tags)
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes results as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, results []Result) error {
	return json.NewEncoder(w).Encode(FeatureCollection(results))
}

// SearchBound returns the degree-space search box for p, before wrapping at
// the antimeridian.
func SearchBound(p Point, radiusKm float64) orb.Bound {
	return coord.SearchBox(p.Lat, p.Lon, radiusKm).Bound()
}
