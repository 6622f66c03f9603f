package query

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/poi"
)

func TestWriteGeoJSON(t *testing.T) {
	results := []Result{
		{ReferID: 1, POI: pointPOI(10, 20, `{"name":"cafe"}`), Distance: 0.25},
		{ReferID: 2, POI: poi.POI{Kind: poi.Area, Lat: coord.ToFixed(1), Lon: coord.ToFixed(2), DLat: coord.ToFixed(0.5), DLon: coord.ToFixed(1), Tags: `{}`}},
	}
	var buf bytes.Buffer
	if err := WriteGeoJSON(&buf, results); err != nil {
		t.Fatal(err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(buf.Bytes())
	if err != nil {
		t.Fatalf("output is not GeoJSON: %v", err)
	}
	if len(fc.Features) != 2 {
		t.Fatalf("got %d features", len(fc.Features))
	}

	p, ok := fc.Features[0].Geometry.(orb.Point)
	if !ok || p.Lon() != 20 || p.Lat() != 10 {
		t.Errorf("point geometry = %#v", fc.Features[0].Geometry)
	}
	if fc.Features[0].Properties["distance"] != 0.25 {
		t.Errorf("distance = %v", fc.Features[0].Properties["distance"])
	}
	tags, _ := json.Marshal(fc.Features[0].Properties["tags"])
	if string(tags) != `{"name":"cafe"}` {
		t.Errorf("tags = %s", tags)
	}

	poly, ok := fc.Features[1].Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("area geometry = %#v", fc.Features[1].Geometry)
	}
	b := poly.Bound()
	if b.Min != (orb.Point{1, 0.5}) || b.Max != (orb.Point{3, 1.5}) {
		t.Errorf("area bound = %+v", b)
	}
	if fc.Features[1].Properties["poi_type"] != "area" {
		t.Errorf("poi_type = %v", fc.Features[1].Properties["poi_type"])
	}
}
