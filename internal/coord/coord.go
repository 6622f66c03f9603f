// Package coord holds the fixed-point coordinate model shared by the build
// and query paths. Coordinates are stored as integer decimicro-degrees
// (degrees × 10^7); distances are great-circle kilometres.
package coord

import (
	"fmt"
	"math"
)

const (
	// Scale converts degrees to decimicro-degrees.
	Scale = 1e7

	// EarthRadiusKm is the mean Earth radius used for all distance math.
	EarthRadiusKm = 6371.0

	MaxLat = 90 * Scale
	MaxLon = 180 * Scale
)

// ToFixed converts degrees to decimicro-degrees, rounding to the nearest unit.
func ToFixed(deg float64) int64 {
	return int64(math.Round(deg * Scale))
}

// ToDegrees converts decimicro-degrees back to degrees.
func ToDegrees(v int64) float64 {
	return float64(v) / Scale
}

// ValidLatLon reports an error if lat/lon (degrees) are outside the WGS84 range
// or not finite.
func ValidLatLon(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || lat < -90 || lat > 90 {
		return fmt.Errorf("latitude %v out of range [-90, 90]", lat)
	}
	if math.IsNaN(lon) || math.IsInf(lon, 0) || lon < -180 || lon > 180 {
		return fmt.Errorf("longitude %v out of range [-180, 180]", lon)
	}
	return nil
}

// Haversine returns the great-circle distance in km between two points
// given in degrees.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	if a > 1 {
		a = 1
	}
	return 2 * EarthRadiusKm * math.Asin(math.Sqrt(a))
}

// KmToDegrees converts a distance along a meridian into degrees of arc.
func KmToDegrees(km float64) float64 {
	return km / EarthRadiusKm / math.Pi * 180
}

// SearchBox returns the fixed-point box that encloses every point within km of
// (lat, lon). The longitude half-width is widened by 1/cos(lat) so that the box
// never cuts off points the haversine check would accept; near the poles it is
// capped at the full longitude range. Half-widths never exceed 180 degrees, so
// any radius yields a representable box. Longitudes are not wrapped; see
// SearchBoxes.
func SearchBox(lat, lon, km float64) Box {
	dLat := math.Min(KmToDegrees(km), 180)
	dLon := 180.0
	if c := math.Cos(lat * math.Pi / 180); c > 1e-9 {
		dLon = math.Min(dLat/c, 180)
	}
	return Box{
		MinLat: ToFixed(lat - dLat),
		MinLon: ToFixed(lon - dLon),
		MaxLat: ToFixed(lat + dLat),
		MaxLon: ToFixed(lon + dLon),
	}
}

// SearchBoxes is SearchBox wrapped at the antimeridian. It returns one box, or
// two disjoint boxes when the search area crosses ±180°. A search area wider
// than the whole longitude range becomes a single full-width box.
func SearchBoxes(lat, lon, km float64) []Box {
	b := SearchBox(lat, lon, km)
	switch {
	case b.MaxLon-b.MinLon >= 2*MaxLon:
		b.MinLon, b.MaxLon = -MaxLon, MaxLon
		return []Box{b}
	case b.MinLon < -MaxLon:
		east := b
		east.MinLon, east.MaxLon = b.MinLon+2*MaxLon, MaxLon
		b.MinLon = -MaxLon
		return []Box{b, east}
	case b.MaxLon > MaxLon:
		west := b
		west.MinLon, west.MaxLon = -MaxLon, b.MaxLon-2*MaxLon
		b.MaxLon = MaxLon
		return []Box{b, west}
	}
	return []Box{b}
}
