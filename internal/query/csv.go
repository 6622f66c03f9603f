package query

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wegman-software/osmpoi-go/internal/coord"
)

// OutputHeader is the header row written by WriteCSV.
var OutputHeader = []string{"refer_id", "poi_type", "lat", "lon", "delta_lat", "delta_lon", "distance", "tags"}

// ReadPoints parses a CSV of query points. The header row must name the
// columns id, lat and lon (any order, extra columns ignored).
func ReadPoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, &InputError{Line: 1, Err: errors.New("missing header row")}
	}
	if err != nil {
		return nil, csvError(err)
	}

	col := map[string]int{}
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, name := range []string{"id", "lat", "lon"} {
		if _, ok := col[name]; !ok {
			return nil, &InputError{Line: 1, Err: fmt.Errorf("missing column %q", name)}
		}
	}

	var points []Point
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, csvError(err)
		}
		line, _ := cr.FieldPos(0)

		p, err := parsePoint(rec, col)
		if err != nil {
			return nil, &InputError{Line: line, Err: err}
		}
		points = append(points, p)
	}
	return points, nil
}

func parsePoint(rec []string, col map[string]int) (Point, error) {
	var p Point
	var err error
	if p.ID, err = strconv.ParseInt(strings.TrimSpace(rec[col["id"]]), 10, 64); err != nil {
		return p, fmt.Errorf("id: %w", err)
	}
	if p.Lat, err = strconv.ParseFloat(strings.TrimSpace(rec[col["lat"]]), 64); err != nil {
		return p, fmt.Errorf("lat: %w", err)
	}
	if p.Lon, err = strconv.ParseFloat(strings.TrimSpace(rec[col["lon"]]), 64); err != nil {
		return p, fmt.Errorf("lon: %w", err)
	}
	if err := coord.ValidLatLon(p.Lat, p.Lon); err != nil {
		return p, err
	}
	return p, nil
}

func csvError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &InputError{Line: pe.Line, Err: pe.Err}
	}
	return err
}

// WriteCSV writes results with OutputHeader. Coordinates are in degrees.
func WriteCSV(w io.Writer, results []Result) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(OutputHeader); err != nil {
		return err
	}
	for _, r := range results {
		lat, lon, dLat, dLon := r.POI.Degrees()
		rec := []string{
			strconv.FormatInt(r.ReferID, 10),
			strconv.Itoa(int(r.POI.Kind)),
			formatFloat(lat),
			formatFloat(lon),
			formatFloat(dLat),
			formatFloat(dLon),
			formatFloat(r.Distance),
			r.POI.Tags,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
