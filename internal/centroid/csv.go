package centroid

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
)

// Header is the header row written by WriteCSV.
var Header = []string{"type", "id", "lat", "lon", "weight"}

// WriteCSV resolves all positions and writes one row per located way or
// relation. It returns the number of rows written.
func WriteCSV(ctx context.Context, w io.Writer, a *Aggregator) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, err
	}
	var rows int
	err := a.ResolveAll(ctx, func(k Key, p Position) error {
		rows++
		return cw.Write([]string{
			k.Kind.String(),
			strconv.FormatInt(k.ID, 10),
			strconv.FormatFloat(p.Lat, 'f', 7, 64),
			strconv.FormatFloat(p.Lon, 'f', 7, 64),
			strconv.FormatFloat(p.Weight, 'f', -1, 64),
		})
	})
	if err != nil {
		return rows, err
	}
	cw.Flush()
	return rows, cw.Error()
}
