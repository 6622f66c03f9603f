package parquet

import (
	"context"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet/file"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/wegman-software/osmpoi-go/internal/poi"
)

// Read calls fn for every row of a file written by POIWriter.
func Read(ctx context.Context, path string, fn func(poi.POI) error) error {
	pf, err := file.OpenParquetFile(path, false)
	if err != nil {
		return fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer pf.Close()

	arrowReader, err := pqarrow.NewFileReader(pf, pqarrow.ArrowReadProperties{}, memory.DefaultAllocator)
	if err != nil {
		return fmt.Errorf("failed to create arrow reader: %w", err)
	}
	tbl, err := arrowReader.ReadTable(ctx)
	if err != nil {
		return fmt.Errorf("failed to read table: %w", err)
	}
	defer tbl.Release()

	// geom_wkb is derived and not read back.
	const dataCols = 6
	if tbl.NumCols() < dataCols {
		return fmt.Errorf("%s: expected at least %d columns, found %d", path, dataCols, tbl.NumCols())
	}
	for i, f := range Schema.Fields()[:dataCols] {
		if name := tbl.Schema().Field(i).Name; name != f.Name {
			return fmt.Errorf("%s: column %d is %q, want %q", path, i, name, f.Name)
		}
	}

	kindCol := tbl.Column(0).Data()
	latCol := tbl.Column(1).Data()
	lonCol := tbl.Column(2).Data()
	dLatCol := tbl.Column(3).Data()
	dLonCol := tbl.Column(4).Data()
	tagsCol := tbl.Column(5).Data()

	for c := range kindCol.Chunks() {
		kinds := kindCol.Chunk(c).(*array.Int8)
		lats := latCol.Chunk(c).(*array.Int64)
		lons := lonCol.Chunk(c).(*array.Int64)
		dLats := dLatCol.Chunk(c).(*array.Int64)
		dLons := dLonCol.Chunk(c).(*array.Int64)
		tags := tagsCol.Chunk(c).(*array.String)

		for i := 0; i < kinds.Len(); i++ {
			p := poi.POI{
				Kind: poi.Kind(kinds.Value(i)),
				Lat:  lats.Value(i),
				Lon:  lons.Value(i),
				DLat: dLats.Value(i),
				DLon: dLons.Value(i),
				Tags: tags.Value(i),
			}
			if err := fn(p); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
