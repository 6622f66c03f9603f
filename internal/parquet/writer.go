// Package parquet exports the POI table to Parquet files.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

// DefaultBatchSize is the number of rows buffered per record batch.
const DefaultBatchSize = 50000

// Schema is the Arrow schema of an exported POI file. Coordinates stay in
// decimicro-degrees, matching the poi table. geom_wkb holds the point, or the
// box polygon of an area, in degrees (EPSG:4326).
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "poi_type", Type: arrow.PrimitiveTypes.Int8, Nullable: false},
	{Name: "lat", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "lon", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "delta_lat", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "delta_lon", Type: arrow.PrimitiveTypes.Int64, Nullable: false},
	{Name: "tags", Type: arrow.BinaryTypes.String, Nullable: false},
	{Name: "geom_wkb", Type: arrow.BinaryTypes.Binary, Nullable: false},
}, nil)

// POIWriter writes POI rows to a zstd-compressed Parquet file.
type POIWriter struct {
	file      *os.File
	writer    *pqarrow.FileWriter
	builder   *array.RecordBuilder
	batchSize int
	count     int
	total     int64
}

// NewPOIWriter creates path and returns a writer that flushes every
// batchSize rows.
func NewPOIWriter(path string, batchSize int) (*POIWriter, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	writerProps := parquet.NewWriterProperties(
		parquet.WithCompression(compress.Codecs.Zstd),
		parquet.WithDictionaryDefault(false),
	)

	writer, err := pqarrow.NewFileWriter(Schema, f, writerProps, pqarrow.DefaultWriterProps())
	if err != nil {
		f.Close()
		return nil, err
	}

	return &POIWriter{
		file:      f,
		writer:    writer,
		builder:   array.NewRecordBuilder(memory.DefaultAllocator, Schema),
		batchSize: batchSize,
	}, nil
}

// Geometry returns the degree-space geometry of p.
func Geometry(p poi.POI) orb.Geometry {
	if p.Kind == poi.Area {
		return p.Box().Bound().ToPolygon()
	}
	lat, lon, _, _ := p.Degrees()
	return orb.Point{lon, lat}
}

// Write appends one POI.
func (w *POIWriter) Write(p poi.POI) error {
	geom, err := wkb.Marshal(Geometry(p))
	if err != nil {
		return fmt.Errorf("encoding geometry: %w", err)
	}
	w.builder.Field(0).(*array.Int8Builder).Append(int8(p.Kind))
	w.builder.Field(1).(*array.Int64Builder).Append(p.Lat)
	w.builder.Field(2).(*array.Int64Builder).Append(p.Lon)
	w.builder.Field(3).(*array.Int64Builder).Append(p.DLat)
	w.builder.Field(4).(*array.Int64Builder).Append(p.DLon)
	w.builder.Field(5).(*array.StringBuilder).Append(p.Tags)
	w.builder.Field(6).(*array.BinaryBuilder).Append(geom)

	w.count++
	w.total++
	if w.count >= w.batchSize {
		return w.flush()
	}
	return nil
}

// Rows returns the number of rows written so far.
func (w *POIWriter) Rows() int64 { return w.total }

func (w *POIWriter) flush() error {
	if w.count == 0 {
		return nil
	}
	rec := w.builder.NewRecord()
	defer rec.Release()
	err := w.writer.Write(rec)
	w.count = 0
	return err
}

// Close flushes buffered rows and closes the file.
func (w *POIWriter) Close() error {
	defer w.builder.Release()
	if err := w.flush(); err != nil {
		w.writer.Close()
		return err
	}
	if err := w.writer.Close(); err != nil {
		return err
	}
	// Newer pqarrow versions close the sink themselves.
	if err := w.file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
		return err
	}
	return nil
}

// Export writes the whole poi table of s to path. On error the partial file
// is removed.
func Export(ctx context.Context, s *store.Store, path string, batchSize int) (int64, error) {
	w, err := NewPOIWriter(path, batchSize)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", path, err)
	}
	err = poi.Scan(ctx, s, w.Write)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("exporting parquet: %w", err)
	}
	return w.Rows(), nil
}
