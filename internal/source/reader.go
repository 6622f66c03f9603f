package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/paulmach/osm/osmxml"

	"github.com/wegman-software/osmpoi-go/internal/coord"
)

// Format is the on-disk encoding of an extract.
type Format int

const (
	FormatPBF Format = iota
	FormatXML
)

// DetectFormat picks the decoder from the file name.
func DetectFormat(path string) (Format, error) {
	name := strings.ToLower(filepath.Base(path))
	switch {
	case strings.HasSuffix(name, ".pbf"):
		return FormatPBF, nil
	case strings.HasSuffix(name, ".osm"), strings.HasSuffix(name, ".xml"):
		return FormatXML, nil
	}
	return 0, fmt.Errorf("unsupported input %q: expected .osm.pbf or .osm", path)
}

type scanner interface {
	Scan() bool
	Object() osm.Object
	Err() error
	Close() error
}

// Reader decodes an extract file. It implements Stream and can be rewound
// for multi-pass consumers.
type Reader struct {
	ctx    context.Context
	path   string
	format Format
	procs  int

	f       *os.File
	counter *countingReader
	scanner scanner
	size    int64

	cur  Element
	read int64
	err  error
}

// Open opens path for streaming. procs bounds the PBF decoder's parallelism.
func Open(ctx context.Context, path string, procs int) (*Reader, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if procs < 1 {
		procs = 1
	}
	r := &Reader{ctx: ctx, path: path, format: format, procs: procs, f: f, size: info.Size()}
	r.start()
	return r, nil
}

func (r *Reader) start() {
	r.counter = &countingReader{r: r.f}
	switch r.format {
	case FormatPBF:
		r.scanner = osmpbf.New(r.ctx, r.counter, r.procs)
	case FormatXML:
		r.scanner = osmxml.New(r.ctx, r.counter)
	}
	r.read = 0
	r.err = nil
}

// Next advances to the next node, way or relation. Other objects in the
// file (bounds, changesets) are skipped.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		switch o := r.scanner.Object().(type) {
		case *osm.Node:
			r.cur = Element{
				Kind: KindNode,
				ID:   int64(o.ID),
				Lat:  coord.ToFixed(o.Lat),
				Lon:  coord.ToFixed(o.Lon),
				Tags: o.Tags.Map(),
			}
		case *osm.Way:
			nodes := make([]int64, len(o.Nodes))
			for i, wn := range o.Nodes {
				nodes[i] = int64(wn.ID)
			}
			r.cur = Element{Kind: KindWay, ID: int64(o.ID), Nodes: nodes, Tags: o.Tags.Map()}
		case *osm.Relation:
			members := make([]Member, 0, len(o.Members))
			for _, m := range o.Members {
				k, ok := memberKind(m.Type)
				if !ok {
					continue
				}
				members = append(members, Member{Kind: k, Ref: m.Ref})
			}
			r.cur = Element{Kind: KindRelation, ID: int64(o.ID), Members: members, Tags: o.Tags.Map()}
		default:
			continue
		}
		r.read++
		return true
	}
	if err := r.scanner.Err(); err != nil && err != io.EOF {
		r.err = &DecodeError{Path: r.path, Elements: r.read, Err: err}
	}
	return false
}

func memberKind(t osm.Type) (Kind, bool) {
	switch t {
	case osm.TypeNode:
		return KindNode, true
	case osm.TypeWay:
		return KindWay, true
	case osm.TypeRelation:
		return KindRelation, true
	}
	return 0, false
}

// Element returns the element produced by the last successful Next.
func (r *Reader) Element() Element { return r.cur }

// Err returns the first decode error, if any.
func (r *Reader) Err() error { return r.err }

// BytesRead returns how far the decoder has read into the file.
func (r *Reader) BytesRead() int64 { return r.counter.n.Load() }

// Size returns the input file size in bytes.
func (r *Reader) Size() int64 { return r.size }

// Rewind restarts decoding from the beginning of the file.
func (r *Reader) Rewind() error {
	r.scanner.Close()
	if _, err := r.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding %s: %w", r.path, err)
	}
	r.start()
	return nil
}

// Count reads the whole file tallying elements by kind, then rewinds.
func (r *Reader) Count() (Counts, error) {
	var c Counts
	for r.Next() {
		c.Add(r.cur.Kind)
	}
	if err := r.Err(); err != nil {
		return c, err
	}
	return c, r.Rewind()
}

// Close releases the decoder and the file.
func (r *Reader) Close() error {
	r.scanner.Close()
	return r.f.Close()
}

type countingReader struct {
	r io.Reader
	n atomic.Int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}
