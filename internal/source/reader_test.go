package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

const sampleXML = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <bounds minlat="9" minlon="19" maxlat="11" maxlon="21"/>
  <node id="1" lat="10.0" lon="20.0" version="1">
    <tag k="name" v="Cafe"/>
  </node>
  <node id="2" lat="-10.5" lon="-20.25" version="1"/>
  <way id="10" version="1">
    <nd ref="1"/>
    <nd ref="2"/>
    <tag k="name:en" v="Road"/>
  </way>
  <relation id="100" version="1">
    <member type="node" ref="1" role=""/>
    <member type="way" ref="10" role="outer"/>
    <member type="relation" ref="101" role=""/>
    <tag k="type" v="multipolygon"/>
  </relation>
</osm>
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.osm")
	if err := os.WriteFile(path, []byte(sampleXML), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReaderXML(t *testing.T) {
	r, err := Open(context.Background(), writeSample(t), 1)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	var got []Element
	for r.Next() {
		got = append(got, r.Element())
	}
	if err := r.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d elements, want 4", len(got))
	}

	n := got[0]
	if n.Kind != KindNode || n.ID != 1 || n.Lat != 100000000 || n.Lon != 200000000 {
		t.Errorf("node 1 = %+v", n)
	}
	if n.Tags["name"] != "Cafe" {
		t.Errorf("node tags = %v", n.Tags)
	}
	if got[1].Lat != -105000000 || got[1].Lon != -202500000 {
		t.Errorf("node 2 coords = %d,%d", got[1].Lat, got[1].Lon)
	}

	w := got[2]
	if w.Kind != KindWay || len(w.Nodes) != 2 || w.Nodes[0] != 1 || w.Nodes[1] != 2 {
		t.Errorf("way = %+v", w)
	}

	rel := got[3]
	want := []Member{{KindNode, 1}, {KindWay, 10}, {KindRelation, 101}}
	if len(rel.Members) != len(want) {
		t.Fatalf("members = %+v", rel.Members)
	}
	for i := range want {
		if rel.Members[i] != want[i] {
			t.Errorf("member %d = %+v, want %+v", i, rel.Members[i], want[i])
		}
	}
}

func TestReaderCountRewinds(t *testing.T) {
	r, err := Open(context.Background(), writeSample(t), 1)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	c, err := r.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if c.Nodes != 2 || c.Ways != 1 || c.Relations != 1 || c.Total() != 4 {
		t.Errorf("counts = %+v", c)
	}

	n := 0
	for r.Next() {
		n++
	}
	if n != 4 {
		t.Errorf("after rewind read %d elements, want 4", n)
	}
}

func TestReaderDecodeError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.osm.pbf")
	if err := os.WriteFile(path, []byte("this is not a pbf file at all"), 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := Open(context.Background(), path, 1)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	for r.Next() {
	}
	if !errors.Is(r.Err(), ErrDecode) {
		t.Fatalf("Err = %v, want ErrDecode", r.Err())
	}
	var de *DecodeError
	if !errors.As(r.Err(), &de) || de.Path != path {
		t.Errorf("DecodeError = %+v", de)
	}
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{"monaco-latest.osm.pbf", FormatPBF, false},
		{"/tmp/x.OSM", FormatXML, false},
		{"extract.xml", FormatXML, false},
		{"data.csv", 0, true},
	}
	for _, tt := range tests {
		got, err := DetectFormat(tt.path)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("DetectFormat(%q) = %v, %v", tt.path, got, err)
		}
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.osm.pbf"), 1)
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}

func TestSliceStream(t *testing.T) {
	s := NewSliceStream([]Element{{Kind: KindNode, ID: 1}, {Kind: KindWay, ID: 2}})
	var ids []int64
	for s.Next() {
		ids = append(ids, s.Element().ID)
	}
	if len(ids) != 2 || ids[0] != 1 || ids[1] != 2 || s.Next() {
		t.Errorf("ids = %v", ids)
	}
}
