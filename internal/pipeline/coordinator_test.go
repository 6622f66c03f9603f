package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmpoi-go/internal/bbox"
	"github.com/wegman-software/osmpoi-go/internal/middle"
	"github.com/wegman-software/osmpoi-go/internal/poi"
	"github.com/wegman-software/osmpoi-go/internal/source"
	"github.com/wegman-software/osmpoi-go/internal/store"
)

const extract = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6">
  <node id="1" lat="10.0" lon="20.0"><tag k="name" v="Cafe"/><tag k="amenity" v="cafe"/></node>
  <node id="2" lat="10.1" lon="20.1"/>
  <node id="3" lat="10.2" lon="20.3"/>
  <node id="4" lat="10.3" lon="20.2"><tag k="description" v="nothing to see"/></node>
  <way id="10"><nd ref="2"/><nd ref="3"/><tag k="name:en" v="Main Street"/></way>
  <way id="11"><nd ref="3"/><nd ref="4"/></way>
  <relation id="100">
    <member type="way" ref="11" role="outer"/>
    <member type="relation" ref="101" role=""/>
    <tag k="old_name" v="Old Park"/>
  </relation>
  <relation id="101">
    <member type="node" ref="1" role=""/>
  </relation>
</osm>
`

func writeExtract(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "extract.osm")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func buildFile(t *testing.T, input string, opts Options) (*store.Store, *BuildStats, error) {
	t.Helper()
	ctx := context.Background()
	r, err := source.Open(ctx, input, 1)
	require.NoError(t, err)
	defer r.Close()

	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "out.poi.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	stats, err := Build(ctx, s, r, opts)
	return s, stats, err
}

func readPOIs(t *testing.T, s *store.Store) []poi.POI {
	t.Helper()
	var out []poi.POI
	require.NoError(t, poi.Scan(context.Background(), s, func(p poi.POI) error {
		out = append(out, p)
		return nil
	}))
	sort.Slice(out, func(i, j int) bool { return out[i].Tags < out[j].Tags })
	return out
}

func TestBuildEndToEnd(t *testing.T) {
	var events []Event
	s, stats, err := buildFile(t, writeExtract(t, extract), Options{
		Policy:     bbox.PolicyFail,
		OnProgress: func(e Event) { events = append(events, e) },
	})
	require.NoError(t, err)

	assert.Equal(t, middle.Counts{Nodes: 4, Ways: 2, WayNodes: 4, Relations: 2, References: 3}, stats.Ingest)
	assert.Equal(t, bbox.WayStats{Resolved: 2}, stats.Ways)
	assert.Equal(t, int64(2), stats.Relations.Resolved)
	assert.Equal(t, 2, stats.Relations.Sweeps)
	assert.Equal(t, poi.RefineStats{Points: 1, Areas: 2}, stats.POIs)
	for _, st := range []Stage{StageIngest, StageWays, StageRelations, StageRefine} {
		assert.Contains(t, stats.Stages, st)
	}

	got := readPOIs(t, s)
	require.Len(t, got, 3)
	assert.Equal(t, poi.POI{Kind: poi.Point, Lat: 100000000, Lon: 200000000, Tags: `{"amenity":"cafe","name":"Cafe"}`}, got[0])
	// way 10: (10.1,20.1)-(10.2,20.3)
	assert.Equal(t, poi.POI{Kind: poi.Area, Lat: 101500000, Lon: 202000000, DLat: 500000, DLon: 1000000, Tags: `{"name:en":"Main Street"}`}, got[1])
	// relation 100: way 11 (10.2,20.2)-(10.3,20.3) merged with relation 101 at (10,20)
	assert.Equal(t, poi.POI{Kind: poi.Area, Lat: 101500000, Lon: 201500000, DLat: 1500000, DLon: 1500000, Tags: `{"old_name":"Old Park"}`}, got[2])

	for _, table := range middle.Tables {
		ok, err := s.TableExists(context.Background(), table)
		require.NoError(t, err)
		assert.False(t, ok, "raw table %s left behind", table)
	}

	require.NotEmpty(t, events)
	assert.Equal(t, StageIngest, events[0].Stage)
	assert.Equal(t, Event{Stage: StageRefine, Count: 3}, events[len(events)-1])
}

func TestBuildIdempotent(t *testing.T) {
	input := writeExtract(t, extract)
	a, _, err := buildFile(t, input, Options{})
	require.NoError(t, err)
	b, _, err := buildFile(t, input, Options{})
	require.NoError(t, err)
	assert.Equal(t, readPOIs(t, a), readPOIs(t, b))
}

func TestBuildRebuildsInPlace(t *testing.T) {
	ctx := context.Background()
	input := writeExtract(t, extract)
	s, _, err := buildFile(t, input, Options{})
	require.NoError(t, err)
	first := readPOIs(t, s)

	r, err := source.Open(ctx, input, 1)
	require.NoError(t, err)
	defer r.Close()
	_, err = Build(ctx, s, r, Options{})
	require.NoError(t, err)
	assert.Equal(t, first, readPOIs(t, s))
}

func TestBuildFailureRollsBack(t *testing.T) {
	cyclic := `<?xml version="1.0"?>
<osm version="0.6">
  <node id="1" lat="1" lon="1"><tag k="name" v="n"/></node>
  <relation id="1"><member type="relation" ref="2" role=""/><tag k="name" v="a"/></relation>
  <relation id="2"><member type="relation" ref="1" role=""/></relation>
</osm>`
	s, stats, err := buildFile(t, writeExtract(t, cyclic), Options{})
	require.Error(t, err)
	assert.Nil(t, stats)
	assert.True(t, errors.Is(err, bbox.ErrUnresolvedDependency))

	for _, table := range append([]string{poi.Table}, middle.Tables...) {
		ok, err := s.TableExists(context.Background(), table)
		require.NoError(t, err)
		assert.False(t, ok, "table %s must not exist after a failed build", table)
	}
}

func TestBuildDegeneratePolicies(t *testing.T) {
	clipped := `<?xml version="1.0"?>
<osm version="0.6">
  <node id="1" lat="1" lon="1"><tag k="name" v="n"/></node>
  <way id="5"><nd ref="999"/><tag k="name" v="outside"/></way>
  <relation id="7"><member type="way" ref="5" role=""/><tag k="name" v="r"/></relation>
</osm>`
	input := writeExtract(t, clipped)

	_, _, err := buildFile(t, input, Options{Policy: bbox.PolicyFail})
	assert.ErrorIs(t, err, bbox.ErrDegenerateGeometry)

	_, _, err = buildFile(t, input, Options{})
	assert.ErrorIs(t, err, bbox.ErrDegenerateGeometry, "fail is the default policy")

	s, stats, err := buildFile(t, input, Options{Policy: bbox.PolicySkip})
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Ways.Skipped)
	assert.Equal(t, int64(1), stats.Relations.Skipped)
	assert.Len(t, readPOIs(t, s), 1)
}

func TestBuildDecodeError(t *testing.T) {
	broken := `<?xml version="1.0"?>
<osm version="0.6">
  <node id="1" lat="1" lon="1"><tag k="name" v="n"/></node>
  <node id="2" lat="1" lon=`
	s, _, err := buildFile(t, writeExtract(t, broken), Options{})
	require.ErrorIs(t, err, source.ErrDecode)

	ok, err := s.TableExists(context.Background(), "nodes")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildWithMetricsAndProgressLogging(t *testing.T) {
	_, stats, err := buildFile(t, writeExtract(t, extract), Options{
		MetricsInterval:  time.Second,
		ProgressInterval: time.Millisecond,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.POIs.Total())
}
