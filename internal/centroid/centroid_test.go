package centroid

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/nodeindex"
	"github.com/wegman-software/osmpoi-go/internal/source"
)

type mapNodes map[int64][2]int64

func (m mapNodes) Get(id int64) (int64, int64, bool) {
	v, ok := m[id]
	return v[0], v[1], ok
}

func (m mapNodes) Put(id, lat, lon int64) error {
	m[id] = [2]int64{lat, lon}
	return nil
}

func node(id int64, lat, lon float64) source.Element {
	return source.Element{Kind: source.KindNode, ID: id, Lat: coord.ToFixed(lat), Lon: coord.ToFixed(lon)}
}

func way(id int64, refs ...int64) source.Element {
	return source.Element{Kind: source.KindWay, ID: id, Nodes: refs}
}

func relation(id int64, members ...source.Member) source.Element {
	return source.Element{Kind: source.KindRelation, ID: id, Members: members}
}

func member(k source.Kind, ref int64) source.Member {
	return source.Member{Kind: k, Ref: ref}
}

func load(t *testing.T, elems ...source.Element) *Aggregator {
	t.Helper()
	a, err := Load(context.Background(), source.NewSliceStream(elems), mapNodes{})
	require.NoError(t, err)
	return a
}

func TestWeightedMean(t *testing.T) {
	a := load(t,
		node(1, 10, 20),
		node(2, 12, 22),
		node(3, 40, 50),
		way(1, 1, 2),
		relation(1, member(source.KindWay, 1), member(source.KindNode, 3)),
	)
	assert.Equal(t, 2, a.Len())

	p, ok := a.Position(Key{source.KindWay, 1})
	require.True(t, ok)
	assert.InDelta(t, 11, p.Lat, 1e-9)
	assert.InDelta(t, 21, p.Lon, 1e-9)
	assert.Equal(t, 2.0, p.Weight)

	// The way counts twice as much as the lone node.
	p, ok = a.Position(Key{source.KindRelation, 1})
	require.True(t, ok)
	assert.InDelta(t, (11*2+40)/3.0, p.Lat, 1e-9)
	assert.InDelta(t, (21*2+50)/3.0, p.Lon, 1e-9)
	assert.Equal(t, 3.0, p.Weight)

	p, ok = a.Position(Key{source.KindNode, 3})
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Weight)
}

func TestSameIDAcrossKinds(t *testing.T) {
	a := load(t,
		node(7, 1, 1),
		node(8, 3, 3),
		way(7, 7),
		relation(7, member(source.KindNode, 8)),
	)
	w, ok := a.Position(Key{source.KindWay, 7})
	require.True(t, ok)
	r, ok := a.Position(Key{source.KindRelation, 7})
	require.True(t, ok)
	assert.InDelta(t, 1, w.Lat, 1e-9)
	assert.InDelta(t, 3, r.Lat, 1e-9)
}

func TestMissingMembers(t *testing.T) {
	a := load(t,
		node(1, 5, 5),
		way(1, 1, 99),
		relation(1, member(source.KindWay, 404), member(source.KindRelation, 405)),
	)
	p, ok := a.Position(Key{source.KindWay, 1})
	require.True(t, ok)
	assert.Equal(t, 1.0, p.Weight)

	_, ok = a.Position(Key{source.KindRelation, 1})
	assert.False(t, ok)
	_, ok = a.Position(Key{source.KindRelation, 2})
	assert.False(t, ok)
}

func TestCycle(t *testing.T) {
	a := load(t,
		node(1, 0, 0),
		node(2, 10, 10),
		relation(1, member(source.KindRelation, 2), member(source.KindNode, 1)),
		relation(2, member(source.KindRelation, 1), member(source.KindNode, 2)),
		relation(3, member(source.KindRelation, 3)),
	)

	got := map[Key]Position{}
	err := a.ResolveAll(context.Background(), func(k Key, p Position) error {
		got[k] = p
		return nil
	})
	require.NoError(t, err)

	// r1 is resolved first; r2 sees r1 in progress and drops it.
	require.Contains(t, got, Key{source.KindRelation, 2})
	assert.Equal(t, 1.0, got[Key{source.KindRelation, 2}].Weight)
	assert.InDelta(t, 10, got[Key{source.KindRelation, 2}].Lat, 1e-9)

	require.Contains(t, got, Key{source.KindRelation, 1})
	assert.Equal(t, 2.0, got[Key{source.KindRelation, 1}].Weight)
	assert.InDelta(t, 5, got[Key{source.KindRelation, 1}].Lat, 1e-9)

	// Self reference with nothing else has no position.
	assert.NotContains(t, got, Key{source.KindRelation, 3})
}

func TestDeepChain(t *testing.T) {
	const depth = 200000
	elems := []source.Element{node(1, 1, 2), relation(1, member(source.KindNode, 1))}
	for i := int64(2); i <= depth; i++ {
		elems = append(elems, relation(i, member(source.KindRelation, i-1)))
	}
	a := load(t, elems...)

	p, ok := a.Position(Key{source.KindRelation, depth})
	require.True(t, ok)
	assert.InDelta(t, 1, p.Lat, 1e-9)
	assert.InDelta(t, 2, p.Lon, 1e-9)
}

func TestResolveAllStopsOnError(t *testing.T) {
	a := load(t, node(1, 0, 0), way(1, 1), way(2, 1))
	calls := 0
	err := a.ResolveAll(context.Background(), func(Key, Position) error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestLoadCancelled(t *testing.T) {
	elems := make([]source.Element, 200000)
	for i := range elems {
		elems[i] = node(int64(i), 0, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Load(ctx, source.NewSliceStream(elems), mapNodes{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteCSVWithNodeIndex(t *testing.T) {
	idx, err := nodeindex.Create(filepath.Join(t.TempDir(), "nodes.idx"), 0)
	require.NoError(t, err)
	defer idx.Close()

	stream := source.NewSliceStream([]source.Element{
		node(1, 43.73, 7.42),
		node(2, 43.75, 7.44),
		way(10, 1, 2),
		relation(20, member(source.KindNode, 404)),
	})
	a, err := Load(context.Background(), stream, idx)
	require.NoError(t, err)

	var buf bytes.Buffer
	rows, err := WriteCSV(context.Background(), &buf, a)
	require.NoError(t, err)
	assert.Equal(t, 1, rows)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "type,id,lat,lon,weight", lines[0])
	assert.Equal(t, "way,10,43.7400000,7.4300000,2", lines[1])
}
