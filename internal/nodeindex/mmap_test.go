package nodeindex

import (
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutGet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.idx")
	idx, err := Create(path, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(MinCapacity), idx.Capacity())

	require.NoError(t, idx.Put(1, 437300000, 74200000))
	require.NoError(t, idx.Put(2, 0, 0))
	require.NoError(t, idx.Put(3, -900000000, -1800000000))

	lat, lon, ok := idx.Get(1)
	assert.True(t, ok)
	assert.Equal(t, int64(437300000), lat)
	assert.Equal(t, int64(74200000), lon)

	// (0, 0) is a real location, not an absent entry.
	_, _, ok = idx.Get(2)
	assert.True(t, ok)

	lat, lon, ok = idx.Get(3)
	assert.True(t, ok)
	assert.Equal(t, int64(-900000000), lat)
	assert.Equal(t, int64(-1800000000), lon)

	_, _, ok = idx.Get(4)
	assert.False(t, ok)
	_, _, ok = idx.Get(-1)
	assert.False(t, ok)
	_, _, ok = idx.Get(1 << 40)
	assert.False(t, ok)

	require.NoError(t, idx.Close())
}

func TestGrow(t *testing.T) {
	idx, err := Create(filepath.Join(t.TempDir(), "nodes.idx"), 0)
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Put(5, 10, 20))
	far := int64(MinCapacity*3 + 7)
	require.NoError(t, idx.Put(far, 30, 40))
	assert.Greater(t, idx.Capacity(), far)

	lat, lon, ok := idx.Get(5)
	require.True(t, ok)
	assert.Equal(t, []int64{10, 20}, []int64{lat, lon})
	lat, lon, ok = idx.Get(far)
	require.True(t, ok)
	assert.Equal(t, []int64{30, 40}, []int64{lat, lon})
}

func TestOutOfRange(t *testing.T) {
	idx, err := Create(filepath.Join(t.TempDir(), "nodes.idx"), 0)
	require.NoError(t, err)
	defer idx.Close()

	assert.ErrorIs(t, idx.Put(-1, 0, 0), ErrOutOfRange)
	assert.ErrorIs(t, idx.Put(1, math.MaxInt32+1, 0), ErrOutOfRange)
}

func TestReopenReadOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.idx")
	idx, err := Create(path, 0)
	require.NoError(t, err)
	require.NoError(t, idx.Put(42, 1, 2))
	require.NoError(t, idx.Flush())
	require.NoError(t, idx.Close())

	ro, err := Open(path)
	require.NoError(t, err)
	defer ro.Close()

	lat, lon, ok := ro.Get(42)
	require.True(t, ok)
	assert.Equal(t, []int64{1, 2}, []int64{lat, lon})
	assert.Error(t, ro.Put(43, 1, 2))
	assert.NoError(t, ro.Flush())
}
