package loader

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wegman-software/osmpoi-go/internal/poi"
)

func produce(pois []poi.POI, err error) Producer {
	return func(ctx context.Context, fn func(poi.POI) error) error {
		for _, p := range pois {
			if e := fn(p); e != nil {
				return e
			}
		}
		return err
	}
}

func TestRowSource(t *testing.T) {
	pois := []poi.POI{
		{Kind: poi.Point, Lat: 1, Lon: 2, Tags: `{"name":"a"}`},
		{Kind: poi.Area, Lat: 3, Lon: 4, DLat: 5, DLon: 6, Tags: `{"name":"b"}`},
	}
	rs := newRowSource(context.Background(), produce(pois, nil))

	var got [][]any
	for rs.Next() {
		v, err := rs.Values()
		require.NoError(t, err)
		got = append(got, v)
	}
	require.NoError(t, rs.Err())
	assert.Equal(t, [][]any{
		{int16(0), int64(1), int64(2), int64(0), int64(0), `{"name":"a"}`},
		{int16(1), int64(3), int64(4), int64(5), int64(6), `{"name":"b"}`},
	}, got)
}

func TestRowSourceProducerError(t *testing.T) {
	boom := errors.New("boom")
	rs := newRowSource(context.Background(), produce([]poi.POI{{}}, boom))
	n := 0
	for rs.Next() {
		n++
	}
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, rs.Err(), boom)
}

func TestRowSourceCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pois := make([]poi.POI, 50000)
	rs := newRowSource(ctx, produce(pois, nil))

	// Consume one row, then abandon the copy.
	require.True(t, rs.Next())
	cancel()
	for rs.Next() {
	}
	assert.ErrorIs(t, rs.Err(), context.Canceled)
}
