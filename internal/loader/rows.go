package loader

import (
	"context"

	"github.com/wegman-software/osmpoi-go/internal/poi"
)

// rowSource implements pgx.CopyFromSource over a Producer running in its own
// goroutine. Cancelling ctx stops the producer.
type rowSource struct {
	rows    chan []any
	done    chan struct{}
	err     error
	current []any
}

func newRowSource(ctx context.Context, src Producer) *rowSource {
	r := &rowSource{
		rows: make(chan []any, 10000),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		defer close(r.rows)
		r.err = src(ctx, func(p poi.POI) error {
			select {
			case r.rows <- []any{int16(p.Kind), p.Lat, p.Lon, p.DLat, p.DLon, p.Tags}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return r
}

func (r *rowSource) Next() bool {
	row, ok := <-r.rows
	if !ok {
		return false
	}
	r.current = row
	return true
}

func (r *rowSource) Values() ([]any, error) {
	return r.current, nil
}

// Err reports the producer error once the rows are drained.
func (r *rowSource) Err() error {
	<-r.done
	return r.err
}
