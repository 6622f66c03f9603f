// Package nodeindex is a file-backed, memory-mapped table of node
// coordinates addressed directly by node id.
package nodeindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Each entry is a presence flag followed by lat and lon as int32
// decimicro-degrees. The flag keeps (0, 0) a valid location.
const entrySize = 9

// MinCapacity is the smallest number of entries a writable index maps.
const MinCapacity = 1 << 16

// ErrOutOfRange is returned for negative node ids and coordinates that do
// not fit in an entry.
var ErrOutOfRange = errors.New("node index: value out of range")

// Index maps node id -> (lat, lon). A writable index grows its backing file
// on demand; the file is sparse so unused ranges cost no disk.
type Index struct {
	file     *os.File
	data     mmap.MMap
	capacity int64
	writable bool
}

// Create truncates path and maps room for capacity entries.
func Create(path string, capacity int64) (*Index, error) {
	if capacity < MinCapacity {
		capacity = MinCapacity
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create node index: %w", err)
	}
	idx := &Index{file: f, writable: true}
	if err := idx.remap(capacity); err != nil {
		f.Close()
		return nil, err
	}
	return idx, nil
}

// Open maps an existing index read-only.
func Open(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open node index: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat node index: %w", err)
	}
	if info.Size() == 0 || info.Size()%entrySize != 0 {
		f.Close()
		return nil, fmt.Errorf("node index %s: invalid size %d", path, info.Size())
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to mmap node index: %w", err)
	}
	return &Index{file: f, data: data, capacity: info.Size() / entrySize}, nil
}

func (x *Index) remap(capacity int64) error {
	if x.data != nil {
		if err := x.data.Unmap(); err != nil {
			return fmt.Errorf("failed to unmap node index: %w", err)
		}
		x.data = nil
	}
	if err := x.file.Truncate(capacity * entrySize); err != nil {
		return fmt.Errorf("failed to size node index: %w", err)
	}
	data, err := mmap.Map(x.file, mmap.RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to mmap node index: %w", err)
	}
	x.data = data
	x.capacity = capacity
	return nil
}

// Capacity is the number of addressable entries currently mapped.
func (x *Index) Capacity() int64 { return x.capacity }

// Put stores the coordinates of node id, growing the mapping if needed.
func (x *Index) Put(id, lat, lon int64) error {
	if !x.writable {
		return fmt.Errorf("node index is read-only")
	}
	if id < 0 || lat < math.MinInt32 || lat > math.MaxInt32 || lon < math.MinInt32 || lon > math.MaxInt32 {
		return fmt.Errorf("%w: node %d (%d, %d)", ErrOutOfRange, id, lat, lon)
	}
	if id >= x.capacity {
		grow := x.capacity * 2
		for grow <= id {
			grow *= 2
		}
		if err := x.remap(grow); err != nil {
			return err
		}
	}
	off := id * entrySize
	x.data[off] = 1
	binary.LittleEndian.PutUint32(x.data[off+1:], uint32(int32(lat)))
	binary.LittleEndian.PutUint32(x.data[off+5:], uint32(int32(lon)))
	return nil
}

// Get returns the coordinates of node id; ok is false if it was never stored.
func (x *Index) Get(id int64) (lat, lon int64, ok bool) {
	if id < 0 || id >= x.capacity {
		return 0, 0, false
	}
	off := id * entrySize
	if x.data[off] == 0 {
		return 0, 0, false
	}
	lat = int64(int32(binary.LittleEndian.Uint32(x.data[off+1:])))
	lon = int64(int32(binary.LittleEndian.Uint32(x.data[off+5:])))
	return lat, lon, true
}

// Flush writes dirty pages back to the file.
func (x *Index) Flush() error {
	if !x.writable {
		return nil
	}
	return x.data.Flush()
}

// Close flushes, unmaps and closes the file.
func (x *Index) Close() error {
	var errs []error
	if x.data != nil {
		if x.writable {
			errs = append(errs, x.data.Flush())
		}
		errs = append(errs, x.data.Unmap())
		x.data = nil
	}
	errs = append(errs, x.file.Close())
	return errors.Join(errs...)
}
