// Package centroid computes weighted mean positions for ways and relations.
//
// A node contributes its own location with weight 1. A way or relation
// averages the positions of its members, each weighted by the number of
// nodes beneath it. Members that are missing from the extract or that close
// a reference cycle are skipped; an element left with zero weight has no
// position.
package centroid

import (
	"context"
	"fmt"

	"github.com/wegman-software/osmpoi-go/internal/coord"
	"github.com/wegman-software/osmpoi-go/internal/source"
)

// Key addresses an element by kind and id. Ways and relations share ids
// with nodes in OSM, so the id alone is not unique.
type Key struct {
	Kind source.Kind
	ID   int64
}

func (k Key) String() string { return fmt.Sprintf("%s/%d", k.Kind, k.ID) }

// NodeLookup resolves node coordinates in decimicro-degrees.
type NodeLookup interface {
	Get(id int64) (lat, lon int64, ok bool)
}

// NodeWriter stores node coordinates while a stream is loaded.
type NodeWriter interface {
	NodeLookup
	Put(id, lat, lon int64) error
}

// Position is a weighted mean location in degrees.
type Position struct {
	Lat    float64
	Lon    float64
	Weight float64
}

// Valid reports whether any node contributed to p.
func (p Position) Valid() bool { return p.Weight > 0 }

const (
	unvisited uint8 = iota
	visiting
	done
)

// Aggregator holds ways and relations in an index-addressed arena and
// resolves their positions on demand. Results are memoized.
type Aggregator struct {
	nodes   NodeLookup
	slots   map[Key]int
	keys    []Key
	members [][]Key
	state   []uint8
	pos     []Position
}

// New returns an empty aggregator reading node coordinates from nodes.
func New(nodes NodeLookup) *Aggregator {
	return &Aggregator{nodes: nodes, slots: make(map[Key]int)}
}

// Add records a way or relation. Nodes are ignored; they are read through
// the NodeLookup. Adding the same key twice keeps the first.
func (a *Aggregator) Add(e source.Element) {
	var members []Key
	switch e.Kind {
	case source.KindWay:
		members = make([]Key, len(e.Nodes))
		for i, ref := range e.Nodes {
			members[i] = Key{Kind: source.KindNode, ID: ref}
		}
	case source.KindRelation:
		members = make([]Key, len(e.Members))
		for i, m := range e.Members {
			members[i] = Key{Kind: m.Kind, ID: m.Ref}
		}
	default:
		return
	}
	k := Key{Kind: e.Kind, ID: e.ID}
	if _, ok := a.slots[k]; ok {
		return
	}
	a.slots[k] = len(a.keys)
	a.keys = append(a.keys, k)
	a.members = append(a.members, members)
	a.state = append(a.state, unvisited)
	a.pos = append(a.pos, Position{})
}

// Len returns the number of ways and relations held.
func (a *Aggregator) Len() int { return len(a.keys) }

// Load reads stream, storing nodes into nodes and every way and relation
// into a new aggregator.
func Load(ctx context.Context, stream source.Stream, nodes NodeWriter) (*Aggregator, error) {
	a := New(nodes)
	var n int
	for stream.Next() {
		n++
		if n%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		e := stream.Element()
		if e.Kind == source.KindNode {
			if err := nodes.Put(e.ID, e.Lat, e.Lon); err != nil {
				return nil, fmt.Errorf("node %d: %w", e.ID, err)
			}
			continue
		}
		a.Add(e)
	}
	if err := stream.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// Position returns the position of k. ok is false when k is unknown or no
// node beneath it could be located.
func (a *Aggregator) Position(k Key) (Position, bool) {
	if k.Kind == source.KindNode {
		return a.node(k.ID)
	}
	slot, found := a.slots[k]
	if !found {
		return Position{}, false
	}
	a.resolve(slot)
	p := a.pos[slot]
	return p, p.Valid()
}

func (a *Aggregator) node(id int64) (Position, bool) {
	lat, lon, ok := a.nodes.Get(id)
	if !ok {
		return Position{}, false
	}
	return Position{Lat: coord.ToDegrees(lat), Lon: coord.ToDegrees(lon), Weight: 1}, true
}

type frame struct {
	slot int
	next int
	sum  Position
}

func (f *frame) add(p Position) {
	f.sum.Lat += p.Lat * p.Weight
	f.sum.Lon += p.Lon * p.Weight
	f.sum.Weight += p.Weight
}

// resolve computes slot and everything beneath it with an explicit stack,
// so deeply nested relations cannot exhaust the goroutine stack.
func (a *Aggregator) resolve(root int) {
	if a.state[root] == done {
		return
	}
	stack := []frame{{slot: root}}
	a.state[root] = visiting

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		members := a.members[top.slot]

		if top.next < len(members) {
			m := members[top.next]
			top.next++

			if m.Kind == source.KindNode {
				if p, ok := a.node(m.ID); ok {
					top.add(p)
				}
				continue
			}
			child, ok := a.slots[m]
			if !ok {
				continue
			}
			switch a.state[child] {
			case done:
				if a.pos[child].Valid() {
					top.add(a.pos[child])
				}
			case unvisited:
				a.state[child] = visiting
				stack = append(stack, frame{slot: child})
			}
			// visiting: cycle, skip
			continue
		}

		p := top.sum
		if p.Weight > 0 {
			p.Lat /= p.Weight
			p.Lon /= p.Weight
		}
		a.pos[top.slot] = p
		a.state[top.slot] = done
		stack = stack[:len(stack)-1]

		if len(stack) > 0 && p.Valid() {
			stack[len(stack)-1].add(p)
		}
	}
}

// ResolveAll resolves every way and relation in insertion order and calls
// fn for those with a position.
func (a *Aggregator) ResolveAll(ctx context.Context, fn func(Key, Position) error) error {
	for slot, k := range a.keys {
		if slot%10000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		a.resolve(slot)
		if !a.pos[slot].Valid() {
			continue
		}
		if err := fn(k, a.pos[slot]); err != nil {
			return err
		}
	}
	return nil
}
