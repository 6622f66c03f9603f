// Package source decodes OSM extracts into a flat stream of elements.
package source

import (
	"errors"
	"fmt"
)

// Kind identifies the element type. The numeric values are the codes stored
// in relation_references.reference_type.
type Kind uint8

const (
	KindNode     Kind = 0
	KindWay      Kind = 1
	KindRelation Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindNode:
		return "node"
	case KindWay:
		return "way"
	case KindRelation:
		return "relation"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Member is a typed reference from a relation to another element.
type Member struct {
	Kind Kind
	Ref  int64
}

// Element is one decoded node, way or relation. Lat/Lon are decimicro-degrees
// and only meaningful for nodes; Nodes only for ways; Members only for
// relations.
type Element struct {
	Kind    Kind
	ID      int64
	Lat     int64
	Lon     int64
	Tags    map[string]string
	Nodes   []int64
	Members []Member
}

// Stream yields elements one at a time, in the style of bufio.Scanner.
type Stream interface {
	Next() bool
	Element() Element
	Err() error
}

// Counts tallies elements by kind.
type Counts struct {
	Nodes     int64
	Ways      int64
	Relations int64
}

// Add counts one element of kind k.
func (c *Counts) Add(k Kind) {
	switch k {
	case KindNode:
		c.Nodes++
	case KindWay:
		c.Ways++
	case KindRelation:
		c.Relations++
	}
}

// Total returns the number of elements of all kinds.
func (c Counts) Total() int64 {
	return c.Nodes + c.Ways + c.Relations
}

// ErrDecode marks failures of the underlying extract decoder.
var ErrDecode = errors.New("decode error")

// DecodeError wraps a decoder failure with the number of elements read
// before it occurred.
type DecodeError struct {
	Path     string
	Elements int64
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding %s after %d elements: %v", e.Path, e.Elements, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrDecode }

// SliceStream streams a fixed list of elements.
type SliceStream struct {
	elems []Element
	pos   int
}

// NewSliceStream returns a Stream over elems.
func NewSliceStream(elems []Element) *SliceStream {
	return &SliceStream{elems: elems, pos: -1}
}

func (s *SliceStream) Next() bool {
	if s.pos+1 >= len(s.elems) {
		s.pos = len(s.elems)
		return false
	}
	s.pos++
	return true
}

func (s *SliceStream) Element() Element { return s.elems[s.pos] }

func (s *SliceStream) Err() error { return nil }
