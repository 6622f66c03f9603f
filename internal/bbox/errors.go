package bbox

import (
	"errors"
	"fmt"

	"github.com/wegman-software/osmpoi-go/internal/source"
)

var (
	// ErrUnresolvedDependency is returned when relation sweeps stall with
	// unresolved rows left, which happens only on relation cycles.
	ErrUnresolvedDependency = errors.New("unresolved relation dependency")

	// ErrDegenerateGeometry is returned under PolicyFail when an element has
	// no resolvable member coordinates.
	ErrDegenerateGeometry = errors.New("degenerate geometry")
)

// maxReportedIDs caps the ids carried by errors.
const maxReportedIDs = 100

// UnresolvedDependencyError lists relations left with dep=0 after a sweep
// made no progress.
type UnresolvedDependencyError struct {
	IDs       []int64 // first ids, ascending
	Remaining int64
}

func (e *UnresolvedDependencyError) Error() string {
	return fmt.Sprintf("%d relations never resolved (dependency cycle), first ids %v", e.Remaining, e.IDs)
}

func (e *UnresolvedDependencyError) Is(target error) bool { return target == ErrUnresolvedDependency }

// DegenerateGeometryError lists elements without any resolvable members.
type DegenerateGeometryError struct {
	Kind  source.Kind
	IDs   []int64
	Count int64
}

func (e *DegenerateGeometryError) Error() string {
	return fmt.Sprintf("%d %ss have no resolvable member coordinates, first ids %v", e.Count, e.Kind, e.IDs)
}

func (e *DegenerateGeometryError) Is(target error) bool { return target == ErrDegenerateGeometry }

// Policy decides what happens to degenerate elements.
type Policy int

const (
	// PolicyFail aborts the build. It is the zero value.
	PolicyFail Policy = iota
	// PolicySkip deletes degenerate elements and their membership edges so
	// that dependents treat them as absent.
	PolicySkip
)

// ParsePolicy maps a config value to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail", "":
		return PolicyFail, nil
	case "skip":
		return PolicySkip, nil
	}
	return 0, fmt.Errorf("unknown degenerate policy %q", s)
}

func (p Policy) String() string {
	if p == PolicyFail {
		return "fail"
	}
	return "skip"
}
