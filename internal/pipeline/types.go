package pipeline

import (
	"time"

	"github.com/wegman-software/osmpoi-go/internal/bbox"
	"github.com/wegman-software/osmpoi-go/internal/middle"
	"github.com/wegman-software/osmpoi-go/internal/poi"
)

// Stage names a step of a dataset build.
type Stage string

const (
	StageIngest    Stage = "ingest"
	StageWays      Stage = "ways"
	StageRelations Stage = "relations"
	StageRefine    Stage = "refine"
)

// Event reports build advancement to an optional observer.
type Event struct {
	Stage Stage
	// Count is elements ingested, or boxes resolved so far.
	Count   int64
	Skipped int64
	// Sweep and Remaining are set for StageRelations.
	Sweep     int
	Remaining int64
}

// BuildStats summarizes a completed build.
type BuildStats struct {
	Ingest    middle.Counts
	Ways      bbox.WayStats
	Relations bbox.RelationStats
	POIs      poi.RefineStats
	Stages    map[Stage]time.Duration
	Duration  time.Duration
}
