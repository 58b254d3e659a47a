// pkg/core/analysis.go
package core

import (
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
)

// BufferRequest is the validated input of one analysis run.
// An empty ReferenceID selects the most recently placed plain marker.
type BufferRequest struct {
	ReferenceID      string
	RadiusKilometers float64
}

// BufferResult is the output of a successful analysis run
type BufferResult struct {
	ID                 string // id of the buffer-result marker
	SessionID          string
	ReferenceID        string
	Reference          Position2D
	RadiusKilometers   float64
	MetricRadius       float64 // buffer radius in projected units
	Boundary           Boundary
	Polygon            geom.Polygon // EPSG:4326
	MetricPolygon      geom.Polygon // EPSG:3857
	ContainedMarkerIDs []string     // insertion order
	CandidateCount     int
	CreatedAt          time.Time
	Duration           time.Duration
}

// Count returns the number of contained markers
func (r *BufferResult) Count() int {
	return len(r.ContainedMarkerIDs)
}

// Report returns the message shown to the user after a run
func (r *BufferResult) Report() string {
	return fmt.Sprintf("%d marker(s) found inside the buffer.", r.Count())
}

// Contains reports whether the marker id was found inside the buffer
func (r *BufferResult) Contains(id string) bool {
	for _, c := range r.ContainedMarkerIDs {
		if c == id {
			return true
		}
	}
	return false
}
