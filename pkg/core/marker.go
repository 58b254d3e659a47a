// pkg/core/marker.go
package core

import (
	"fmt"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
)

// MarkerKind distinguishes user-placed pins from analysis output
type MarkerKind string

const (
	MarkerPlain        MarkerKind = "plain"
	MarkerBufferResult MarkerKind = "buffer-result"
)

// Marker is a point annotation placed in the current map session.
// Buffer-result markers carry their polygon in Shape; Position is then the
// buffer's reference point.
type Marker struct {
	ID        string
	Kind      MarkerKind
	Position  Position2D
	Shape     geom.Geometry
	CreatedAt time.Time
}

// IsBuffer reports whether the marker is an analysis polygon
func (m Marker) IsBuffer() bool {
	return m.Kind == MarkerBufferResult
}

// Describe returns the pop-up text for the marker
func (m Marker) Describe() string {
	if m.IsBuffer() {
		return fmt.Sprintf("Buffer around Longitude: %.4f, Latitude: %.4f", m.Position.X, m.Position.Y)
	}
	return fmt.Sprintf("Longitude: %.4f, Latitude: %.4f", m.Position.X, m.Position.Y)
}
