// pkg/core/types.go
package core

import "fmt"

// Position2D is a geographic position in degrees without GIS dependencies
type Position2D struct {
	X float64 `json:"x"` // longitude
	Y float64 `json:"y"` // latitude
}

// String formats the position the way the coordinate readout shows it.
func (p Position2D) String() string {
	return fmt.Sprintf("%.6f,%.6f", p.X, p.Y)
}

// Boundary selects how points lying exactly on a buffer edge are counted
type Boundary string

const (
	// BoundaryExclusive treats edge points as outside (interior only)
	BoundaryExclusive Boundary = "exclusive"
	// BoundaryInclusive treats edge points as inside
	BoundaryInclusive Boundary = "inclusive"
)

// ParseBoundary maps a config string to a Boundary, defaulting to exclusive.
func ParseBoundary(s string) Boundary {
	if Boundary(s) == BoundaryInclusive {
		return BoundaryInclusive
	}
	return BoundaryExclusive
}
