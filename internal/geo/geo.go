package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// GEO POINTS
// Marker positions are kept as EPSG:4326 degrees. Anything that measures
// distance (buffers, containment) happens in EPSG:3857 metres and is projected
// back for display.

// SRIDs understood by Engine
const (
	SRIDGeographic  = 4326
	SRIDWebMercator = 3857
)

// maxMercatorLatitude is the latitude at which Web Mercator's square world ends
const maxMercatorLatitude = 85.05112878

var (
	// ErrInvalidCoordinates is returned when the coordinates are invalid
	ErrInvalidCoordinates = errors.New("invalid coordinates provided")
	// ErrProjection is returned when a geometry cannot be transformed between SRIDs
	ErrProjection = errors.New("projection failed")
	// ErrGeometry is returned when a buffer or containment test cannot be computed
	ErrGeometry = errors.New("geometry operation failed")
)

// Position2DFromString parses a "long,lat" string into a core.Position2D.
// Longitude must lie in [-180, 180] and latitude in [-90, 90].
func Position2DFromString(coords string) (core.Position2D, error) {
	coordsSplit := strings.Split(coords, ",")
	if len(coordsSplit) != 2 {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	long, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[0]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(coordsSplit[1]), 64)
	if err != nil {
		return core.Position2D{}, ErrInvalidCoordinates
	}
	pos := core.Position2D{X: long, Y: lat}
	if err := ValidatePosition(pos); err != nil {
		return core.Position2D{}, err
	}
	return pos, nil
}

// ValidatePosition checks that a position is a finite geographic coordinate
func ValidatePosition(p core.Position2D) error {
	if !isFinite(p.X) || !isFinite(p.Y) {
		return ErrInvalidCoordinates
	}
	if p.X < -180 || p.X > 180 || p.Y < -90 || p.Y > 90 {
		return fmt.Errorf("%w: %s out of range", ErrInvalidCoordinates, p)
	}
	return nil
}

// PointFromPosition creates an XY point from a position
func PointFromPosition(p core.Position2D) geom.Point {
	return geom.NewPoint(
		geom.Coordinates{
			XY:   geom.XY{X: p.X, Y: p.Y},
			Type: geom.DimXY,
		},
	)
}

// MercatorScale returns the Web Mercator scale factor at the given latitude.
// A ground distance d near that latitude spans d*MercatorScale(lat) projected metres.
func MercatorScale(latitude float64) float64 {
	return 1 / math.Cos(latitude*math.Pi/180)
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
