package analysis

import (
	"errors"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRadius is returned when the radius is missing, not a finite number, or not positive
	ErrInvalidRadius = errors.New("invalid radius")
	// ErrNoReferencePoint is returned when no plain marker can serve as the buffer center
	ErrNoReferencePoint = errors.New("no reference point")
	// ErrProjectionFailure is returned when a geometry cannot be reprojected
	ErrProjectionFailure = errors.New("projection failure")
	// ErrGeometryFailure is returned when buffering or containment fails
	ErrGeometryFailure = errors.New("geometry operation failure")
	// ErrInProgress is returned when a run is triggered while another is outstanding
	ErrInProgress = errors.New("analysis already in progress")
	// ErrDiscarded is returned when a run's context ends before its result is committed
	ErrDiscarded = errors.New("analysis discarded")
)

// ParseRadius parses user input as a radius in kilometres. The value must be
// finite, positive and, when maxKm > 0, no larger than maxKm.
func ParseRadius(input string, maxKm float64) (float64, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return 0, ErrInvalidRadius
	}
	km, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidRadius
	}
	if err := checkRadius(km, maxKm); err != nil {
		return 0, err
	}
	return km, nil
}

func checkRadius(km, maxKm float64) error {
	if math.IsNaN(km) || math.IsInf(km, 0) || km <= 0 {
		return ErrInvalidRadius
	}
	if maxKm > 0 && km > maxKm {
		return ErrInvalidRadius
	}
	return nil
}

// Message maps an analysis error to the text shown to the user
func Message(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidRadius):
		return "enter a valid distance"
	case errors.Is(err, ErrNoReferencePoint):
		return "place a marker first"
	case errors.Is(err, ErrInProgress):
		return "an analysis is already running"
	default:
		return "analysis could not complete"
	}
}
