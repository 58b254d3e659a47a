package convert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/OCAP2/mapview/internal/model"
	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

// AnalysisRunToCore converts a stored run back to a core.BufferResult.
// MetricPolygon is left empty.
func AnalysisRunToCore(r model.AnalysisRun) (core.BufferResult, error) {
	var ids []string
	if len(r.Contained) > 0 {
		if err := json.Unmarshal(r.Contained, &ids); err != nil {
			return core.BufferResult{}, fmt.Errorf("decoding contained ids of run %s: %w", r.ID, err)
		}
	}

	var poly geom.Polygon
	switch {
	case r.Polygon.IsEmpty():
	case r.Polygon.Type() == geom.TypePolygon:
		poly, _ = r.Polygon.AsPolygon()
	default:
		return core.BufferResult{}, fmt.Errorf("run %s: stored geometry is %s, not a polygon", r.ID, r.Polygon.Type())
	}

	return core.BufferResult{
		ID:                 r.ID,
		SessionID:          r.SessionID,
		ReferenceID:        r.ReferenceID,
		Reference:          core.Position2D{X: r.ReferenceLon, Y: r.ReferenceLat},
		RadiusKilometers:   r.RadiusKm,
		MetricRadius:       r.MetricRadius,
		Boundary:           core.ParseBoundary(r.Boundary),
		Polygon:            poly,
		ContainedMarkerIDs: ids,
		CandidateCount:     r.CandidateCount,
		CreatedAt:          r.CreatedAt,
		Duration:           time.Duration(r.DurationMs * float64(time.Millisecond)),
	}, nil
}
