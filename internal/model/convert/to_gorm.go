// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"encoding/json"
	"fmt"

	"github.com/OCAP2/mapview/internal/model"
	"github.com/OCAP2/mapview/pkg/core"
	"gorm.io/datatypes"
)

// idsToJSON converts marker ids to datatypes.JSON for DB storage.
func idsToJSON(ids []string) (datatypes.JSON, error) {
	if len(ids) == 0 {
		return datatypes.JSON("[]"), nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("encoding contained ids: %w", err)
	}
	return datatypes.JSON(data), nil
}

// CoreToSession converts a core.Session to a GORM model.Session.
func CoreToSession(s core.Session) model.Session {
	return model.Session{
		ID:        s.ID,
		Name:      s.Name,
		StartTime: s.StartTime,
	}
}

// CoreToAnalysisRun converts a core.BufferResult to a GORM model.AnalysisRun.
// The metric polygon is not stored; it can be rebuilt from the geographic one.
func CoreToAnalysisRun(r core.BufferResult) (model.AnalysisRun, error) {
	contained, err := idsToJSON(r.ContainedMarkerIDs)
	if err != nil {
		return model.AnalysisRun{}, err
	}

	return model.AnalysisRun{
		ID:             r.ID,
		CreatedAt:      r.CreatedAt,
		SessionID:      r.SessionID,
		ReferenceID:    r.ReferenceID,
		ReferenceLon:   r.Reference.X,
		ReferenceLat:   r.Reference.Y,
		RadiusKm:       r.RadiusKilometers,
		MetricRadius:   r.MetricRadius,
		Boundary:       string(r.Boundary),
		Polygon:        r.Polygon.AsGeometry(),
		Contained:      contained,
		ContainedCount: r.Count(),
		CandidateCount: r.CandidateCount,
		DurationMs:     float64(r.Duration.Microseconds()) / 1000,
	}, nil
}
