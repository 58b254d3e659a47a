package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

// DatabaseModels lists the tables migrated by the relational storage backends
var DatabaseModels = []interface{}{
	&Session{},
	&AnalysisRun{},
}

// Session is one map session
type Session struct {
	ID        string        `json:"id" gorm:"primaryKey;size:36"`
	Name      string        `json:"name" gorm:"size:127"`
	StartTime time.Time     `json:"startTime" gorm:"index:idx_session_start_time"`
	Runs      []AnalysisRun `json:"-"`
}

func (*Session) TableName() string {
	return "sessions"
}

// AnalysisRun is one successful buffer analysis
type AnalysisRun struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CreatedAt time.Time `json:"createdAt" gorm:"index:idx_analysis_created_at"`
	SessionID string    `json:"sessionId" gorm:"size:36;index:idx_analysis_session_id"`
	Session   Session   `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`

	ReferenceID  string  `json:"referenceId" gorm:"size:36"`
	ReferenceLon float64 `json:"referenceLon"`
	ReferenceLat float64 `json:"referenceLat"`

	RadiusKm     float64 `json:"radiusKm"`
	MetricRadius float64 `json:"metricRadius"` // buffer radius in projected metres, after scale correction
	Boundary     string  `json:"boundary" gorm:"size:16"`

	Polygon geom.Geometry `json:"-"` // geographic buffer polygon (EPSG:4326), stored as WKB

	Contained      datatypes.JSON `json:"contained"` // ids of the markers inside the buffer
	ContainedCount int            `json:"containedCount"`
	CandidateCount int            `json:"candidateCount"`
	DurationMs     float64        `json:"durationMs"`
}

func (*AnalysisRun) TableName() string {
	return "analysis_runs"
}
