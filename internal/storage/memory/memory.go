// Package memory keeps the analyses of a session in memory and writes them as
// a GeoJSON FeatureCollection when the backend is closed.
package memory

import (
	"sync"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/pkg/core"
)

// Backend stores session analyses in memory and exports them to GeoJSON
type Backend struct {
	cfg     config.MemoryConfig
	session *core.Session
	runs    []core.BufferResult

	lastExportPath string
	mu             sync.RWMutex
}

// New creates a new memory backend
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{cfg: cfg}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close exports the recorded runs. Nothing is written when no session was started.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.session == nil {
		return nil
	}
	return b.exportGeoJSON()
}

// StartSession begins recording a new session, discarding runs of the previous one
func (b *Backend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.session = s
	b.runs = nil
	return nil
}

// RecordAnalysis appends a run
func (b *Backend) RecordAnalysis(r *core.BufferResult) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.runs = append(b.runs, *r)
	return nil
}

// History returns the runs of the current session, newest first
func (b *Backend) History(sessionID string, limit int) ([]core.BufferResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []core.BufferResult
	for i := len(b.runs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		if b.runs[i].SessionID == sessionID {
			out = append(out, b.runs[i])
		}
	}
	return out, nil
}

// ExportedFilePath returns the path of the last export, empty before Close
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
