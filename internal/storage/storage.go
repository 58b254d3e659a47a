// Package storage defines where finished analyses and session metadata are kept.
// Markers themselves are never persisted.
package storage

import "github.com/OCAP2/mapview/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// StartSession registers the session the following analyses belong to.
	StartSession(s *core.Session) error

	// RecordAnalysis stores a successful analysis run. It may be buffered;
	// Close persists anything still pending.
	RecordAnalysis(r *core.BufferResult) error
}

// Exporter is an optional interface for backends that write a file on Close.
type Exporter interface {
	ExportedFilePath() string
}

// Pender is an optional interface for backends that buffer writes.
type Pender interface {
	Pending() int
}

// Historian is an optional interface for backends that can list the runs
// recorded for a session, newest first. A limit <= 0 returns all of them.
type Historian interface {
	History(sessionID string, limit int) ([]core.BufferResult, error)
}
