// Package gormstorage implements storage.Backend on a GORM database. Sessions
// are written immediately; analysis runs are queued and written in batches by
// a background goroutine.
package gormstorage

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/mapview/internal/model"
	"github.com/OCAP2/mapview/internal/model/convert"
	"github.com/OCAP2/mapview/internal/queue"
	"github.com/OCAP2/mapview/pkg/core"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultFlushInterval is used when Dependencies.FlushInterval is zero.
	DefaultFlushInterval = 30 * time.Second
	// DefaultMaxPending is used when Dependencies.MaxPending is zero.
	DefaultMaxPending = 10000
)

// Migrator prepares the schema before the backend starts writing.
type Migrator interface {
	Migrate(db *gorm.DB) error
}

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB            *gorm.DB
	Migrator      Migrator
	Logger        *slog.Logger
	FlushInterval time.Duration
	// MaxPending caps queued runs while the database is unreachable.
	MaxPending int
}

// Backend implements storage.Backend using GORM with queue-based batch writes.
type Backend struct {
	deps Dependencies
	runs *queue.Queue[model.AnalysisRun]

	stopChan chan struct{}
	done     sync.WaitGroup
	flushMu  sync.Mutex
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.MaxPending <= 0 {
		deps.MaxPending = DefaultMaxPending
	}
	return &Backend{
		deps: deps,
		runs: queue.NewBounded[model.AnalysisRun](deps.MaxPending),
	}
}

// DB returns the underlying database handle.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm storage: no database")
	}
	if b.deps.Migrator != nil {
		if err := b.deps.Migrator.Migrate(b.deps.DB); err != nil {
			return fmt.Errorf("failed to setup DB: %w", err)
		}
	}

	b.stopChan = make(chan struct{})
	b.done.Add(1)
	go b.writeLoop()
	return nil
}

// Close stops the writer goroutine and writes pending runs.
func (b *Backend) Close() error {
	if b.stopChan != nil {
		close(b.stopChan)
		b.done.Wait()
		b.stopChan = nil
	}
	return b.Flush()
}

// StartSession inserts the session row, keeping an existing row with the same id.
func (b *Backend) StartSession(s *core.Session) error {
	row := convert.CoreToSession(*s)
	if err := b.deps.DB.Where(model.Session{ID: row.ID}).FirstOrCreate(&row).Error; err != nil {
		return fmt.Errorf("failed to insert session %s: %w", s.ID, err)
	}
	return nil
}

// RecordAnalysis converts and queues a finished run.
func (b *Backend) RecordAnalysis(r *core.BufferResult) error {
	row, err := convert.CoreToAnalysisRun(*r)
	if err != nil {
		return err
	}
	b.runs.Push(row)
	return nil
}

// Pending returns the number of queued runs.
func (b *Backend) Pending() int {
	return b.runs.Len()
}

// Flush writes all queued runs. Runs of a failed batch go back to the front
// of the queue.
func (b *Backend) Flush() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.runs.Empty() {
		return nil
	}
	batch := b.runs.Drain()

	start := time.Now()
	err := b.deps.DB.Omit(clause.Associations).CreateInBatches(&batch, 100).Error
	if err != nil {
		b.runs.Requeue(batch...)
		return fmt.Errorf("failed to write %d analysis runs: %w", len(batch), err)
	}

	b.deps.Logger.Debug("Wrote analysis runs", "count", len(batch), "duration", time.Since(start))
	return nil
}

// History returns the stored runs of a session, newest first. Pending runs
// are flushed before the query.
func (b *Backend) History(sessionID string, limit int) ([]core.BufferResult, error) {
	if err := b.Flush(); err != nil {
		return nil, err
	}
	var rows []model.AnalysisRun
	q := b.deps.DB.Where("session_id = ?", sessionID).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query analysis runs: %w", err)
	}

	out := make([]core.BufferResult, 0, len(rows))
	for _, row := range rows {
		r, err := convert.AnalysisRunToCore(row)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (b *Backend) writeLoop() {
	defer b.done.Done()

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.deps.Logger.Error("Failed to flush analysis runs", "error", err,
					"pending", b.runs.Len(), "dropped", b.runs.Dropped())
			}
		}
	}
}
