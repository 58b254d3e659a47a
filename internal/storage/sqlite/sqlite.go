// Package sqlitestorage implements the storage.Backend interface using an in-memory
// SQLite database with periodic disk dumps via VACUUM INTO.
// It wraps the GORM backend; the SQLite-specific parts are creating the
// in-memory DB and the dump loop.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/mapview/internal/database"
	gormstorage "github.com/OCAP2/mapview/internal/storage/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	DumpInterval  time.Duration
	DumpPath      string // Path for periodic VACUUM INTO dumps; empty disables dumping
	FlushInterval time.Duration
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	cfg      Config
	dbm      *database.Manager
	log      *slog.Logger
	stopChan chan struct{}
	done     sync.WaitGroup
}

// New creates a new SQLite storage backend. The database is opened by Init.
func New(cfg Config, dbm *database.Manager, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		cfg: cfg,
		dbm: dbm,
		log: logger,
	}
}

// Init opens the in-memory database, initializes the embedded GORM backend
// and starts the dump goroutine.
func (b *Backend) Init() error {
	db, err := b.dbm.GetSqliteDB("")
	if err != nil {
		return fmt.Errorf("failed to create in-memory SQLite DB: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Migrator:      b.dbm,
		Logger:        b.log,
		FlushInterval: b.cfg.FlushInterval,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.stopChan = make(chan struct{})
	if b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.done.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes pending runs and takes a final dump.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	close(b.stopChan)
	b.done.Wait()

	if err := b.Backend.Close(); err != nil {
		return err
	}
	if b.cfg.DumpPath != "" {
		return b.dbm.DumpMemoryToDisk(b.DB(), b.cfg.DumpPath)
	}
	return nil
}

// dumpLoop periodically flushes queued runs and dumps the database to disk.
func (b *Backend) dumpLoop() {
	defer b.done.Done()

	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			if err := b.Flush(); err != nil {
				b.log.Error("Error flushing before dump", "error", err)
			}
			if err := b.dbm.DumpMemoryToDisk(b.DB(), b.cfg.DumpPath); err != nil {
				b.log.Error("Error dumping to disk", "error", err)
			}
		}
	}
}
