// Package postgres implements the storage.Backend interface on PostgreSQL.
package postgres

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/database"
	gormstorage "github.com/OCAP2/mapview/internal/storage/gorm"
)

// Config holds configuration for the PostgreSQL storage backend.
type Config struct {
	DB            config.DBConfig
	FlushInterval time.Duration
}

// Backend wraps the GORM backend with a PostgreSQL connection.
type Backend struct {
	*gormstorage.Backend
	cfg Config
	dbm *database.Manager
	log *slog.Logger
}

// New creates a PostgreSQL storage backend. The connection is opened by Init.
func New(cfg Config, dbm *database.Manager, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{cfg: cfg, dbm: dbm, log: logger}
}

// Init connects, migrates the schema and starts the writer goroutine.
func (b *Backend) Init() error {
	db, err := b.dbm.GetPostgresDB(b.cfg.DB)
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:            db,
		Migrator:      b.dbm,
		Logger:        b.log,
		FlushInterval: b.cfg.FlushInterval,
	})
	return b.Backend.Init()
}

// Close writes pending runs and closes the connection pool.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	sqlDB, err := b.DB().DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}
