package storage

import (
	"fmt"
	"log/slog"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/database"
	"github.com/OCAP2/mapview/internal/storage/memory"
	postgresstorage "github.com/OCAP2/mapview/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/mapview/internal/storage/sqlite"
)

// Dependencies holds what the relational backends need to connect.
type Dependencies struct {
	Database *database.Manager
	DB       config.DBConfig
	Logger   *slog.Logger
}

// NewBackend creates a storage backend based on configuration
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	switch cfg.Type {
	case "postgres":
		return postgresstorage.New(postgresstorage.Config{
			DB:            deps.DB,
			FlushInterval: cfg.FlushInterval,
		}, deps.Database, deps.Logger), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpPath:      cfg.SQLite.Path,
			DumpInterval:  cfg.FlushInterval,
			FlushInterval: cfg.FlushInterval,
		}, deps.Database, deps.Logger), nil
	case "memory", "":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
