package main

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/database"
	"github.com/OCAP2/mapview/internal/influx"
	"github.com/OCAP2/mapview/internal/storage"
	"github.com/OCAP2/mapview/pkg/core"
	"github.com/rs/zerolog"
)

// initStorage creates the configured backend and registers the session with
// it. Failures leave storageBackend nil; the session still runs.
func initStorage(current *core.Session, dbm *database.Manager) {
	storageCfg := config.GetStorageConfig()

	backend, err := storage.NewBackend(storageCfg, storage.Dependencies{
		Database: dbm,
		DB:       config.GetDBConfig(),
		Logger:   Logger,
	})
	if err != nil {
		Logger.Error("Failed to create storage backend", "error", err)
		return
	}
	if err := backend.Init(); err != nil {
		Logger.Error("Failed to initialize storage backend", "error", err, "type", storageCfg.Type)
		return
	}
	if err := backend.StartSession(current); err != nil {
		Logger.Error("Failed to register session with storage", "error", err)
		_ = backend.Close()
		return
	}

	storageBackend = backend
	Logger.Info("Storage backend initialized", "type", storageCfg.Type)
}

// initInflux connects the analysis metrics writer. A disabled or unreachable
// server is not fatal.
func initInflux(ctx context.Context, log zerolog.Logger) {
	backupPath := filepath.Join(config.GetString("logsDir"), "influx_backup.lp.gz")
	m := influx.NewManager(config.GetInfluxConfig(), log, backupPath)

	err := m.Connect(ctx)
	switch {
	case errors.Is(err, influx.ErrDisabled):
		Logger.Debug("InfluxDB disabled")
		return
	case err != nil:
		Logger.Error("Failed to connect to InfluxDB", "error", err)
		return
	}

	influxManager = m
	Logger.Info("InfluxDB connected", "backup", !m.IsValid)
}

func closeOutputs() {
	if storageBackend != nil {
		if err := storageBackend.Close(); err != nil {
			Logger.Error("Failed to close storage backend", "error", err)
		}
		if exp, ok := storageBackend.(storage.Exporter); ok && exp.ExportedFilePath() != "" {
			Logger.Info("Session exported", "path", exp.ExportedFilePath())
		}
	}
	if influxManager != nil {
		if err := influxManager.Close(); err != nil {
			Logger.Error("Failed to close InfluxDB", "error", err)
		}
	}
}
