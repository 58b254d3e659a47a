package storage_test

import (
	"testing"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/database"
	"github.com/OCAP2/mapview/internal/storage"
	gormstorage "github.com/OCAP2/mapview/internal/storage/gorm"
	"github.com/OCAP2/mapview/internal/storage/memory"
	postgresstorage "github.com/OCAP2/mapview/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/mapview/internal/storage/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBackend(t *testing.T) {
	deps := storage.Dependencies{Database: database.NewManager(zerolog.Nop())}

	b, err := storage.NewBackend(config.StorageConfig{Type: "memory", Memory: config.MemoryConfig{OutputDir: t.TempDir()}}, deps)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, b)
	_, ok := b.(storage.Exporter)
	assert.True(t, ok)

	b, err = storage.NewBackend(config.StorageConfig{Type: "sqlite"}, deps)
	require.NoError(t, err)
	assert.IsType(t, &sqlitestorage.Backend{}, b)

	b, err = storage.NewBackend(config.StorageConfig{Type: "postgres"}, deps)
	require.NoError(t, err)
	assert.IsType(t, &postgresstorage.Backend{}, b)

	_, err = storage.NewBackend(config.StorageConfig{Type: "redis"}, deps)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage type")
}

var (
	_ storage.Backend  = (*memory.Backend)(nil)
	_ storage.Exporter = (*memory.Backend)(nil)
	_ storage.Backend  = (*sqlitestorage.Backend)(nil)
	_ storage.Backend  = (*postgresstorage.Backend)(nil)
	_ storage.Backend  = (*gormstorage.Backend)(nil)
)
