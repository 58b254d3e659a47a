package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/OCAP2/mapview/internal/config"
	"github.com/OCAP2/mapview/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDSN(t *testing.T) {
	dsn := PostgresDSN(config.DBConfig{
		Host: "db", Port: "5433", Username: "u", Password: "p", Database: "mapview",
	})
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=mapview sslmode=disable", dsn)
}

func TestGetSqliteDB_MemoryIsolated(t *testing.T) {
	m := NewManager(zerolog.Nop())

	a, err := m.GetSqliteDB("")
	require.NoError(t, err)
	b, err := m.GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, m.Migrate(a))
	require.NoError(t, a.Create(&model.Session{ID: "s-1", Name: "one"}).Error)

	assert.False(t, b.Migrator().HasTable(&model.Session{}), "in-memory databases must not be shared")
}

func TestMigrate(t *testing.T) {
	m := NewManager(zerolog.Nop())
	db, err := m.GetSqliteDB("")
	require.NoError(t, err)

	require.NoError(t, m.Migrate(db))
	assert.True(t, db.Migrator().HasTable(&model.Session{}))
	assert.True(t, db.Migrator().HasTable(&model.AnalysisRun{}))
}

func TestDumpMemoryToDisk(t *testing.T) {
	m := NewManager(zerolog.Nop())
	db, err := m.GetSqliteDB("")
	require.NoError(t, err)
	require.NoError(t, m.Migrate(db))
	require.NoError(t, db.Create(&model.Session{ID: "s-1", Name: "one"}).Error)

	path := filepath.Join(t.TempDir(), "dump.db")
	require.NoError(t, os.WriteFile(path, []byte("stale"), 0644))

	require.NoError(t, m.DumpMemoryToDisk(db, path))

	disk, err := m.GetSqliteDB(path)
	require.NoError(t, err)
	var count int64
	require.NoError(t, disk.Model(&model.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestDumpMemoryToDisk_Errors(t *testing.T) {
	m := NewManager(zerolog.Nop())
	db, err := m.GetSqliteDB("")
	require.NoError(t, err)

	assert.Error(t, m.DumpMemoryToDisk(db, ""))
	assert.Error(t, m.DumpMemoryToDisk(db, "it's.db"))
}
