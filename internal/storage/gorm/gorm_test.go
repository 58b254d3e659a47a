package gormstorage

import (
	"testing"
	"time"

	"github.com/OCAP2/mapview/internal/database"
	"github.com/OCAP2/mapview/internal/model"
	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestBackend creates a Backend on a private in-memory SQLite database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	dbm := database.NewManager(zerolog.Nop())
	db, err := dbm.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Migrator: dbm, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func testSession() *core.Session {
	return &core.Session{ID: "s-1", Name: "survey", StartTime: time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)}
}

func testResult(id string, created time.Time, contained ...string) *core.BufferResult {
	ring := geom.NewLineString(geom.NewSequence([]float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, geom.DimXY))
	return &core.BufferResult{
		ID:                 id,
		SessionID:          "s-1",
		ReferenceID:        "m-1",
		Reference:          core.Position2D{X: 0.5, Y: 0.5},
		RadiusKilometers:   10,
		Boundary:           core.BoundaryExclusive,
		Polygon:            geom.NewPolygon([]geom.LineString{ring}),
		ContainedMarkerIDs: contained,
		CreatedAt:          created,
	}
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	require.Error(t, b.Init())
}

func TestInit_DefaultsFlushInterval(t *testing.T) {
	b := New(Dependencies{})
	assert.Equal(t, DefaultFlushInterval, b.deps.FlushInterval)
}

func TestStartSession_Idempotent(t *testing.T) {
	b := newTestBackend(t)

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.StartSession(testSession()))

	var count int64
	require.NoError(t, b.DB().Model(&model.Session{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestRecordAnalysis_QueuesUntilFlush(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	require.NoError(t, b.RecordAnalysis(testResult("buf-1", time.Now(), "m-2")))
	assert.Equal(t, 1, b.Pending())

	var count int64
	require.NoError(t, b.DB().Model(&model.AnalysisRun{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)

	require.NoError(t, b.Flush())
	assert.Equal(t, 0, b.Pending())
	require.NoError(t, b.DB().Model(&model.AnalysisRun{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestFlush_Empty(t *testing.T) {
	b := newTestBackend(t)
	assert.NoError(t, b.Flush())
}

func TestHistory(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))

	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	require.NoError(t, b.RecordAnalysis(testResult("buf-1", base.Add(time.Minute), "m-2")))
	require.NoError(t, b.RecordAnalysis(testResult("buf-2", base.Add(2*time.Minute), "m-2", "m-3")))
	require.NoError(t, b.Flush())

	runs, err := b.History("s-1", 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "buf-2", runs[0].ID)
	assert.Equal(t, []string{"m-2", "m-3"}, runs[0].ContainedMarkerIDs)
	assert.Equal(t, "buf-1", runs[1].ID)
	assert.Equal(t, testResult("x", base).Polygon.AsText(), runs[1].Polygon.AsText())

	runs, err = b.History("s-1", 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	runs, err = b.History("other", 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestHistory_IncludesPendingRuns(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordAnalysis(testResult("buf-1", time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC))))
	require.Equal(t, 1, b.Pending())

	runs, err := b.History("s-1", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	assert.Equal(t, 0, b.Pending())
}

func TestClose_FlushesPending(t *testing.T) {
	dbm := database.NewManager(zerolog.Nop())
	db, err := dbm.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Migrator: dbm, FlushInterval: time.Hour})
	require.NoError(t, b.Init())
	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordAnalysis(testResult("buf-1", time.Now())))

	require.NoError(t, b.Close())

	var count int64
	require.NoError(t, db.Model(&model.AnalysisRun{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestWriteLoop_FlushesPeriodically(t *testing.T) {
	dbm := database.NewManager(zerolog.Nop())
	db, err := dbm.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, Migrator: dbm, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.StartSession(testSession()))
	require.NoError(t, b.RecordAnalysis(testResult("buf-1", time.Now())))

	assert.Eventually(t, func() bool { return b.Pending() == 0 }, time.Second, 5*time.Millisecond)
}
