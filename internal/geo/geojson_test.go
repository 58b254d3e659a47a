package geo

import (
	"testing"
	"time"

	"github.com/OCAP2/mapview/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureCollection_PlainAndBuffer(t *testing.T) {
	e := NewEngine(WithSegmentsPerQuadrant(2))
	poly, err := e.Buffer(PointFromPosition(core.Position2D{X: 1, Y: 1}), 0.5)
	require.NoError(t, err)

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	markers := []core.Marker{
		{ID: "a", Kind: core.MarkerPlain, Position: core.Position2D{X: 1, Y: 1}, CreatedAt: created},
		{ID: "b", Kind: core.MarkerBufferResult, Position: core.Position2D{X: 1, Y: 1}, Shape: poly.AsGeometry(), CreatedAt: created},
	}

	data, err := FeatureCollection(markers).MarshalJSON()
	require.NoError(t, err)

	fc, err := geojson.UnmarshalFeatureCollection(data)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	assert.Equal(t, "a", fc.Features[0].ID)
	assert.Equal(t, orb.Point{1, 1}, fc.Features[0].Geometry)
	assert.Equal(t, "plain", fc.Features[0].Properties["kind"])
	assert.Equal(t, "Longitude: 1.0000, Latitude: 1.0000", fc.Features[0].Properties["description"])
	assert.Equal(t, "2024-05-01T12:00:00Z", fc.Features[0].Properties["createdAt"])

	polygon, ok := fc.Features[1].Geometry.(orb.Polygon)
	require.True(t, ok, "buffer marker should export as a polygon")
	require.Len(t, polygon, 1)
	assert.Len(t, polygon[0], 9)
	assert.Equal(t, "buffer-result", fc.Features[1].Properties["kind"])
}

func TestPolygonToOrb_ClosedRing(t *testing.T) {
	e := NewEngine()
	poly, err := e.Buffer(PointFromPosition(core.Position2D{}), 1)
	require.NoError(t, err)

	ring := PolygonToOrb(poly)[0]

	assert.Equal(t, ring[0], ring[len(ring)-1])
	assert.Equal(t, orb.Point{1, 0}, ring[0])
}
