package geo

import (
	"time"

	"github.com/OCAP2/mapview/pkg/core"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	geom "github.com/peterstace/simplefeatures/geom"
)

// PolygonToOrb converts a simplefeatures polygon into an orb polygon
func PolygonToOrb(p geom.Polygon) orb.Polygon {
	if p.IsEmpty() {
		return nil
	}
	rings := make(orb.Polygon, 0, 1+p.NumInteriorRings())
	rings = append(rings, ringToOrb(p.ExteriorRing()))
	for i := 0; i < p.NumInteriorRings(); i++ {
		rings = append(rings, ringToOrb(p.InteriorRingN(i)))
	}
	return rings
}

func ringToOrb(ls geom.LineString) orb.Ring {
	seq := ls.Coordinates()
	ring := make(orb.Ring, seq.Length())
	for i := range ring {
		xy := seq.GetXY(i)
		ring[i] = orb.Point{xy.X, xy.Y}
	}
	return ring
}

// MarkerFeature converts a marker into a GeoJSON feature. Buffer markers are
// exported as their polygon, plain markers as points.
func MarkerFeature(m core.Marker) *geojson.Feature {
	var g orb.Geometry = orb.Point{m.Position.X, m.Position.Y}
	if m.IsBuffer() && m.Shape.Type() == geom.TypePolygon {
		poly, _ := m.Shape.AsPolygon()
		g = PolygonToOrb(poly)
	}

	f := geojson.NewFeature(g)
	f.ID = m.ID
	f.Properties["kind"] = string(m.Kind)
	f.Properties["description"] = m.Describe()
	f.Properties["createdAt"] = m.CreatedAt.UTC().Format(time.RFC3339)
	return f
}

// FeatureCollection builds a collection of the given markers, in order
func FeatureCollection(markers []core.Marker) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, m := range markers {
		fc.Append(MarkerFeature(m))
	}
	return fc
}

// ResultFeature converts an analysis result into a GeoJSON polygon feature
func ResultFeature(r *core.BufferResult) *geojson.Feature {
	f := geojson.NewFeature(PolygonToOrb(r.Polygon))
	f.ID = r.ID
	f.Properties["sessionId"] = r.SessionID
	f.Properties["referenceId"] = r.ReferenceID
	f.Properties["radiusKm"] = r.RadiusKilometers
	f.Properties["boundary"] = string(r.Boundary)
	f.Properties["contained"] = r.ContainedMarkerIDs
	f.Properties["count"] = r.Count()
	f.Properties["createdAt"] = r.CreatedAt.UTC().Format(time.RFC3339)
	return f
}
