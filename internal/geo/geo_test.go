package geo

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

func newReadyEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := NewEngine(opts...)
	if err := e.Ready(context.Background()); err != nil {
		t.Fatalf("engine not ready: %v", err)
	}
	return e
}

func projectPosition(e *Engine, p core.Position2D, to int) (geom.Point, error) {
	g, err := e.Project(PointFromPosition(p).AsGeometry(), SRIDGeographic, to)
	if err != nil {
		return geom.Point{}, err
	}
	pt, _ := g.AsPoint()
	return pt, nil
}

func positionOf(pt geom.Point) (core.Position2D, bool) {
	xy, ok := pt.XY()
	return core.Position2D{X: xy.X, Y: xy.Y}, ok
}

func TestPosition2DFromString_Valid(t *testing.T) {
	pos, err := Position2DFromString("2.3522, 48.8566")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pos.X != 2.3522 {
		t.Errorf("expected X=2.3522, got %f", pos.X)
	}
	if pos.Y != 48.8566 {
		t.Errorf("expected Y=48.8566, got %f", pos.Y)
	}
}

func TestPosition2DFromString_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"single component", "100.5"},
		{"three components", "1,2,3"},
		{"bad longitude", "abc,20"},
		{"bad latitude", "20,xyz"},
		{"longitude out of range", "181,0"},
		{"latitude out of range", "0,-90.5"},
		{"nan", "NaN,0"},
		{"inf", "0,Inf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Position2DFromString(tt.input)
			if !errors.Is(err, ErrInvalidCoordinates) {
				t.Errorf("expected ErrInvalidCoordinates for %q, got %v", tt.input, err)
			}
		})
	}
}

func TestEngine_ProjectBeforeReady(t *testing.T) {
	e := NewEngine()

	_, err := projectPosition(e, core.Position2D{X: 1, Y: 1}, SRIDWebMercator)

	if !errors.Is(err, ErrProjection) {
		t.Errorf("expected ErrProjection before Ready, got %v", err)
	}
}

func TestEngine_ReadyCancelledContext(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := e.Ready(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_ProjectOrigin(t *testing.T) {
	e := newReadyEngine(t)

	pt, err := projectPosition(e, core.Position2D{}, SRIDWebMercator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, ok := pt.Coordinates()
	if !ok {
		t.Fatal("expected valid coordinates")
	}
	if math.Abs(coords.X) > 1e-9 || math.Abs(coords.Y) > 1e-9 {
		t.Errorf("expected origin to map to origin, got %f,%f", coords.X, coords.Y)
	}
}

func TestEngine_ProjectAntimeridian(t *testing.T) {
	e := newReadyEngine(t)

	pt, err := projectPosition(e, core.Position2D{X: 180, Y: 0}, SRIDWebMercator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	coords, _ := pt.Coordinates()
	if math.Abs(coords.X-20037508.342789244) > 1e-3 {
		t.Errorf("expected X=20037508.34 at the antimeridian, got %f", coords.X)
	}
}

func TestEngine_RoundTrip(t *testing.T) {
	e := newReadyEngine(t)

	positions := []core.Position2D{
		{X: 0, Y: 0},
		{X: 2.3522, Y: 48.8566},
		{X: -122.4194, Y: 37.7749},
		{X: 151.2093, Y: -33.8688},
		{X: -179.9, Y: 84.9},
	}

	for _, pos := range positions {
		metric, err := projectPosition(e, pos, SRIDWebMercator)
		if err != nil {
			t.Fatalf("projecting %s: %v", pos, err)
		}
		back, err := e.Project(metric.AsGeometry(), SRIDWebMercator, SRIDGeographic)
		if err != nil {
			t.Fatalf("unprojecting %s: %v", pos, err)
		}
		backPt, _ := back.AsPoint()
		got, ok := positionOf(backPt)
		if !ok {
			t.Fatalf("empty point for %s", pos)
		}
		if math.Abs(got.X-pos.X) > 1e-6 || math.Abs(got.Y-pos.Y) > 1e-6 {
			t.Errorf("round trip drifted: %s -> %s", pos, got)
		}
	}
}

func TestEngine_ProjectBeyondMercatorBounds(t *testing.T) {
	e := newReadyEngine(t)

	_, err := projectPosition(e, core.Position2D{X: 10, Y: 89}, SRIDWebMercator)

	if !errors.Is(err, ErrProjection) {
		t.Errorf("expected ErrProjection near the pole, got %v", err)
	}
}

func TestEngine_ProjectUnsupportedSRID(t *testing.T) {
	e := newReadyEngine(t)

	_, err := e.Project(PointFromPosition(core.Position2D{X: 1, Y: 1}).AsGeometry(), SRIDGeographic, 32632)

	if !errors.Is(err, ErrProjection) {
		t.Errorf("expected ErrProjection for unsupported SRID, got %v", err)
	}
}

func TestEngine_ProjectSameSRIDIsIdentity(t *testing.T) {
	e := NewEngine()
	in := PointFromPosition(core.Position2D{X: 5, Y: 6}).AsGeometry()

	out, err := e.Project(in, SRIDGeographic, SRIDGeographic)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	outPt, _ := out.AsPoint()
	got, _ := positionOf(outPt)
	if got.X != 5 || got.Y != 6 {
		t.Errorf("expected 5,6 got %s", got)
	}
}

func TestEngine_BufferShape(t *testing.T) {
	e := NewEngine(WithSegmentsPerQuadrant(4))
	center := PointFromPosition(core.Position2D{X: 100, Y: 200})

	poly, err := e.Buffer(center, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seq := poly.ExteriorRing().Coordinates()
	if seq.Length() != 17 {
		t.Fatalf("expected 17 ring coordinates, got %d", seq.Length())
	}
	first := seq.GetXY(0)
	if first.X != 110 || first.Y != 200 {
		t.Errorf("expected first vertex due east at 110,200, got %f,%f", first.X, first.Y)
	}
	if last := seq.GetXY(seq.Length() - 1); last != first {
		t.Errorf("ring not closed: %v != %v", last, first)
	}
	for i := 0; i < seq.Length(); i++ {
		xy := seq.GetXY(i)
		if d := math.Hypot(xy.X-100, xy.Y-200); math.Abs(d-10) > 1e-9 {
			t.Errorf("vertex %d at distance %f, expected 10", i, d)
		}
	}
}

func TestEngine_BufferInvalidRadius(t *testing.T) {
	e := NewEngine()
	center := PointFromPosition(core.Position2D{})

	for _, r := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if _, err := e.Buffer(center, r); !errors.Is(err, ErrGeometry) {
			t.Errorf("radius %f: expected ErrGeometry, got %v", r, err)
		}
	}
}

func TestEngine_BufferEmptyCenter(t *testing.T) {
	e := NewEngine()

	_, err := e.Buffer(geom.NewEmptyPoint(geom.DimXY), 10)

	if !errors.Is(err, ErrGeometry) {
		t.Errorf("expected ErrGeometry for empty center, got %v", err)
	}
}

func TestEngine_ContainsInteriorAndExterior(t *testing.T) {
	e := NewEngine()
	poly, err := e.Buffer(PointFromPosition(core.Position2D{}), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	inside, err := e.Contains(poly, PointFromPosition(core.Position2D{X: 3, Y: 4}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !inside {
		t.Error("expected 3,4 inside a radius 10 buffer")
	}

	outside, err := e.Contains(poly, PointFromPosition(core.Position2D{X: 8, Y: 8}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outside {
		t.Error("expected 8,8 outside a radius 10 buffer")
	}
}

func TestEngine_ContainsBoundary(t *testing.T) {
	vertex := PointFromPosition(core.Position2D{X: 10, Y: 0})

	exclusive := NewEngine()
	poly, err := exclusive.Buffer(PointFromPosition(core.Position2D{}), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ok, err := exclusive.Contains(poly, vertex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("exclusive boundary: vertex should not be contained")
	}

	inclusive := NewEngine(WithBoundary(core.BoundaryInclusive))
	ok, err = inclusive.Contains(poly, vertex)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Error("inclusive boundary: vertex should be contained")
	}
}

func TestMercatorScale(t *testing.T) {
	if s := MercatorScale(0); s != 1 {
		t.Errorf("expected scale 1 at the equator, got %f", s)
	}
	if s := MercatorScale(60); math.Abs(s-2) > 1e-9 {
		t.Errorf("expected scale 2 at 60 degrees, got %f", s)
	}
}

func TestEngine_ProjectPolygonAcrossAntimeridian(t *testing.T) {
	e := newReadyEngine(t)
	center, err := projectPosition(e, core.Position2D{X: 179.95, Y: 0}, SRIDWebMercator)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	metric, err := e.Buffer(center, 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	back, err := e.Project(metric.AsGeometry(), SRIDWebMercator, SRIDGeographic)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	backPoly, _ := back.AsPolygon()
	seq := backPoly.ExteriorRing().Coordinates()
	for i := 1; i < seq.Length(); i++ {
		if d := math.Abs(seq.GetXY(i).X - seq.GetXY(i-1).X); d > 1 {
			t.Errorf("longitude jumps by %f between vertices %d and %d", d, i-1, i)
		}
	}
	lo, hi, _ := back.Envelope().MinMaxXYs()
	if hi.X <= 180 || lo.X < 179 {
		t.Errorf("expected ring east of 179 reaching past 180, got [%f, %f]", lo.X, hi.X)
	}
}

func TestEngine_ContainsAcrossAntimeridian(t *testing.T) {
	e := newReadyEngine(t)
	center, _ := projectPosition(e, core.Position2D{X: 179.95, Y: 0}, SRIDWebMercator)
	poly, err := e.Buffer(center, 50000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		pos  core.Position2D
		want bool
	}{
		{core.Position2D{X: -179.95, Y: 0}, true},
		{core.Position2D{X: -179, Y: 0}, false},
		{core.Position2D{X: 179.9, Y: 0}, true},
	}
	for _, tt := range tests {
		pt, err := projectPosition(e, tt.pos, SRIDWebMercator)
		if err != nil {
			t.Fatalf("projecting %s: %v", tt.pos, err)
		}
		got, err := e.Contains(poly, pt)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("Contains(%s) = %v, want %v", tt.pos, got, tt.want)
		}
	}
}
