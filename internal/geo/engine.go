package geo

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"
)

// DefaultSegmentsPerQuadrant matches the usual GEOS buffer resolution
const DefaultSegmentsPerQuadrant = 8

// WebMercatorHalfWidth is the easting of the antimeridian in EPSG:3857 metres
const WebMercatorHalfWidth = math.Pi * 6378137

type transformFunc = func(a, b, c float64) (float64, float64, float64)

type sridPair struct {
	from, to int
}

// Option configures an Engine
type Option func(*Engine)

// WithSegmentsPerQuadrant sets how many segments approximate a quarter circle
func WithSegmentsPerQuadrant(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.segments = n
		}
	}
}

// WithBoundary selects whether edge points count as contained
func WithBoundary(b core.Boundary) Option {
	return func(e *Engine) {
		e.boundary = b
	}
}

// Engine projects, buffers and tests geometries. Transforms are built on the
// first call to Ready; Project fails until then.
type Engine struct {
	segments int
	boundary core.Boundary

	once       sync.Once
	mu         sync.RWMutex
	transforms map[sridPair]transformFunc
	initErr    error
}

// NewEngine creates an Engine with the given options
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		segments: DefaultSegmentsPerQuadrant,
		boundary: core.BoundaryExclusive,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Boundary returns the containment semantics in use
func (e *Engine) Boundary() core.Boundary {
	return e.boundary
}

// Ready loads the EPSG transforms. It is safe to call repeatedly.
func (e *Engine) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.once.Do(e.load)
	if e.initErr != nil {
		return fmt.Errorf("%w: %v", ErrProjection, e.initErr)
	}
	return nil
}

func (e *Engine) load() {
	epsg := wgs84.EPSG()
	transforms := map[sridPair]transformFunc{
		{SRIDGeographic, SRIDWebMercator}: epsg.Transform(SRIDGeographic, SRIDWebMercator),
		{SRIDWebMercator, SRIDGeographic}: epsg.Transform(SRIDWebMercator, SRIDGeographic),
	}

	// the origin maps to itself in both directions
	for pair, f := range transforms {
		x, y, _ := f(0, 0, 0)
		if !isFinite(x) || !isFinite(y) || math.Abs(x) > 1e-6 || math.Abs(y) > 1e-6 {
			e.initErr = fmt.Errorf("transform %d->%d failed self-check", pair.from, pair.to)
			return
		}
	}

	e.mu.Lock()
	e.transforms = transforms
	e.mu.Unlock()
}

func (e *Engine) transform(from, to int) (transformFunc, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.transforms == nil {
		return nil, fmt.Errorf("%w: engine not initialized", ErrProjection)
	}
	f, ok := e.transforms[sridPair{from, to}]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported transform %d->%d", ErrProjection, from, to)
	}
	return f, nil
}

// Project transforms a point or polygon from one SRID to another
func (e *Engine) Project(g geom.Geometry, from, to int) (geom.Geometry, error) {
	if from == to {
		return g, nil
	}
	f, err := e.transform(from, to)
	if err != nil {
		return geom.Geometry{}, err
	}

	xy := func(x, y float64) (float64, float64, error) {
		if from == SRIDGeographic && to == SRIDWebMercator && math.Abs(y) > maxMercatorLatitude {
			return 0, 0, fmt.Errorf("%w: latitude %f outside Web Mercator bounds", ErrProjection, y)
		}
		px, py, _ := f(x, y, 0)
		if !isFinite(px) || !isFinite(py) {
			return 0, 0, fmt.Errorf("%w: non-finite result for %f,%f", ErrProjection, x, y)
		}
		if from == SRIDWebMercator && to == SRIDGeographic {
			px = unwrapLongitude(px, x)
		}
		return px, py, nil
	}

	switch g.Type() {
	case geom.TypePoint:
		src, _ := g.AsPoint()
		coords, ok := src.Coordinates()
		if !ok {
			return geom.Geometry{}, fmt.Errorf("%w: empty point", ErrProjection)
		}
		x, y, err := xy(coords.X, coords.Y)
		if err != nil {
			return geom.Geometry{}, err
		}
		pt := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Type: geom.DimXY})
		return pt.AsGeometry(), nil

	case geom.TypePolygon:
		poly, _ := g.AsPolygon()
		rings := make([]geom.LineString, 0, 1+poly.NumInteriorRings())
		ring, err := projectRing(poly.ExteriorRing(), xy)
		if err != nil {
			return geom.Geometry{}, err
		}
		rings = append(rings, ring)
		for i := 0; i < poly.NumInteriorRings(); i++ {
			ring, err := projectRing(poly.InteriorRingN(i), xy)
			if err != nil {
				return geom.Geometry{}, err
			}
			rings = append(rings, ring)
		}
		return geom.NewPolygon(rings).AsGeometry(), nil

	default:
		return geom.Geometry{}, fmt.Errorf("%w: unsupported geometry type %s", ErrProjection, g.Type())
	}
}

func projectRing(ls geom.LineString, xy func(x, y float64) (float64, float64, error)) (geom.LineString, error) {
	seq := ls.Coordinates()
	flat := make([]float64, 0, seq.Length()*2)
	for i := 0; i < seq.Length(); i++ {
		p := seq.GetXY(i)
		x, y, err := xy(p.X, p.Y)
		if err != nil {
			return geom.LineString{}, err
		}
		flat = append(flat, x, y)
	}
	return geom.NewLineString(geom.NewSequence(flat, geom.DimXY)), nil
}

// unwrapLongitude shifts lon by whole turns so it matches the easting it came
// from. Rings past the antimeridian keep continuous longitudes beyond ±180
// instead of jumping to the far side of the map.
func unwrapLongitude(lon, easting float64) float64 {
	unwrapped := easting / WebMercatorHalfWidth * 180
	return lon + 360*math.Round((unwrapped-lon)/360)
}

// Buffer returns a closed regular polygon approximating a circle of the given
// radius around center, with 4*segmentsPerQuadrant vertices. The first vertex
// lies due east of center.
func (e *Engine) Buffer(center geom.Point, radius float64) (geom.Polygon, error) {
	if !isFinite(radius) || radius <= 0 {
		return geom.Polygon{}, fmt.Errorf("%w: radius %f", ErrGeometry, radius)
	}
	coords, ok := center.Coordinates()
	if !ok {
		return geom.Polygon{}, fmt.Errorf("%w: empty center point", ErrGeometry)
	}

	n := 4 * e.segments
	flat := make([]float64, 0, 2*(n+1))
	for i := 0; i < n; i++ {
		angle := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat,
			coords.X+radius*math.Cos(angle),
			coords.Y+radius*math.Sin(angle),
		)
	}
	flat = append(flat, flat[0], flat[1])

	ring := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	poly := geom.NewPolygon([]geom.LineString{ring})
	if err := poly.Validate(); err != nil {
		return geom.Polygon{}, fmt.Errorf("%w: %v", ErrGeometry, err)
	}
	return poly, nil
}

// Contains tests pt against the polygon. Under BoundaryExclusive a point on
// the polygon's edge is not contained; under BoundaryInclusive it is.
// A metric polygon reaching past the antimeridian is also tested against the
// copy of pt one world width over.
func (e *Engine) Contains(poly geom.Polygon, pt geom.Point) (bool, error) {
	for _, p := range worldCopies(poly, pt) {
		var (
			ok  bool
			err error
		)
		if e.boundary == core.BoundaryInclusive {
			ok, err = geom.Covers(poly.AsGeometry(), p.AsGeometry())
		} else {
			ok, err = geom.Contains(poly.AsGeometry(), p.AsGeometry())
		}
		if err != nil {
			return false, fmt.Errorf("%w: %v", ErrGeometry, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func worldCopies(poly geom.Polygon, pt geom.Point) []geom.Point {
	copies := []geom.Point{pt}
	xy, ok := pt.XY()
	if !ok {
		return copies
	}
	lo, hi, ok := poly.Envelope().MinMaxXYs()
	if !ok {
		return copies
	}
	shift := func(dx float64) geom.Point {
		return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: xy.X + dx, Y: xy.Y}, Type: geom.DimXY})
	}
	if hi.X > WebMercatorHalfWidth {
		copies = append(copies, shift(2*WebMercatorHalfWidth))
	}
	if lo.X < -WebMercatorHalfWidth {
		copies = append(copies, shift(-2*WebMercatorHalfWidth))
	}
	return copies
}
