// Package analysis implements the buffer containment analysis: buffer a
// reference marker in a metric projection and find the markers inside it.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/OCAP2/mapview/internal/cache"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Geometry projects, buffers and tests geometries
type Geometry interface {
	Ready(ctx context.Context) error
	Project(g geom.Geometry, from, to int) (geom.Geometry, error)
	Buffer(center geom.Point, radius float64) (geom.Polygon, error)
	Contains(poly geom.Polygon, pt geom.Point) (bool, error)
}

// Markers is the marker collection the analysis reads from and writes its
// buffer into
type Markers interface {
	Add(m core.Marker) string
	Remove(id string) bool
	Get(id string) (core.Marker, bool)
	List(kinds ...core.MarkerKind) []core.Marker
	LatestPlain() (core.Marker, bool)
}

// Config holds analysis settings
type Config struct {
	MaxRadiusKm float64
	// ScaleCorrection widens the projected radius by the Mercator scale at the
	// reference latitude so the buffer covers the requested ground distance.
	ScaleCorrection bool
	Boundary        core.Boundary
	MetricSRID      int
}

// Dependencies holds the collaborators of an Analyzer
type Dependencies struct {
	Geometry  Geometry
	Markers   Markers
	Logger    *slog.Logger
	SessionID string
}

// Analyzer runs buffer analyses against a marker collection. Only one run
// may be outstanding at a time.
type Analyzer struct {
	geometry  Geometry
	markers   Markers
	logger    *slog.Logger
	sessionID string
	cfg       Config

	projections *cache.ProjectionCache
	busy        atomic.Bool
	now         func() time.Time

	runs      metric.Int64Counter
	duration  metric.Float64Histogram
	contained metric.Int64Histogram
}

// New creates an Analyzer. Metrics use the global OTel meter (no-op if not configured).
func New(deps Dependencies, cfg Config) (*Analyzer, error) {
	if deps.Geometry == nil || deps.Markers == nil {
		return nil, errors.New("analysis: geometry and markers are required")
	}
	if cfg.MetricSRID == 0 {
		cfg.MetricSRID = geo.SRIDWebMercator
	}
	if cfg.Boundary == "" {
		cfg.Boundary = core.BoundaryExclusive
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	a := &Analyzer{
		geometry:    deps.Geometry,
		markers:     deps.Markers,
		logger:      logger,
		sessionID:   deps.SessionID,
		cfg:         cfg,
		projections: cache.NewProjectionCache(),
		now:         time.Now,
	}

	m := meter()
	var err error

	a.runs, err = m.Int64Counter(
		"analysis.runs",
		metric.WithDescription("Buffer analyses by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating runs counter: %w", err)
	}

	a.duration, err = m.Float64Histogram(
		"analysis.duration",
		metric.WithDescription("Buffer analysis duration"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating duration histogram: %w", err)
	}

	a.contained, err = m.Int64Histogram(
		"analysis.contained",
		metric.WithDescription("Markers found inside the buffer per run"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating contained histogram: %w", err)
	}

	return a, nil
}

// Run buffers the reference marker by the requested radius and returns the
// markers found inside. On success the new buffer replaces the live one.
// Validation errors leave the collection untouched; projection and geometry
// errors leave no buffer displayed.
func (a *Analyzer) Run(ctx context.Context, req core.BufferRequest) (*core.BufferResult, error) {
	if !a.busy.CompareAndSwap(false, true) {
		a.runs.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "busy")))
		return nil, ErrInProgress
	}
	defer a.busy.Store(false)

	start := a.now()
	result, err := a.run(ctx, req)
	elapsed := a.now().Sub(start)

	outcome := outcomeOf(err)
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	a.runs.Add(ctx, 1, attrs)
	a.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)

	if err != nil {
		switch outcome {
		case "rejected", "discarded":
			a.logger.Warn("Buffer analysis rejected", "radiusKm", req.RadiusKilometers, "reference", req.ReferenceID, "error", err)
		default:
			a.logger.Error("Buffer analysis failed", "radiusKm", req.RadiusKilometers, "reference", req.ReferenceID, "error", err)
		}
		return nil, err
	}

	result.Duration = elapsed
	a.contained.Record(ctx, int64(result.Count()))
	a.logger.Info("Buffer analysis complete",
		"buffer", result.ID,
		"reference", result.ReferenceID,
		"radiusKm", result.RadiusKilometers,
		"candidates", result.CandidateCount,
		"contained", result.Count(),
		"duration", elapsed)
	return result, nil
}

func (a *Analyzer) run(ctx context.Context, req core.BufferRequest) (*core.BufferResult, error) {
	if err := checkRadius(req.RadiusKilometers, a.cfg.MaxRadiusKm); err != nil {
		return nil, fmt.Errorf("%w: %v km", err, req.RadiusKilometers)
	}

	ref, err := a.reference(req.ReferenceID)
	if err != nil {
		return nil, err
	}

	var candidates []core.Marker
	for _, m := range a.markers.List(core.MarkerPlain) {
		if m.ID != ref.ID {
			candidates = append(candidates, m)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscarded, err)
	}
	if err := a.geometry.Ready(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w", ErrDiscarded, err)
		}
		return nil, a.abort(fmt.Errorf("%w: %w", ErrProjectionFailure, err))
	}

	center, err := a.metricPoint(ref)
	if err != nil {
		return nil, a.abort(err)
	}

	radius := req.RadiusKilometers * 1000
	if a.cfg.ScaleCorrection && a.cfg.MetricSRID == geo.SRIDWebMercator {
		radius *= geo.MercatorScale(ref.Position.Y)
	}

	metricPoly, err := a.geometry.Buffer(center, radius)
	if err != nil {
		return nil, a.abort(fmt.Errorf("%w: %w", ErrGeometryFailure, err))
	}

	back, err := a.geometry.Project(metricPoly.AsGeometry(), a.cfg.MetricSRID, geo.SRIDGeographic)
	if err != nil {
		return nil, a.abort(fmt.Errorf("%w: %w", ErrProjectionFailure, err))
	}
	if back.Type() != geom.TypePolygon {
		return nil, a.abort(fmt.Errorf("%w: buffer projected to %s", ErrGeometryFailure, back.Type()))
	}

	contained := make([]string, 0, len(candidates))
	for _, c := range candidates {
		pt, err := a.metricPoint(c)
		if errors.Is(err, geo.ErrProjection) {
			// outside the metric CRS, so never inside the buffer
			a.logger.Debug("Skipping marker outside projection bounds", "marker", c.ID, "error", err)
			continue
		}
		if err != nil {
			return nil, a.abort(err)
		}
		inside, err := a.geometry.Contains(metricPoly, pt)
		if err != nil {
			return nil, a.abort(fmt.Errorf("%w: marker %s: %w", ErrGeometryFailure, c.ID, err))
		}
		if inside {
			contained = append(contained, c.ID)
		}
	}

	// superseded or cancelled runs must not touch the live buffer
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDiscarded, err)
	}

	a.clearBuffers()
	createdAt := a.now()
	id := a.markers.Add(core.Marker{
		Kind:      core.MarkerBufferResult,
		Position:  ref.Position,
		Shape:     back,
		CreatedAt: createdAt,
	})

	keep := make(map[string]struct{}, len(candidates)+1)
	keep[ref.ID] = struct{}{}
	for _, c := range candidates {
		keep[c.ID] = struct{}{}
	}
	a.projections.Retain(keep)

	backPoly, _ := back.AsPolygon()
	return &core.BufferResult{
		ID:                 id,
		SessionID:          a.sessionID,
		ReferenceID:        ref.ID,
		Reference:          ref.Position,
		RadiusKilometers:   req.RadiusKilometers,
		MetricRadius:       radius,
		Boundary:           a.cfg.Boundary,
		Polygon:            backPoly,
		MetricPolygon:      metricPoly,
		ContainedMarkerIDs: contained,
		CandidateCount:     len(candidates),
		CreatedAt:          createdAt,
	}, nil
}

// Clear removes the live buffer, returning how many buffer markers were removed
func (a *Analyzer) Clear() int {
	return a.clearBuffers()
}

func (a *Analyzer) reference(id string) (core.Marker, error) {
	if id == "" {
		m, ok := a.markers.LatestPlain()
		if !ok {
			return core.Marker{}, ErrNoReferencePoint
		}
		return m, nil
	}
	m, ok := a.markers.Get(id)
	if !ok {
		return core.Marker{}, fmt.Errorf("%w: marker %s not found", ErrNoReferencePoint, id)
	}
	if m.IsBuffer() {
		return core.Marker{}, fmt.Errorf("%w: marker %s is a buffer", ErrNoReferencePoint, id)
	}
	return m, nil
}

func (a *Analyzer) metricPoint(m core.Marker) (geom.Point, error) {
	if pt, ok := a.projections.Get(m.ID, m.Position); ok {
		return pt, nil
	}
	g, err := a.geometry.Project(geo.PointFromPosition(m.Position).AsGeometry(), geo.SRIDGeographic, a.cfg.MetricSRID)
	if err != nil {
		return geom.Point{}, fmt.Errorf("%w: marker %s: %w", ErrProjectionFailure, m.ID, err)
	}
	if g.Type() != geom.TypePoint {
		return geom.Point{}, fmt.Errorf("%w: marker %s projected to %s", ErrProjectionFailure, m.ID, g.Type())
	}
	pt, _ := g.AsPoint()
	a.projections.Set(m.ID, m.Position, pt)
	return pt, nil
}

// abort clears the live buffer so a failed run never leaves a stale polygon
// on the map, then returns err.
func (a *Analyzer) abort(err error) error {
	if n := a.clearBuffers(); n > 0 {
		a.logger.Debug("Cleared previous buffer after failed analysis", "removed", n)
	}
	return err
}

func (a *Analyzer) clearBuffers() int {
	removed := 0
	for _, m := range a.markers.List(core.MarkerBufferResult) {
		if a.markers.Remove(m.ID) {
			removed++
		}
	}
	return removed
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInvalidRadius), errors.Is(err, ErrNoReferencePoint):
		return "rejected"
	case errors.Is(err, ErrDiscarded):
		return "discarded"
	default:
		return "failed"
	}
}
