// Package handlers implements the map session commands served through the dispatcher.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/OCAP2/mapview/internal/analysis"
	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/geo"
	"github.com/OCAP2/mapview/internal/marker"
	"github.com/OCAP2/mapview/internal/session"
	"github.com/OCAP2/mapview/internal/storage"
	"github.com/OCAP2/mapview/pkg/core"
)

// Commands served by the Service
const (
	CmdMarkerAdd      = ":MARKER:ADD:"
	CmdMarkerDelete   = ":MARKER:DELETE:"
	CmdMarkerMove     = ":MARKER:MOVE:"
	CmdMarkerList     = ":MARKER:LIST:"
	CmdCoords         = ":COORDS:"
	CmdBufferAnalyze  = ":BUFFER:ANALYZE:"
	CmdBufferClear    = ":BUFFER:CLEAR:"
	CmdSessionExport  = ":SESSION:EXPORT:"
	CmdSessionStatus  = ":SESSION:STATUS:"
	CmdSessionHistory = ":SESSION:HISTORY:"
	CmdRecordAnalysis = ":RECORD:ANALYSIS:"
)

// Internal reports whether command is raised by the service itself and must
// not be accepted from user input.
func Internal(command string) bool {
	return command == CmdRecordAnalysis
}

// ErrBadArgs is returned when a command is called with the wrong arguments
var ErrBadArgs = errors.New("bad arguments")

// AnalysisWriter receives finished analyses, e.g. the influx manager
type AnalysisWriter interface {
	WriteAnalysis(r *core.BufferResult) error
}

// Analyzer runs buffer analyses
type Analyzer interface {
	Run(ctx context.Context, req core.BufferRequest) (*core.BufferResult, error)
	Clear() int
}

// StatusReporter renders the session status, e.g. the monitor service
type StatusReporter interface {
	Lines() []string
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Markers     *marker.Collection
	Analyzer    Analyzer
	Session     *session.Context
	Storage     storage.Backend // optional
	Metrics     AnalysisWriter  // optional
	Status      StatusReporter  // optional
	Logger      *slog.Logger
	MaxRadiusKm float64
}

// Service provides handler methods for the session commands
type Service struct {
	deps       Dependencies
	dispatcher *dispatcher.Dispatcher
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// Register installs the session commands on d. Analyses are exclusive and
// their persistence runs on a buffered queue.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	s.dispatcher = d

	d.Register(CmdMarkerAdd, s.handle(s.AddMarker), dispatcher.Logged())
	d.Register(CmdMarkerDelete, s.handle(s.DeleteMarker), dispatcher.Logged())
	d.Register(CmdMarkerMove, s.handle(s.MoveMarker), dispatcher.Logged())
	d.Register(CmdMarkerList, s.handle(s.ListMarkers))
	d.Register(CmdCoords, s.handle(s.Coordinates))
	d.Register(CmdBufferAnalyze, s.AnalyzeBuffer, dispatcher.Exclusive(), dispatcher.Logged())
	d.Register(CmdBufferClear, s.handle(s.ClearBuffer), dispatcher.Logged())
	d.Register(CmdSessionExport, s.handle(s.ExportSession), dispatcher.Logged())
	if s.deps.Status != nil {
		d.Register(CmdSessionStatus, s.handle(s.SessionStatus))
	}
	if _, ok := s.deps.Storage.(storage.Historian); ok {
		d.Register(CmdSessionHistory, s.handle(s.SessionHistory))
	}
	d.Register(CmdRecordAnalysis, s.RecordAnalysis, dispatcher.Buffered(64), dispatcher.Blocking())
}

func (s *Service) handle(fn func(args []string) (any, error)) dispatcher.HandlerFunc {
	return func(_ context.Context, e dispatcher.Event) (any, error) {
		return fn(e.Args)
	}
}

// AddMarker places a plain marker. Args: "lon,lat".
func (s *Service) AddMarker(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected lon,lat", ErrBadArgs)
	}
	pos, err := geo.Position2DFromString(args[0])
	if err != nil {
		return nil, err
	}
	id := s.deps.Markers.AddPlain(pos)
	s.deps.Logger.Debug("Marker added", "marker", id, "position", pos.String())
	return id, nil
}

// DeleteMarker removes a marker by id. Deleting the buffer marker clears the buffer.
func (s *Service) DeleteMarker(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected marker id", ErrBadArgs)
	}
	if !s.deps.Markers.Remove(args[0]) {
		return nil, fmt.Errorf("%w: %s", marker.ErrNotFound, args[0])
	}
	return "ok", nil
}

// MoveMarker moves a plain marker. Args: id, "lon,lat".
func (s *Service) MoveMarker(args []string) (any, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%w: expected marker id and lon,lat", ErrBadArgs)
	}
	pos, err := geo.Position2DFromString(args[1])
	if err != nil {
		return nil, err
	}
	if err := s.deps.Markers.Move(args[0], pos); err != nil {
		return nil, err
	}
	return "ok", nil
}

// ListMarkers returns one line per marker: id, kind and pop-up description.
// An optional argument filters by kind.
func (s *Service) ListMarkers(args []string) (any, error) {
	var kinds []core.MarkerKind
	for _, a := range args {
		switch k := core.MarkerKind(a); k {
		case core.MarkerPlain, core.MarkerBufferResult:
			kinds = append(kinds, k)
		default:
			return nil, fmt.Errorf("%w: unknown marker kind %q", ErrBadArgs, a)
		}
	}

	markers := s.deps.Markers.List(kinds...)
	lines := make([]string, 0, len(markers))
	for _, m := range markers {
		lines = append(lines, fmt.Sprintf("%s %s %s", m.ID, m.Kind, m.Describe()))
	}
	return lines, nil
}

// Coordinates echoes a map position in the readout format.
func (s *Service) Coordinates(args []string) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%w: expected lon,lat", ErrBadArgs)
	}
	pos, err := geo.Position2DFromString(args[0])
	if err != nil {
		return nil, err
	}
	return fmt.Sprintf("Longitude: %.6f, Latitude: %.6f", pos.X, pos.Y), nil
}

// AnalyzeBuffer runs a buffer analysis. Args: radius km, optional reference id.
// On success the result is queued for storage and the report is returned.
func (s *Service) AnalyzeBuffer(ctx context.Context, e dispatcher.Event) (any, error) {
	if len(e.Args) == 0 || len(e.Args) > 2 {
		return nil, analysis.ErrInvalidRadius
	}
	km, err := analysis.ParseRadius(e.Args[0], s.deps.MaxRadiusKm)
	if err != nil {
		return nil, err
	}
	req := core.BufferRequest{RadiusKilometers: km}
	if len(e.Args) == 2 {
		req.ReferenceID = strings.TrimSpace(e.Args[1])
	}

	result, err := s.deps.Analyzer.Run(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.dispatcher != nil {
		if _, err := s.dispatcher.Dispatch(ctx, dispatcher.Event{Command: CmdRecordAnalysis, Payload: result}); err != nil {
			s.deps.Logger.Warn("Analysis not recorded", "buffer", result.ID, "error", err)
		}
	}
	return result, nil
}

// ClearBuffer removes the live buffer.
func (s *Service) ClearBuffer(_ []string) (any, error) {
	return s.deps.Analyzer.Clear(), nil
}

// ExportSession writes the markers as a GeoJSON FeatureCollection. With a path
// argument the document is written there and the path is returned; otherwise
// the document itself is returned.
func (s *Service) ExportSession(args []string) (any, error) {
	fc := geo.FeatureCollection(s.deps.Markers.List())
	if s.deps.Session != nil {
		cur := s.deps.Session.Current()
		fc.ExtraMembers = map[string]interface{}{
			"sessionId":   cur.ID,
			"sessionName": cur.Name,
		}
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encoding session: %w", err)
	}
	if len(args) == 0 {
		return string(data), nil
	}

	path := args[0]
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// SessionStatus returns the status lines of the running session.
func (s *Service) SessionStatus(_ []string) (any, error) {
	return s.deps.Status.Lines(), nil
}

// SessionHistory lists the recorded analyses of the session, newest first.
// An optional argument limits the number of lines.
func (s *Service) SessionHistory(args []string) (any, error) {
	if len(args) > 1 {
		return nil, fmt.Errorf("%w: expected optional limit", ErrBadArgs)
	}
	limit := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: limit %q", ErrBadArgs, args[0])
		}
		limit = n
	}

	h, ok := s.deps.Storage.(storage.Historian)
	if !ok || s.deps.Session == nil {
		return nil, errors.New("history not available")
	}
	runs, err := h.History(s.deps.Session.Current().ID, limit)
	if err != nil {
		return nil, err
	}

	lines := make([]string, 0, len(runs))
	for _, r := range runs {
		lines = append(lines, fmt.Sprintf("%s %s %gkm %s",
			r.CreatedAt.UTC().Format(time.RFC3339), r.ID, r.RadiusKilometers, r.Report()))
	}
	return lines, nil
}

// RecordAnalysis forwards a finished analysis to storage and metrics.
func (s *Service) RecordAnalysis(_ context.Context, e dispatcher.Event) (any, error) {
	result, ok := e.Payload.(*core.BufferResult)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T", ErrBadArgs, e.Payload)
	}

	var errs []error
	if s.deps.Storage != nil {
		if err := s.deps.Storage.RecordAnalysis(result); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.deps.Metrics != nil {
		if err := s.deps.Metrics.WriteAnalysis(result); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return nil, errors.Join(errs...)
}
