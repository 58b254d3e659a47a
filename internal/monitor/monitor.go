// Package monitor reports the state of the running map session and keeps a
// status file up to date while the session runs.
package monitor

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/OCAP2/mapview/internal/session"
	"github.com/OCAP2/mapview/pkg/core"
)

// DefaultInterval is used when Dependencies.Interval is zero.
const DefaultInterval = 5 * time.Second

// Markers is the part of the marker collection the monitor reads.
type Markers interface {
	List(kinds ...core.MarkerKind) []core.Marker
	Buffer() (core.Marker, bool)
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Session *session.Context
	Markers Markers
	Logger  *slog.Logger
	// Pending reports buffered storage writes; nil when storage does not buffer.
	Pending func() int
	// StatusPath is rewritten every Interval while running; empty disables the file.
	StatusPath string
	Interval   time.Duration
}

// Status is a snapshot of the session
type Status struct {
	Time          time.Time `json:"time"`
	SessionID     string    `json:"sessionId"`
	SessionName   string    `json:"sessionName"`
	Uptime        string    `json:"uptime"`
	PlainMarkers  int       `json:"plainMarkers"`
	LiveBuffer    string    `json:"liveBuffer,omitempty"`
	PendingWrites int       `json:"pendingWrites"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      sync.WaitGroup
	now       func() time.Time
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Interval <= 0 {
		deps.Interval = DefaultInterval
	}
	return &Service{
		deps: deps,
		now:  time.Now,
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current session status
func (s *Service) GetStatus() Status {
	now := s.now()
	st := Status{Time: now.UTC()}

	if s.deps.Session != nil {
		cur := s.deps.Session.Current()
		st.SessionID = cur.ID
		st.SessionName = cur.Name
		if !cur.StartTime.IsZero() {
			st.Uptime = now.Sub(cur.StartTime).Truncate(time.Second).String()
		}
	}
	if s.deps.Markers != nil {
		st.PlainMarkers = len(s.deps.Markers.List(core.MarkerPlain))
		if b, ok := s.deps.Markers.Buffer(); ok {
			st.LiveBuffer = b.ID
		}
	}
	if s.deps.Pending != nil {
		st.PendingWrites = s.deps.Pending()
	}
	return st
}

// Lines renders the status for display, one field per line.
func (s *Service) Lines() []string {
	st := s.GetStatus()
	buffer := st.LiveBuffer
	if buffer == "" {
		buffer = "none"
	}
	return []string{
		fmt.Sprintf("session: %s (%s)", st.SessionName, st.SessionID),
		fmt.Sprintf("uptime: %s", st.Uptime),
		fmt.Sprintf("markers: %d", st.PlainMarkers),
		fmt.Sprintf("buffer: %s", buffer),
		fmt.Sprintf("pending writes: %d", st.PendingWrites),
	}
}

// WriteStatusFile replaces the status file with the current status as JSON.
func (s *Service) WriteStatusFile() error {
	data, err := json.MarshalIndent(s.GetStatus(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	if err := os.WriteFile(s.deps.StatusPath, data, 0644); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine. Without a StatusPath it does nothing.
func (s *Service) Start() error {
	if s.deps.StatusPath == "" {
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	stop := s.stopChan
	s.mu.Unlock()

	s.done.Add(1)
	go func() {
		defer s.done.Done()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.Logger.Debug("Starting status monitor", "path", s.deps.StatusPath, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			if err := s.WriteStatusFile(); err != nil {
				s.deps.Logger.Error("Error writing status file", "error", err)
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()

	return nil
}

// Stop stops the status monitor and waits for it to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if s.isRunning && s.stopChan != nil {
		close(s.stopChan)
		s.stopChan = nil
	}
	s.mu.Unlock()
	s.done.Wait()
}
