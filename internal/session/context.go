package session

import (
	"log/slog"
	"sync"
	"time"

	"github.com/OCAP2/mapview/pkg/core"
	"github.com/google/uuid"
)

// Stats exposes the live marker state reported with every log record
type Stats interface {
	Len() int
	Buffer() (core.Marker, bool)
}

// Context holds the current map session
type Context struct {
	mu      sync.RWMutex
	session *core.Session
	stats   Stats
}

// NewContext creates a new Context with no session started
func NewContext() *Context {
	return &Context{
		session: &core.Session{Name: "No session started"},
	}
}

// Start begins a new session and makes it current
func (c *Context) Start(name string) *core.Session {
	s := &core.Session{
		ID:        uuid.NewString(),
		Name:      name,
		StartTime: time.Now().UTC(),
	}
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
	return s
}

// Current returns the current session
func (c *Context) Current() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// Track sets the marker state included in Attrs
func (c *Context) Track(stats Stats) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats = stats
}

// Attrs returns the session attributes for log records. It matches
// logging.ContextProvider.
func (c *Context) Attrs() []slog.Attr {
	c.mu.RLock()
	s, stats := c.session, c.stats
	c.mu.RUnlock()

	if s.ID == "" {
		return nil
	}
	attrs := []slog.Attr{slog.String("session", s.ID)}
	if stats == nil {
		return attrs
	}
	attrs = append(attrs, slog.Int("markers", stats.Len()))
	if b, ok := stats.Buffer(); ok {
		attrs = append(attrs, slog.String("buffer", b.ID))
	}
	return attrs
}
