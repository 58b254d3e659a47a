// Package marker holds the markers of the current map session in insertion order.
package marker

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/OCAP2/mapview/pkg/core"
	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when no marker has the given id
	ErrNotFound = errors.New("marker not found")
	// ErrNotMovable is returned when moving a buffer-result marker
	ErrNotMovable = errors.New("buffer markers cannot be moved")
)

// Collection is the session-scoped marker store. It is safe for concurrent use.
type Collection struct {
	mu      sync.RWMutex
	order   []string
	markers map[string]core.Marker

	now   func() time.Time
	newID func() string
}

// NewCollection creates an empty Collection
func NewCollection() *Collection {
	return &Collection{
		markers: make(map[string]core.Marker),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Add stores the marker and returns its id. An id and creation time are
// assigned when missing.
func (c *Collection) Add(m core.Marker) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if m.ID == "" {
		m.ID = c.newID()
	}
	if m.Kind == "" {
		m.Kind = core.MarkerPlain
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = c.now()
	}
	if _, exists := c.markers[m.ID]; !exists {
		c.order = append(c.order, m.ID)
	}
	c.markers[m.ID] = m
	return m.ID
}

// AddPlain stores a plain marker at pos and returns its id
func (c *Collection) AddPlain(pos core.Position2D) string {
	return c.Add(core.Marker{Kind: core.MarkerPlain, Position: pos})
}

// Remove deletes a marker by id, reporting whether it existed
func (c *Collection) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.markers[id]; !ok {
		return false
	}
	delete(c.markers, id)
	if i := slices.Index(c.order, id); i >= 0 {
		c.order = slices.Delete(c.order, i, i+1)
	}
	return true
}

// Get retrieves a marker by id
func (c *Collection) Get(id string) (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.markers[id]
	return m, ok
}

// Move changes the position of a plain marker
func (c *Collection) Move(id string, pos core.Position2D) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.markers[id]
	if !ok {
		return ErrNotFound
	}
	if m.IsBuffer() {
		return ErrNotMovable
	}
	m.Position = pos
	c.markers[id] = m
	return nil
}

// List returns markers in insertion order, optionally restricted to kinds
func (c *Collection) List(kinds ...core.MarkerKind) []core.Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]core.Marker, 0, len(c.order))
	for _, id := range c.order {
		m := c.markers[id]
		if len(kinds) > 0 && !slices.Contains(kinds, m.Kind) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// LatestPlain returns the most recently added plain marker
func (c *Collection) LatestPlain() (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.order) - 1; i >= 0; i-- {
		if m := c.markers[c.order[i]]; !m.IsBuffer() {
			return m, true
		}
	}
	return core.Marker{}, false
}

// Buffer returns the live buffer-result marker, if any
func (c *Collection) Buffer() (core.Marker, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.order {
		if m := c.markers[id]; m.IsBuffer() {
			return m, true
		}
	}
	return core.Marker{}, false
}

// Len returns the number of markers of every kind
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
