package cache

import (
	"sync"

	"github.com/OCAP2/mapview/pkg/core"
	geom "github.com/peterstace/simplefeatures/geom"
)

type projected struct {
	source core.Position2D
	point  geom.Point
}

// ProjectionCache maps marker ids to their projected positions. An entry is
// only served while the marker still sits at the position it was projected from.
type ProjectionCache struct {
	mu      sync.RWMutex
	entries map[string]projected
}

// NewProjectionCache creates a new ProjectionCache
func NewProjectionCache() *ProjectionCache {
	return &ProjectionCache{
		entries: make(map[string]projected),
	}
}

// Get retrieves the projected point for a marker at pos
func (c *ProjectionCache) Get(id string, pos core.Position2D) (geom.Point, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	if !ok || e.source != pos {
		return geom.Point{}, false
	}
	return e.point, true
}

// Set stores the projected point of a marker at pos
func (c *ProjectionCache) Set(id string, pos core.Position2D, pt geom.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = projected{source: pos, point: pt}
}

// Retain drops every entry whose id is not in keep
func (c *ProjectionCache) Retain(keep map[string]struct{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := range c.entries {
		if _, ok := keep[id]; !ok {
			delete(c.entries, id)
		}
	}
}

// Len returns the number of cached entries
func (c *ProjectionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
