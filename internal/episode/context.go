// Package episode tracks the running episode so log records and recorders can be
// tagged with it.
package episode

import (
	"log/slog"
	"sync"

	"github.com/urbandriving/engine/pkg/core"
)

// Context holds the current episode and tick
type Context struct {
	mu      sync.RWMutex
	episode *core.Episode
	tick    int
}

// NewContext creates a new Context with no episode loaded
func NewContext() *Context {
	return &Context{episode: &core.Episode{Name: "No episode loaded"}}
}

// Episode returns the current episode
func (c *Context) Episode() *core.Episode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.episode
}

// Tick returns the last completed tick of the current episode
func (c *Context) Tick() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tick
}

// Start sets the current episode and rewinds the tick counter
func (c *Context) Start(e *core.Episode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.episode = e
	c.tick = 0
}

// SetTick records the latest completed tick
func (c *Context) SetTick(t int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick = t
}

// Attrs returns the episode name, id and tick as log attributes. It matches the
// logging.ContextProvider signature.
func (c *Context) Attrs() []slog.Attr {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.episode == nil || c.episode.ID == 0 {
		return nil
	}
	return []slog.Attr{
		slog.String("episode", c.episode.Name),
		slog.Uint64("episodeId", uint64(c.episode.ID)),
		slog.Int("tick", c.tick),
	}
}
