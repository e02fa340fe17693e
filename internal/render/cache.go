package render

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aescanero/dago-node-renderer/internal/eval/cel"
	"github.com/aescanero/dago-node-renderer/internal/store"
	"go.uber.org/zap"
)

// Stats counts cache activity
type Stats struct {
	Hits     uint64 `json:"hits"`
	Misses   uint64 `json:"misses"`
	Compiles uint64 `json:"compiles"`
	Reads    uint64 `json:"reads"`
	Units    int    `json:"units"`
	Layouts  int    `json:"layouts"`
	Texts    int    `json:"texts"`
}

// Cache memoizes compiled units, compiled layouts and raw resource text.
//
// Units are keyed by path and the sorted parameter names, layouts and text
// by path. With noCache set every lookup rereads and recompiles.
type Cache struct {
	fs      store.FileStore
	noCache bool
	logger  *zap.Logger

	mu      sync.RWMutex
	units   map[UnitKey]*cel.Unit
	layouts map[string]*cel.Unit
	texts   map[string]string

	hits     atomic.Uint64
	misses   atomic.Uint64
	compiles atomic.Uint64
	reads    atomic.Uint64
}

// NewCache creates a cache reading resources from fs
func NewCache(fs store.FileStore, noCache bool, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{
		fs:      fs,
		noCache: noCache,
		logger:  logger,
		units:   make(map[UnitKey]*cel.Unit),
		layouts: make(map[string]*cel.Unit),
		texts:   make(map[string]string),
	}
}

// UnitKey identifies a unit compiled from Path against a parameter set.
// Names holds the sorted names, each quoted, so distinct sets never share a
// key even when a name contains the separator.
type UnitKey struct {
	Path  string
	Names string
}

// NewUnitKey returns the cache key for a unit compiled from path with names
func NewUnitKey(path string, names []string) UnitKey {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i, name := range sorted {
		sorted[i] = strconv.Quote(name)
	}
	return UnitKey{Path: path, Names: strings.Join(sorted, ",")}
}

// String renders the key as path(names)
func (k UnitKey) String() string {
	return k.Path + "(" + k.Names + ")"
}

// NoCache reports whether memoization is disabled
func (c *Cache) NoCache() bool {
	return c.noCache
}

// Text returns the content of the resource at path
func (c *Cache) Text(path string) (string, error) {
	if !c.noCache {
		c.mu.RLock()
		text, ok := c.texts[path]
		c.mu.RUnlock()
		if ok {
			return text, nil
		}
	}

	c.reads.Add(1)
	text, err := c.fs.ReadFile(path)
	if err != nil {
		return "", err
	}

	if !c.noCache {
		c.mu.Lock()
		c.texts[path] = text
		c.mu.Unlock()
	}
	return text, nil
}

// Unit returns the template unit for path compiled against names
func (c *Cache) Unit(path string, names []string) (*cel.Unit, error) {
	key := NewUnitKey(path, names)
	return lookup(c, c.units, key, func() (*cel.Unit, error) {
		sorted := append([]string(nil), names...)
		sort.Strings(sorted)
		return c.compile(path, sorted, cel.ModeTemplate)
	})
}

// Layout returns the layout unit for path
func (c *Cache) Layout(path string) (*cel.Unit, error) {
	return lookup(c, c.layouts, path, func() (*cel.Unit, error) {
		return c.compile(path, nil, cel.ModeLayout)
	})
}

func lookup[K comparable](c *Cache, entries map[K]*cel.Unit, key K, build func() (*cel.Unit, error)) (*cel.Unit, error) {
	if c.noCache {
		c.misses.Add(1)
		return build()
	}

	// Check cache first (read lock)
	c.mu.RLock()
	unit, ok := entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return unit, nil
	}

	c.misses.Add(1)
	unit, err := build()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check again in case another goroutine compiled it
	if existing, ok := entries[key]; ok {
		return existing, nil
	}
	entries[key] = unit
	return unit, nil
}

func (c *Cache) compile(path string, names []string, mode cel.Mode) (*cel.Unit, error) {
	text, err := c.Text(path)
	if err != nil {
		return nil, err
	}
	c.compiles.Add(1)
	c.logger.Debug("compiling unit",
		zap.String("path", path),
		zap.Strings("params", names),
		zap.Bool("layout", mode == cel.ModeLayout),
		zap.Bool("no_cache", c.noCache),
	)
	return cel.Compile(path, text, names, mode)
}

// Invalidate drops every entry derived from the resource at path
func (c *Cache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.units {
		if key.Path == path {
			delete(c.units, key)
		}
	}
	delete(c.layouts, path)
	delete(c.texts, path)
}

// Clear drops all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.units)
	clear(c.layouts)
	clear(c.texts)
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Stats{
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Compiles: c.compiles.Load(),
		Reads:    c.reads.Load(),
		Units:    len(c.units),
		Layouts:  len(c.layouts),
		Texts:    len(c.texts),
	}
}
