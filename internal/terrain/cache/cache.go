package cache

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

type Mode string

const (
	// ModeTile keeps whole tile objects; the terrain owns their placement.
	ModeTile Mode = "tile"
	// ModeRaster keeps only the raster and wraps it in a new tile on reuse.
	ModeRaster Mode = "raster"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeTile:
		return ModeTile, nil
	case ModeRaster:
		return ModeRaster, nil
	default:
		return "", fmt.Errorf("unknown cache mode %q", s)
	}
}

// Cache maps virtual locations to resident tile data.
type Cache interface {
	Mode() Mode
	Contains(virtual region.Location) bool
	// Lookup returns a tile for virtual placed at real. In tile mode the
	// cached object itself is returned and its Real field is left untouched.
	Lookup(virtual, real region.Location) (*region.Tile, bool)
	Insert(t *region.Tile)
	Evict(keys []region.Location) int
	Keys() []region.Location
	Len() int
}

// New returns the cache implementation for mode.
func New(mode Mode) (Cache, error) {
	switch mode {
	case ModeTile:
		return NewTileMap(), nil
	case ModeRaster:
		return NewRasterMap(), nil
	default:
		return nil, fmt.Errorf("unknown cache mode %q", mode)
	}
}

// Map is a mutex-guarded map polymorphic over what it stores per location.
// The lock is only ever held around a single map operation.
type Map[V any] struct {
	mode   Mode
	wrap   func(v V, virtual, real region.Location) *region.Tile
	unwrap func(t *region.Tile) V

	mu      sync.RWMutex
	entries map[region.Location]V
}

func NewTileMap() *Map[*region.Tile] {
	return &Map[*region.Tile]{
		mode:    ModeTile,
		wrap:    func(t *region.Tile, _, _ region.Location) *region.Tile { return t },
		unwrap:  func(t *region.Tile) *region.Tile { return t },
		entries: map[region.Location]*region.Tile{},
	}
}

func NewRasterMap() *Map[region.Raster] {
	return &Map[region.Raster]{
		mode: ModeRaster,
		wrap: func(r region.Raster, virtual, real region.Location) *region.Tile {
			return region.NewTile(virtual, real, r)
		},
		unwrap:  func(t *region.Tile) region.Raster { return t.Raster },
		entries: map[region.Location]region.Raster{},
	}
}

func (m *Map[V]) Mode() Mode { return m.mode }

func (m *Map[V]) Contains(virtual region.Location) bool {
	m.mu.RLock()
	_, ok := m.entries[virtual]
	m.mu.RUnlock()
	return ok
}

func (m *Map[V]) Lookup(virtual, real region.Location) (*region.Tile, bool) {
	m.mu.RLock()
	v, ok := m.entries[virtual]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return m.wrap(v, virtual, real), true
}

func (m *Map[V]) Insert(t *region.Tile) {
	if t == nil {
		return
	}
	v := m.unwrap(t)
	m.mu.Lock()
	m.entries[t.Virtual] = v
	m.mu.Unlock()
}

func (m *Map[V]) Evict(keys []region.Location) int {
	n := 0
	for _, k := range keys {
		m.mu.Lock()
		if _, ok := m.entries[k]; ok {
			delete(m.entries, k)
			n++
		}
		m.mu.Unlock()
	}
	return n
}

func (m *Map[V]) Keys() []region.Location {
	m.mu.RLock()
	keys := make([]region.Location, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	m.mu.RUnlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}

func (m *Map[V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
