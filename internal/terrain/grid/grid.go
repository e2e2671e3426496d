package grid

import (
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Grid is a headless terrain: it holds the published window keyed by real
// location and answers the spatial queries a renderer would.
type Grid struct {
	geom region.Geometry

	mu         sync.RWMutex
	regions    map[region.Location]Placed
	staged     map[region.Location]Placed
	generation uint64
}

// Placed is the terrain's copy of one tile's placement.
type Placed struct {
	Real    region.Location
	Virtual region.Location
	Raster  region.Raster
}

func New(geom region.Geometry) *Grid {
	return &Grid{
		geom:    geom,
		regions: map[region.Location]Placed{},
		staged:  map[region.Location]Placed{},
	}
}

func (g *Grid) Geometry() region.Geometry { return g.geom }

// AddTile stages a tile at its real location. Staged tiles become visible
// on the next Refresh.
func (g *Grid) AddTile(t *region.Tile) {
	if t == nil {
		return
	}
	g.mu.Lock()
	g.staged[t.Real] = Placed{Real: t.Real, Virtual: t.Virtual, Raster: t.Raster}
	g.mu.Unlock()
}

// Refresh publishes the staged batch, replacing the previous window.
func (g *Grid) Refresh() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.staged) == 0 {
		return
	}
	g.regions = g.staged
	g.staged = make(map[region.Location]Placed, len(g.regions))
	g.generation++
}

func (g *Grid) RegionLocation(pos mgl64.Vec3) region.Location {
	return g.geom.ToRegionLocation(pos)
}

// Generation counts published windows.
func (g *Grid) Generation() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.generation
}

func (g *Grid) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.regions)
}

func (g *Grid) Region(real region.Location) (Placed, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.regions[real]
	return p, ok
}

// Regions returns the published window sorted row-major by real location.
func (g *Grid) Regions() []Placed {
	g.mu.RLock()
	out := make([]Placed, 0, len(g.regions))
	for _, p := range g.regions {
		out = append(out, p)
	}
	g.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Real.Less(out[j].Real) })
	return out
}

// HeightAt returns the nearest sample under a world position, or false when
// the position is outside the published window.
func (g *Grid) HeightAt(pos mgl64.Vec3) (float32, bool) {
	loc := g.geom.ToRegionLocation(pos)
	p, ok := g.Region(loc)
	if !ok {
		return 0, false
	}
	size := g.geom.RegionSize
	sx := int(math.Floor(pos.X() / g.geom.VertexSpacing))
	sz := int(math.Floor(pos.Z() / g.geom.VertexSpacing))
	lx := sx - region.FloorDiv(sx, size)*size
	lz := sz - region.FloorDiv(sz, size)*size
	return p.Raster.At(lx, lz), true
}
