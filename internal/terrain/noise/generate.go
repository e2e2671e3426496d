package noise

import (
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Generator turns a virtual location into a heightmap raster. It holds no
// mutable state, so one Generator is shared by every worker.
type Generator struct {
	Field    Field
	Geometry region.Geometry

	HeightmapOffset float64
	HeightmapScale  float64
}

// Generate samples the field over one region. Samples are taken in world
// space derived from the virtual location, so neighbouring regions line up
// regardless of where the origin currently is.
func (g *Generator) Generate(virtual region.Location) region.Raster {
	size := g.Geometry.RegionSize
	spacing := g.Geometry.VertexSpacing
	dist := g.Geometry.RegionDistance()
	baseX := float64(virtual.X) * dist
	baseY := float64(virtual.Y) * dist

	r := region.NewRaster(size)
	for y := 0; y < size; y++ {
		wy := float64(y)*spacing + baseY
		for x := 0; x < size; x++ {
			wx := float64(x)*spacing + baseX
			h := (g.Field.Sample(wx, wy) + g.HeightmapOffset) * g.HeightmapScale
			r.Set(x, y, float32(h))
		}
	}
	return r
}
