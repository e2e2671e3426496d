package region

import "fmt"

// Raster is a square, write-once buffer of elevation samples.
type Raster struct {
	Size    int
	Samples []float32 // len = Size*Size, row-major
}

func NewRaster(size int) Raster {
	return Raster{Size: size, Samples: make([]float32, size*size)}
}

func (r Raster) index(x, y int) int { return x + y*r.Size }

func (r Raster) At(x, y int) float32 { return r.Samples[r.index(x, y)] }

// Set is only meant for the producer filling a fresh raster.
func (r Raster) Set(x, y int, v float32) { r.Samples[r.index(x, y)] = v }

func (r Raster) Valid() error {
	if r.Size <= 0 {
		return fmt.Errorf("raster size %d", r.Size)
	}
	if len(r.Samples) != r.Size*r.Size {
		return fmt.Errorf("raster samples length mismatch: got %d want %d", len(r.Samples), r.Size*r.Size)
	}
	return nil
}

func (r Raster) Equal(o Raster) bool {
	if r.Size != o.Size || len(r.Samples) != len(o.Samples) {
		return false
	}
	for i, v := range r.Samples {
		if o.Samples[i] != v {
			return false
		}
	}
	return true
}

// MinMax returns the lowest and highest sample.
func (r Raster) MinMax() (lo, hi float32) {
	if len(r.Samples) == 0 {
		return 0, 0
	}
	lo, hi = r.Samples[0], r.Samples[0]
	for _, v := range r.Samples[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Tile is one region's raster placed in the world. Virtual is its identity;
// Real changes when the origin moves and is only rewritten during a commit.
type Tile struct {
	Virtual Location
	Real    Location
	Raster  Raster
}

func NewTile(virtual, real Location, r Raster) *Tile {
	return &Tile{Virtual: virtual, Real: real, Raster: r}
}
