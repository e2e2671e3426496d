package region

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Location is an integer region coordinate. The same type names both real
// locations (relative to the current origin) and virtual locations (stable
// identity, real + accumulated origin offset).
type Location struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (l Location) Add(o Location) Location { return Location{X: l.X + o.X, Y: l.Y + o.Y} }
func (l Location) Sub(o Location) Location { return Location{X: l.X - o.X, Y: l.Y - o.Y} }

func (l Location) String() string { return fmt.Sprintf("(%d,%d)", l.X, l.Y) }

// ChebyshevWithin reports whether both axes are within limit of zero.
func (l Location) ChebyshevWithin(limit int) bool {
	return AbsInt(l.X) <= limit && AbsInt(l.Y) <= limit
}

// Less orders locations row-major (Y first, then X).
func (l Location) Less(o Location) bool {
	if l.Y != o.Y {
		return l.Y < o.Y
	}
	return l.X < o.X
}

func RealToVirtual(real, origin Location) Location    { return real.Add(origin) }
func VirtualToReal(virtual, origin Location) Location { return virtual.Sub(origin) }

// Window returns every real location in [-limit, limit)², row-major.
func Window(limit int) []Location {
	if limit <= 0 {
		return nil
	}
	out := make([]Location, 0, 4*limit*limit)
	for y := -limit; y < limit; y++ {
		for x := -limit; x < limit; x++ {
			out = append(out, Location{X: x, Y: y})
		}
	}
	return out
}

// InWindow reports whether a real location lies inside [-limit, limit)².
func InWindow(real Location, limit int) bool {
	return real.X >= -limit && real.X < limit && real.Y >= -limit && real.Y < limit
}

// Geometry is the physical size of one region.
type Geometry struct {
	RegionSize    int     // samples per side
	VertexSpacing float64 // world units between samples
}

func (g Geometry) RegionDistance() float64 {
	return float64(g.RegionSize) * g.VertexSpacing
}

// ToRegionLocation maps a world-space position onto the region grid. World X
// maps to location X and world Z to location Y; height is ignored.
func (g Geometry) ToRegionLocation(pos mgl64.Vec3) Location {
	d := g.RegionDistance()
	return Location{
		X: int(math.Floor(pos.X() / d)),
		Y: int(math.Floor(pos.Z() / d)),
	}
}

// Correction is the world-space offset an origin shift by loc moves the world.
func (g Geometry) Correction(loc Location) mgl64.Vec3 {
	d := g.RegionDistance()
	return mgl64.Vec3{float64(loc.X) * d, 0, float64(loc.Y) * d}
}

// RegionOrigin is the world-space corner of a real location.
func (g Geometry) RegionOrigin(real Location) mgl64.Vec3 {
	return g.Correction(real)
}

func FloorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func AbsInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// IsPowerOfTwo reports whether n is a positive power of two.
func IsPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}
