package region

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

func TestToRegionLocationFloorsNegativeCoordinates(t *testing.T) {
	g := Geometry{RegionSize: 64, VertexSpacing: 2}
	cases := []struct {
		pos  mgl64.Vec3
		want Location
	}{
		{mgl64.Vec3{0, 0, 0}, Location{0, 0}},
		{mgl64.Vec3{127.9, 50, 0}, Location{0, 0}},
		{mgl64.Vec3{128, 0, -0.5}, Location{1, -1}},
		{mgl64.Vec3{-1, 0, -128}, Location{-1, -1}},
		{mgl64.Vec3{-129, 0, 384}, Location{-2, 3}},
	}
	for _, c := range cases {
		if got := g.ToRegionLocation(c.pos); got != c.want {
			t.Fatalf("ToRegionLocation(%v): got %v want %v", c.pos, got, c.want)
		}
	}
}

func TestWindowIsRowMajorAndComplete(t *testing.T) {
	w := Window(2)
	if len(w) != 16 {
		t.Fatalf("expected 16 locations, got %d", len(w))
	}
	if w[0] != (Location{-2, -2}) || w[1] != (Location{-1, -2}) || w[15] != (Location{1, 1}) {
		t.Fatalf("unexpected order: first=%v second=%v last=%v", w[0], w[1], w[15])
	}
	seen := map[Location]bool{}
	for i, l := range w {
		if seen[l] {
			t.Fatalf("duplicate %v", l)
		}
		seen[l] = true
		if !InWindow(l, 2) {
			t.Fatalf("%v outside window", l)
		}
		if i > 0 && !w[i-1].Less(l) {
			t.Fatalf("not row-major at %d: %v then %v", i, w[i-1], l)
		}
	}
}

func TestVirtualRealDuality(t *testing.T) {
	origin := Location{X: 3, Y: -7}
	real := Location{X: -2, Y: 1}
	v := RealToVirtual(real, origin)
	if v != (Location{1, -6}) {
		t.Fatalf("virtual: got %v", v)
	}
	if VirtualToReal(v, origin) != real {
		t.Fatalf("round trip lost real location")
	}
}

func TestChebyshevWithin(t *testing.T) {
	if !(Location{1, -1}).ChebyshevWithin(1) {
		t.Fatalf("(1,-1) should be within 1")
	}
	if (Location{2, 0}).ChebyshevWithin(1) {
		t.Fatalf("(2,0) should not be within 1")
	}
}

func TestCorrectionScalesByRegionDistance(t *testing.T) {
	g := Geometry{RegionSize: 256, VertexSpacing: 0.5}
	c := g.Correction(Location{X: 3, Y: -1})
	if c != (mgl64.Vec3{384, 0, -128}) {
		t.Fatalf("correction: got %v", c)
	}
}

func TestIsPowerOfTwo(t *testing.T) {
	for _, n := range []int{1, 2, 64, 1024, 2048} {
		if !IsPowerOfTwo(n) {
			t.Fatalf("%d should be a power of two", n)
		}
	}
	for _, n := range []int{0, -4, 3, 100, 2047} {
		if IsPowerOfTwo(n) {
			t.Fatalf("%d should not be a power of two", n)
		}
	}
}
