package cache

import (
	"sync"
	"testing"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

func raster(v float32) region.Raster {
	r := region.NewRaster(2)
	for i := range r.Samples {
		r.Samples[i] = v
	}
	return r
}

func TestTileModeReturnsCachedObject(t *testing.T) {
	c, err := New(ModeTile)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tile := region.NewTile(region.Location{X: 4, Y: 1}, region.Location{X: 0, Y: 0}, raster(1))
	c.Insert(tile)

	got, ok := c.Lookup(region.Location{X: 4, Y: 1}, region.Location{X: -1, Y: 0})
	if !ok {
		t.Fatalf("expected hit")
	}
	if got != tile {
		t.Fatalf("tile mode should hand back the cached object")
	}
	if got.Real != (region.Location{}) {
		t.Fatalf("lookup must not move the tile, got real %v", got.Real)
	}
}

func TestRasterModeBuildsNewWrapper(t *testing.T) {
	c, err := New(ModeRaster)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	tile := region.NewTile(region.Location{X: 4, Y: 1}, region.Location{X: 0, Y: 0}, raster(3))
	c.Insert(tile)

	got, ok := c.Lookup(region.Location{X: 4, Y: 1}, region.Location{X: -1, Y: 2})
	if !ok {
		t.Fatalf("expected hit")
	}
	if got == tile {
		t.Fatalf("raster mode should build a fresh tile")
	}
	if got.Real != (region.Location{X: -1, Y: 2}) || got.Virtual != (region.Location{X: 4, Y: 1}) {
		t.Fatalf("unexpected placement: virtual=%v real=%v", got.Virtual, got.Real)
	}
	if got.Raster.At(1, 1) != 3 {
		t.Fatalf("raster not carried over")
	}
}

func TestEvictAndKeys(t *testing.T) {
	c := NewRasterMap()
	for _, l := range []region.Location{{X: 1, Y: 1}, {X: 0, Y: 0}, {X: -1, Y: 1}} {
		c.Insert(region.NewTile(l, l, raster(0)))
	}
	keys := c.Keys()
	want := []region.Location{{X: 0, Y: 0}, {X: -1, Y: 1}, {X: 1, Y: 1}}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys[%d]: got %v want %v", i, keys[i], want[i])
		}
	}
	if n := c.Evict([]region.Location{{X: 0, Y: 0}, {X: 9, Y: 9}}); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if c.Contains(region.Location{X: 0, Y: 0}) || c.Len() != 2 {
		t.Fatalf("eviction not applied: len=%d", c.Len())
	}
}

func TestConcurrentInsertAndLookup(t *testing.T) {
	c := NewTileMap()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				l := region.Location{X: w, Y: i}
				c.Insert(region.NewTile(l, l, raster(float32(i))))
				if _, ok := c.Lookup(l, l); !ok {
					t.Errorf("missing own insert %v", l)
					return
				}
				_ = c.Contains(region.Location{X: (w + 1) % 8, Y: i})
			}
		}(w)
	}
	wg.Wait()
	if c.Len() != 8*200 {
		t.Fatalf("len: got %d", c.Len())
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("Raster"); err != nil || m != ModeRaster {
		t.Fatalf("ParseMode raster: %v %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m != ModeTile {
		t.Fatalf("ParseMode default: %v %v", m, err)
	}
	if _, err := ParseMode("lru"); err == nil {
		t.Fatalf("expected error")
	}
}
