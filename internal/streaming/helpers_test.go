package streaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/grid"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

const (
	testRegionSize = 8
	testLimit      = 2
	testShiftLimit = 1
)

var testGeom = region.Geometry{RegionSize: testRegionSize, VertexSpacing: 1}

// gatedField blocks every sample while the gate is held for writing.
type gatedField struct {
	inner noise.Field
	gate  sync.RWMutex
}

func (f *gatedField) Sample(x, y float64) float64 {
	f.gate.RLock()
	defer f.gate.RUnlock()
	return f.inner.Sample(x, y)
}

type harness struct {
	t        *testing.T
	ctrl     *Controller
	grid     *grid.Grid
	body     *Body
	cache    cache.Cache
	field    *gatedField
	gen      *noise.Generator
	reports  []Report
	reportMu sync.Mutex
}

type harnessOpts struct {
	mode   cache.Mode
	unload bool
	store  tilestore.Store
	// startAt centres the first window away from (0,0); the observer starts
	// inside that region.
	startAt region.Location
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	if o.mode == "" {
		o.mode = cache.ModeTile
	}
	inner, err := noise.New(noise.Params{Kind: noise.KindSimplex, Seed: 7, Frequency: 0.05, Octaves: 2})
	if err != nil {
		t.Fatalf("noise: %v", err)
	}
	h := &harness{
		t:     t,
		grid:  grid.New(testGeom),
		body:  NewBody(mgl64.Vec3{1, 0, 1}),
		field: &gatedField{inner: inner},
	}
	h.gen = &noise.Generator{Field: h.field, Geometry: testGeom, HeightmapOffset: 0.5, HeightmapScale: 10}
	c, err := cache.New(o.mode)
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	h.cache = c

	deps := Deps{
		Terrain:   h.grid,
		Observer:  h.body,
		Cache:     c,
		Generator: h.gen,
		Reporter: ReporterFunc(func(r Report) {
			h.reportMu.Lock()
			h.reports = append(h.reports, r)
			h.reportMu.Unlock()
		}),
	}
	if o.store != nil {
		deps.Store = o.store
	}
	ctrl, err := New(Config{
		Geometry:         testGeom,
		RegionLimit:      testLimit,
		RegionShiftLimit: testShiftLimit,
		Unload:           o.unload,
		Workers:          4,
	}, deps)
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	h.ctrl = ctrl
	h.body.Teleport(testGeom.Correction(o.startAt).Add(mgl64.Vec3{1, 0, 1}))
	if err := ctrl.StartAt(h.ctx(), o.startAt); err != nil {
		t.Fatalf("start: %v", err)
	}
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) lastReport() Report {
	h.t.Helper()
	h.reportMu.Lock()
	defer h.reportMu.Unlock()
	if len(h.reports) == 0 {
		h.t.Fatalf("no reports")
	}
	return h.reports[len(h.reports)-1]
}

// moveTo places the observer in the middle-ish of a region (current frame).
func (h *harness) moveTo(loc region.Location) {
	d := testGeom.RegionDistance()
	h.body.Teleport(mgl64.Vec3{float64(loc.X)*d + 1, 0, float64(loc.Y)*d + 1})
}

// tickAndWait ticks once and waits for any shift it started.
func (h *harness) tickAndWait() {
	h.t.Helper()
	h.ctrl.Tick(h.ctx())
	if err := h.ctrl.Wait(h.ctx()); err != nil {
		h.t.Fatalf("wait: %v", err)
	}
}

// assertComplete checks every window slot is published with the tile the
// current origin maps it to, and that it is resident.
func (h *harness) assertComplete() {
	h.t.Helper()
	origin := h.ctrl.Status().Origin
	if h.grid.Len() != 4*testLimit*testLimit {
		h.t.Fatalf("published window has %d regions", h.grid.Len())
	}
	for _, real := range region.Window(testLimit) {
		p, ok := h.grid.Region(real)
		if !ok {
			h.t.Fatalf("hole at real %v", real)
		}
		want := region.RealToVirtual(real, origin)
		if p.Virtual != want {
			h.t.Fatalf("real %v shows virtual %v, want %v", real, p.Virtual, want)
		}
		if !h.cache.Contains(want) {
			h.t.Fatalf("virtual %v published but not resident", want)
		}
		if !p.Raster.Equal(h.gen.Generate(want)) {
			h.t.Fatalf("virtual %v raster differs from a fresh generation", want)
		}
	}
}

func virtualSet(origin region.Location) map[region.Location]bool {
	out := map[region.Location]bool{}
	for _, real := range region.Window(testLimit) {
		out[region.RealToVirtual(real, origin)] = true
	}
	return out
}
