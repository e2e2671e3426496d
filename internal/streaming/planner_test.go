package streaming

import (
	"context"
	"errors"
	"testing"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

func testGenerator(t *testing.T) *noise.Generator {
	t.Helper()
	f, err := noise.New(noise.Params{Kind: noise.KindPerlin, Seed: 3, Frequency: 0.1, Octaves: 3, Lacunarity: 2, Gain: 0.5})
	if err != nil {
		t.Fatalf("noise: %v", err)
	}
	return &noise.Generator{Field: f, Geometry: testGeom, HeightmapScale: 1}
}

func TestPlanCoversWindowRowMajor(t *testing.T) {
	c := cache.NewTileMap()
	p := &Planner{Limit: 3, Cache: c}
	origin := region.Location{X: 10, Y: -4}
	plan := p.Plan(context.Background(), origin)

	window := region.Window(3)
	if len(plan.Tasks) != len(window) {
		t.Fatalf("tasks: got %d want %d", len(plan.Tasks), len(window))
	}
	for i, task := range plan.Tasks {
		if task.Real != window[i] {
			t.Fatalf("task %d real %v, want %v", i, task.Real, window[i])
		}
		if task.Virtual != region.RealToVirtual(task.Real, origin) {
			t.Fatalf("task %d virtual %v does not match origin", i, task.Virtual)
		}
		if task.Action != Generate {
			t.Fatalf("task %d action %v on empty cache", i, task.Action)
		}
	}
	if len(plan.Evictions) != 0 {
		t.Fatalf("evictions without unload: %v", plan.Evictions)
	}
}

func TestPlanIsIdempotentOnResidentWindow(t *testing.T) {
	gen := testGenerator(t)
	c := cache.NewTileMap()
	for _, real := range region.Window(testLimit) {
		c.Insert(region.NewTile(real, real, gen.Generate(real)))
	}
	p := &Planner{Limit: testLimit, Cache: c}
	plan := p.Plan(context.Background(), region.Location{})
	counts := plan.Counts()
	if counts[FromCache] != 16 || len(counts) != 1 {
		t.Fatalf("counts: %v", counts)
	}
}

func TestPlanEvictionsDisjointFromWindow(t *testing.T) {
	gen := testGenerator(t)
	c := cache.NewTileMap()
	for x := -6; x < 6; x++ {
		for y := -6; y < 6; y++ {
			v := region.Location{X: x, Y: y}
			c.Insert(region.NewTile(v, v, gen.Generate(v)))
		}
	}
	p := &Planner{Limit: testLimit, Cache: c, Unload: true}
	origin := region.Location{X: 4, Y: -3}
	plan := p.Plan(context.Background(), origin)

	required := virtualSet(origin)
	for _, e := range plan.Evictions {
		if required[e] {
			t.Fatalf("eviction %v is inside the window", e)
		}
	}
	if got := len(plan.Evictions) + plan.Counts()[FromCache]; got != c.Len() {
		t.Fatalf("evictions + cached = %d, want %d", got, c.Len())
	}
	for i := 1; i < len(plan.Evictions); i++ {
		if !plan.Evictions[i-1].Less(plan.Evictions[i]) {
			t.Fatalf("evictions not sorted at %d", i)
		}
	}
}

type existsErrStore struct{ *tilestore.MemStore }

func (existsErrStore) Exists(context.Context, region.Location) (bool, error) {
	return false, errors.New("io")
}

func TestPlanPrefersCacheThenDisk(t *testing.T) {
	gen := testGenerator(t)
	c := cache.NewTileMap()
	store := tilestore.NewMemStore()
	cached := region.Location{X: -2, Y: -2}
	onDisk := region.Location{X: -1, Y: -2}
	c.Insert(region.NewTile(cached, cached, gen.Generate(cached)))
	store.Put(cached, gen.Generate(cached))
	store.Put(onDisk, gen.Generate(onDisk))

	plan := (&Planner{Limit: testLimit, Cache: c, Store: store}).Plan(context.Background(), region.Location{})
	if plan.Tasks[0].Action != FromCache || plan.Tasks[1].Action != FromDisk || plan.Tasks[2].Action != Generate {
		t.Fatalf("actions: %v %v %v", plan.Tasks[0].Action, plan.Tasks[1].Action, plan.Tasks[2].Action)
	}

	plan = (&Planner{Limit: testLimit, Cache: c, Store: existsErrStore{store}}).Plan(context.Background(), region.Location{})
	if plan.Tasks[1].Action != Generate {
		t.Fatalf("exists error should plan generate, got %v", plan.Tasks[1].Action)
	}
}
