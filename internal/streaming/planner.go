package streaming

import (
	"context"
	"log"
	"sort"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Plan is the work for one origin shift.
type Plan struct {
	Origin    region.Location
	Tasks     []Task
	Evictions []region.Location
}

// Counts returns how many tasks carry each action.
func (p Plan) Counts() map[Action]int {
	out := map[Action]int{}
	for _, t := range p.Tasks {
		out[t.Action]++
	}
	return out
}

// Planner classifies every slot of the window around an origin.
type Planner struct {
	Limit  int
	Cache  cache.Cache
	Store  tilestore.Store // nil when disk persistence is off
	Unload bool
	Log    *log.Logger
}

// Plan covers [-Limit, Limit)² exactly once, row-major. Evictions are the
// resident keys outside the new window and never intersect it.
func (p *Planner) Plan(ctx context.Context, origin region.Location) Plan {
	window := region.Window(p.Limit)
	plan := Plan{
		Origin: origin,
		Tasks:  make([]Task, 0, len(window)),
	}
	required := make(map[region.Location]struct{}, len(window))

	for _, real := range window {
		virtual := region.RealToVirtual(real, origin)
		required[virtual] = struct{}{}
		plan.Tasks = append(plan.Tasks, Task{
			Action:  p.classify(ctx, virtual),
			Real:    real,
			Virtual: virtual,
		})
	}

	if p.Unload {
		for _, k := range p.Cache.Keys() {
			if _, ok := required[k]; !ok {
				plan.Evictions = append(plan.Evictions, k)
			}
		}
		sort.Slice(plan.Evictions, func(i, j int) bool { return plan.Evictions[i].Less(plan.Evictions[j]) })
	}
	return plan
}

func (p *Planner) classify(ctx context.Context, virtual region.Location) Action {
	if p.Cache.Contains(virtual) {
		return FromCache
	}
	if p.Store == nil {
		return Generate
	}
	ok, err := p.Store.Exists(ctx, virtual)
	if err != nil {
		if p.Log != nil {
			p.Log.Printf("plan: exists %v: %v (generating instead)", virtual, err)
		}
		return Generate
	}
	if ok {
		return FromDisk
	}
	return Generate
}
