package streaming

import (
	"context"
	"fmt"
	"log"
	"runtime"
	"sync"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Scheduler runs the tasks of one shift on a bounded worker pool.
type Scheduler struct {
	Workers int // <= 0 means GOMAXPROCS
	Cache   cache.Cache
	Store   tilestore.Store // nil when disk persistence is off
	Gen     *noise.Generator
	Log     *log.Logger
}

func (s *Scheduler) workers(n int) int {
	w := s.Workers
	if w <= 0 {
		w = runtime.GOMAXPROCS(0)
	}
	if w > n {
		w = n
	}
	if w < 1 {
		w = 1
	}
	return w
}

// Run executes every task and returns once all of them finished. Each
// worker writes only its own slot of the result buffer. Tasks never fail:
// a tile that cannot come from cache or disk is generated.
func (s *Scheduler) Run(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	if len(tasks) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for i := 0; i < s.workers(len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = s.runTask(ctx, tasks[idx])
			}
		}()
	}
	for i := range tasks {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func (s *Scheduler) runTask(ctx context.Context, t Task) Result {
	res := Result{Task: t}
	switch t.Action {
	case FromCache:
		if tile, ok := s.Cache.Lookup(t.Virtual, t.Real); ok {
			res.Tile = tile
			res.Outcome = FromCache
			return res
		}
		// Planner and cache disagree. Never leave the slot empty.
		res.CacheMiss = true
		s.logf("BUG: tile %v planned as cached but not resident; regenerating", t.Virtual)
		return s.generate(ctx, t, res)

	case FromDisk:
		r, err := s.load(ctx, t.Virtual)
		if err != nil {
			res.LoadErr = err
			s.logf("load tile %v: %v (regenerating)", t.Virtual, err)
			return s.generate(ctx, t, res)
		}
		res.Tile = region.NewTile(t.Virtual, t.Real, r)
		res.Outcome = FromDisk
		s.Cache.Insert(res.Tile)
		return res

	default:
		return s.generate(ctx, t, res)
	}
}

func (s *Scheduler) load(ctx context.Context, v region.Location) (region.Raster, error) {
	if s.Store == nil {
		return region.Raster{}, tilestore.ErrNotFound
	}
	r, err := s.Store.Load(ctx, v)
	if err != nil {
		return region.Raster{}, err
	}
	if err := r.Valid(); err != nil {
		return region.Raster{}, err
	}
	if size := s.Gen.Geometry.RegionSize; r.Size != size {
		return region.Raster{}, fmt.Errorf("stored size %d does not match region_size %d", r.Size, size)
	}
	return r, nil
}

func (s *Scheduler) generate(ctx context.Context, t Task, res Result) Result {
	r := s.Gen.Generate(t.Virtual)
	if s.Store != nil {
		if err := s.Store.Save(ctx, t.Virtual, r); err != nil {
			res.SaveErr = err
		}
	}
	res.Tile = region.NewTile(t.Virtual, t.Real, r)
	res.Outcome = Generate
	s.Cache.Insert(res.Tile)
	return res
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.Log != nil {
		s.Log.Printf(format, args...)
	}
}
