package streaming

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

type Config struct {
	Geometry         region.Geometry
	RegionLimit      int
	RegionShiftLimit int
	Unload           bool
	Workers          int
}

func (c Config) validate() error {
	if c.Geometry.RegionSize <= 0 || c.Geometry.VertexSpacing <= 0 {
		return fmt.Errorf("invalid geometry %+v", c.Geometry)
	}
	if !region.IsPowerOfTwo(c.Geometry.RegionSize) {
		return fmt.Errorf("region size must be a power of two, got %d", c.Geometry.RegionSize)
	}
	if c.RegionLimit < 1 {
		return fmt.Errorf("region limit must be >= 1, got %d", c.RegionLimit)
	}
	if c.RegionShiftLimit < 0 || c.RegionShiftLimit >= c.RegionLimit {
		return fmt.Errorf("region shift limit %d must be in [0, %d)", c.RegionShiftLimit, c.RegionLimit)
	}
	return nil
}

// Deps are the collaborators a Controller drives. Store is optional; a nil
// Store disables disk persistence.
type Deps struct {
	Terrain   Terrain
	Observer  Observer
	Cache     cache.Cache
	Store     tilestore.Store
	Generator *noise.Generator
	Reporter  Reporter
	Logger    *log.Logger
}

// Controller owns the floating origin and decides when to shift it. Tick,
// Start and Wait must be called from one goroutine (the host loop); Status
// and View are safe from anywhere.
type Controller struct {
	cfg      Config
	log      *log.Logger
	terrain  Terrain
	observer Observer
	cache    cache.Cache
	planner  *Planner
	sched    *Scheduler
	reporter Reporter
	warn     *rate.Limiter
	now      func() time.Time

	// barrier carries a finished shift from the workers to the host loop.
	barrier chan shiftRun

	// world is held for writing while a commit applies its effects.
	world sync.RWMutex

	mu         sync.Mutex
	origin     region.Location
	tracked    region.Location
	inProgress bool
	pending    pendingShift
	seq        uint64
	totals     Totals
	last       *Report
}

type pendingShift struct {
	shift      region.Location
	origin     region.Location
	correction mgl64.Vec3
	started    time.Time
}

type shiftRun struct {
	plan     Plan
	results  []Result
	finished time.Time
}

func New(cfg Config, deps Deps) (*Controller, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if deps.Terrain == nil || deps.Observer == nil || deps.Cache == nil || deps.Generator == nil {
		return nil, fmt.Errorf("terrain, observer, cache and generator are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Controller{
		cfg:      cfg,
		log:      logger,
		terrain:  deps.Terrain,
		observer: deps.Observer,
		cache:    deps.Cache,
		planner: &Planner{
			Limit:  cfg.RegionLimit,
			Cache:  deps.Cache,
			Store:  deps.Store,
			Unload: cfg.Unload,
			Log:    logger,
		},
		sched: &Scheduler{
			Workers: cfg.Workers,
			Cache:   deps.Cache,
			Store:   deps.Store,
			Gen:     deps.Generator,
			Log:     logger,
		},
		reporter: deps.Reporter,
		warn:     rate.NewLimiter(rate.Every(time.Second), 8),
		now:      time.Now,
		barrier:  make(chan shiftRun, 1),
	}, nil
}

// Start populates the first window around origin (0,0) and blocks until it
// is committed.
func (c *Controller) Start(ctx context.Context) error {
	return c.StartAt(ctx, region.Location{})
}

// StartAt is Start with the first window centred on origin instead. The
// observer position is read in the (0,0) frame; the commit moves it into the
// frame of origin like any other shift.
func (c *Controller) StartAt(ctx context.Context, origin region.Location) error {
	c.mu.Lock()
	if c.inProgress {
		c.mu.Unlock()
		return fmt.Errorf("shift already in progress")
	}
	c.tracked = origin
	c.mu.Unlock()
	c.beginShift(ctx, origin)
	return c.Wait(ctx)
}

// Tick is called once per frame. It commits a shift whose tiles are ready,
// then starts a new shift if the observer left the allowed border.
func (c *Controller) Tick(ctx context.Context) {
	select {
	case run := <-c.barrier:
		c.commit(run)
	default:
	}

	current := c.terrain.RegionLocation(c.observer.Position())

	c.mu.Lock()
	if c.inProgress || current == c.tracked {
		c.mu.Unlock()
		return
	}
	c.tracked = current
	c.mu.Unlock()

	if current.ChebyshevWithin(c.cfg.RegionShiftLimit) {
		return
	}
	c.beginShift(ctx, current)
}

// Wait blocks until the shift in flight, if any, has been committed.
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	busy := c.inProgress
	c.mu.Unlock()
	if !busy {
		return nil
	}
	select {
	case run := <-c.barrier:
		c.commit(run)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) beginShift(ctx context.Context, loc region.Location) {
	c.mu.Lock()
	c.inProgress = true
	c.origin = c.origin.Add(loc)
	c.pending = pendingShift{
		shift:      loc,
		origin:     c.origin,
		correction: c.cfg.Geometry.Correction(loc),
		started:    c.now(),
	}
	origin := c.origin
	c.mu.Unlock()

	plan := c.planner.Plan(ctx, origin)

	// Shifts are never cancelled once started.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		results := c.sched.Run(runCtx, plan.Tasks)
		c.barrier <- shiftRun{plan: plan, results: results, finished: c.now()}
	}()
}

func (c *Controller) commit(run shiftRun) {
	c.mu.Lock()
	p := c.pending
	c.mu.Unlock()

	c.world.Lock()
	evicted := 0
	if len(run.plan.Evictions) > 0 {
		evicted = c.cache.Evict(run.plan.Evictions)
	}
	for i := range run.results {
		res := &run.results[i]
		res.Tile.Real = res.Task.Real
		c.terrain.AddTile(res.Tile)
	}
	c.terrain.Refresh()
	c.observer.CorrectPosition(p.correction)
	c.world.Unlock()

	rep := buildReport(run.results)
	rep.ID = uuid.NewString()
	rep.Shift = p.shift
	rep.Origin = p.origin
	rep.StartedAt = p.started.UTC()
	rep.DurationMS = float64(run.finished.Sub(p.started).Microseconds()) / 1000
	rep.Evicted = evicted

	c.mu.Lock()
	// tracked was read in the old frame; keep it in the observer's frame.
	c.tracked = c.tracked.Sub(p.shift)
	c.seq++
	rep.Seq = c.seq
	c.totals.add(rep)
	c.last = &rep
	c.inProgress = false
	c.mu.Unlock()

	c.log.Printf("shift %v -> origin %v: %d tiles in %.1fms (generated=%d loaded=%d cached=%d evicted=%d)",
		rep.Shift, rep.Origin, rep.Tiles, rep.DurationMS, rep.Generated, rep.Loaded, rep.Cached, rep.Evicted)
	for _, te := range rep.TileErrors {
		if c.warn.Allow() {
			c.log.Printf("shift %d: tile %v %s: %s", rep.Seq, te.Virtual, te.Op, te.Error)
		}
	}
	if c.reporter != nil {
		c.reporter.ReportShift(rep)
	}
}

// Status is a point-in-time view of the controller.
type Status struct {
	Origin     region.Location `json:"origin"`
	Tracked    region.Location `json:"tracked"`
	InProgress bool            `json:"in_progress"`
	Shifts     uint64          `json:"shifts"`
	CacheSize  int             `json:"cache_size"`
	CacheMode  cache.Mode      `json:"cache_mode"`
	Totals     Totals          `json:"totals"`
	Last       *Report         `json:"last,omitempty"`
}

func (c *Controller) Status() Status {
	c.mu.Lock()
	s := Status{
		Origin:     c.origin,
		Tracked:    c.tracked,
		InProgress: c.inProgress,
		Shifts:     c.seq,
		Totals:     c.totals,
	}
	if c.last != nil {
		last := *c.last
		s.Last = &last
	}
	c.mu.Unlock()
	s.CacheSize = c.cache.Len()
	s.CacheMode = c.cache.Mode()
	return s
}

// View runs fn while no commit is being applied, so the terrain window and
// the observer position it sees belong to the same shift.
func (c *Controller) View(fn func()) {
	c.world.RLock()
	defer c.world.RUnlock()
	fn()
}

func (c *Controller) Config() Config { return c.cfg }
