package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"golang.org/x/time/rate"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/indexdb"
	persistlog "github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/log"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/snapshot"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/streaming"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/grid"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/transport/observer"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

type serverRuntimeConfig struct {
	DataDir   string
	DisableDB bool
	Resume    bool
	Start     mgl64.Vec3
	Walk      mgl64.Vec3 // world units per second
}

// streamRuntime wires the streaming controller to its host: the simulated
// walker, persistence sinks and the observer hub.
type streamRuntime struct {
	tune        tuning.Tuning
	log         *log.Logger
	sessionPath string

	ctrl     *streaming.Controller
	grid     *grid.Grid
	body     *streaming.Body
	store    tilestore.Store
	idx      *indexdb.SQLiteIndex
	shiftLog *persistlog.ShiftLogger
	obs      *observer.Server

	// startRegion is where the first window is centred: the region of the
	// start (or resumed) position.
	startRegion region.Location

	reporters streaming.Reporters
	ticks     atomic.Uint64
	lastStep  atomic.Int64 // nanoseconds
}

func buildRuntime(cfg serverRuntimeConfig, tune tuning.Tuning, logger *log.Logger) (*streamRuntime, error) {
	rt := &streamRuntime{tune: tune, log: logger}

	mode, err := cache.ParseMode(tune.Cache.Mode)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(mode)
	if err != nil {
		return nil, err
	}
	field, err := noise.New(tune.NoiseParams())
	if err != nil {
		return nil, err
	}
	geom := tune.Geometry()
	gen := &noise.Generator{
		Field:           field,
		Geometry:        geom,
		HeightmapOffset: tune.Heightmap.Offset,
		HeightmapScale:  tune.Heightmap.Scale,
	}

	deps := streaming.Deps{
		Cache:     c,
		Generator: gen,
		Logger:    logger,
		Reporter:  streaming.ReporterFunc(func(r streaming.Report) { rt.reporters.ReportShift(r) }),
	}
	if tune.Disk.Enabled {
		store, err := tilestore.Open(tune.Disk.Backend, tune.Disk.Root)
		if err != nil {
			return nil, fmt.Errorf("open tile store: %w", err)
		}
		rt.store = store
		deps.Store = store
		logger.Printf("tile store: %s at %s", tune.Disk.Backend, tune.Disk.Root)
	}

	start := cfg.Start
	if cfg.DataDir != "" {
		rt.sessionPath = filepath.Join(cfg.DataDir, "session.snap.zst")
		if cfg.Resume {
			if pos, ok := rt.resumePosition(); ok {
				start = pos
			}
		}
	}

	rt.startRegion = geom.ToRegionLocation(start)
	rt.grid = grid.New(geom)
	rt.body = streaming.NewBody(start)
	rt.body.SetVelocity(cfg.Walk)
	deps.Terrain = rt.grid
	deps.Observer = rt.body

	rt.ctrl, err = streaming.New(streaming.Config{
		Geometry:         geom,
		RegionLimit:      tune.RegionLimit,
		RegionShiftLimit: tune.RegionShiftLimit,
		Unload:           tune.Cache.Unload,
		Workers:          tune.Workers,
	}, deps)
	if err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.DataDir != "" {
		rt.shiftLog = persistlog.NewShiftLogger(cfg.DataDir, logger)
		rt.reporters = append(rt.reporters, rt.shiftLog)
		idx, err := openShiftIndex(cfg.DataDir, cfg.DisableDB)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("open shift index: %w", err)
		}
		if idx != nil {
			if err := idx.UpsertTuning(tune); err != nil {
				logger.Printf("shift index: upsert tuning: %v", err)
			}
			rt.idx = idx
			rt.reporters = append(rt.reporters, idx)
		}
	}
	rt.obs = observer.NewServer(rt.ctrl, rt.grid, rt.body, tune.TickRateHz, logger)
	rt.reporters = append(rt.reporters, rt.obs)
	return rt, nil
}

// Run populates the first window, then ticks the controller at the
// configured rate until ctx is done.
func (rt *streamRuntime) Run(ctx context.Context) error {
	if err := rt.start(ctx); err != nil {
		return err
	}
	hz := rt.tune.TickRateHz
	lim := rate.NewLimiter(rate.Limit(hz), 1)
	dt := 1.0 / float64(hz)
	for {
		if err := lim.Wait(ctx); err != nil {
			return ctx.Err()
		}
		rt.step(ctx, dt)
	}
}

// start commits the first window around the observer, so a resumed session
// far from (0,0) does not plan a throwaway window at the world origin.
func (rt *streamRuntime) start(ctx context.Context) error {
	return rt.ctrl.StartAt(ctx, rt.startRegion)
}

func (rt *streamRuntime) step(ctx context.Context, dt float64) {
	start := time.Now()
	rt.body.Advance(dt)
	rt.ctrl.Tick(ctx)
	rt.ticks.Add(1)
	rt.lastStep.Store(int64(time.Since(start)))
}

// Close drains any shift still in flight, then closes the sinks. It must run
// on the goroutine that ran Run.
func (rt *streamRuntime) Close() {
	if rt.ctrl != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := rt.ctrl.Wait(ctx); err != nil {
			rt.log.Printf("shutdown: shift still in flight: %v", err)
		}
		cancel()
	}
	if rt.ctrl != nil && rt.sessionPath != "" {
		if err := rt.saveSession(); err != nil {
			rt.log.Printf("save session: %v", err)
		}
	}
	if rt.shiftLog != nil {
		_ = rt.shiftLog.Close()
	}
	if rt.idx != nil {
		_ = rt.idx.Close()
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.log.Printf("close tile store: %v", err)
		}
	}
}

// resumePosition returns the absolute position saved by the previous run.
func (rt *streamRuntime) resumePosition() (mgl64.Vec3, bool) {
	sess, err := snapshot.ReadSession(rt.sessionPath)
	if err != nil {
		if !os.IsNotExist(err) {
			rt.log.Printf("resume: %v (starting fresh)", err)
		}
		return mgl64.Vec3{}, false
	}
	if sess.NoiseSeed != rt.tune.Noise.Seed || sess.NoiseKind != rt.tune.Noise.Kind {
		rt.log.Printf("resume: noise changed (%s/%d -> %s/%d); terrain will differ", sess.NoiseKind, sess.NoiseSeed, rt.tune.Noise.Kind, rt.tune.Noise.Seed)
	}
	rt.log.Printf("resume: observer at %v (saved %s, origin %v)", sess.Absolute, sess.Header.SavedAt.Format("2006-01-02T15:04:05Z"), sess.Origin)
	return mgl64.Vec3(sess.Absolute), true
}

func (rt *streamRuntime) saveSession() error {
	st := rt.ctrl.Status()
	pos := rt.body.Position()
	vel := rt.body.Velocity()
	abs := pos.Add(rt.tune.Geometry().Correction(st.Origin))
	return snapshot.WriteSession(rt.sessionPath, snapshot.SessionV1{
		Origin:        [2]int{st.Origin.X, st.Origin.Y},
		Position:      [3]float64(pos),
		Velocity:      [3]float64(vel),
		Absolute:      [3]float64(abs),
		RegionSize:    rt.tune.RegionSize,
		VertexSpacing: rt.tune.VertexSpacing,
		NoiseKind:     rt.tune.Noise.Kind,
		NoiseSeed:     rt.tune.Noise.Seed,
		Shifts:        st.Shifts,
	})
}
