package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	persistlog "github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/log"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/streaming"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/grid"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/streaming.yaml", "path to streaming.yaml used by the recorded run")
		dataDir    = flag.String("data", "./data", "runtime data directory containing shifts/")
		verifyDisk = flag.Bool("tiles", false, "also regenerate every stored tile and compare it with the stored copy")
	)
	flag.Parse()

	tune, err := tuning.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
		tune.Normalize()
	}

	reports, err := persistlog.ReadShifts(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read shift log:", err)
		os.Exit(1)
	}
	if len(reports) == 0 {
		fmt.Fprintln(os.Stderr, "no shifts recorded in", *dataDir)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	checked, mismatches, err := replayShifts(ctx, tune, reports)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	for _, m := range mismatches {
		fmt.Println(m)
	}
	if len(mismatches) > 0 {
		fmt.Fprintf(os.Stderr, "replay failed: %d mismatches in %d shifts\n", len(mismatches), checked)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d shifts\n", checked)

	if !*verifyDisk {
		return
	}
	if !tune.Disk.Enabled {
		fmt.Fprintln(os.Stderr, "-tiles needs disk.enabled in the config")
		os.Exit(2)
	}
	n, bad, err := verifyTiles(ctx, tune)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify tiles:", err)
		os.Exit(1)
	}
	for _, v := range bad {
		fmt.Printf("tile %v differs from regeneration\n", v)
	}
	if len(bad) > 0 {
		os.Exit(1)
	}
	fmt.Printf("tiles ok: checked=%d\n", n)
}

func newGenerator(tune tuning.Tuning) (*noise.Generator, error) {
	field, err := noise.New(tune.NoiseParams())
	if err != nil {
		return nil, err
	}
	return &noise.Generator{
		Field:           field,
		Geometry:        tune.Geometry(),
		HeightmapOffset: tune.Heightmap.Offset,
		HeightmapScale:  tune.Heightmap.Scale,
	}, nil
}

type replaySession struct {
	ctrl *streaming.Controller
	body *streaming.Body
	geom region.Geometry
	last streaming.Report
}

// newReplaySession starts a controller whose first window is centred on
// origin, as a resumed run does.
func newReplaySession(ctx context.Context, tune tuning.Tuning, gen *noise.Generator, origin region.Location) (*replaySession, error) {
	mode, err := cache.ParseMode(tune.Cache.Mode)
	if err != nil {
		return nil, err
	}
	c, err := cache.New(mode)
	if err != nil {
		return nil, err
	}
	geom := tune.Geometry()
	s := &replaySession{body: streaming.NewBody(mgl64.Vec3{}), geom: geom}
	s.ctrl, err = streaming.New(streaming.Config{
		Geometry:         geom,
		RegionLimit:      tune.RegionLimit,
		RegionShiftLimit: tune.RegionShiftLimit,
		Unload:           tune.Cache.Unload,
		Workers:          tune.Workers,
	}, streaming.Deps{
		Terrain:   grid.New(geom),
		Observer:  s.body,
		Cache:     c,
		Generator: gen,
		Reporter:  streaming.ReporterFunc(func(r streaming.Report) { s.last = r }),
	})
	if err != nil {
		return nil, err
	}
	s.body.Teleport(s.centre(origin))
	if err := s.ctrl.StartAt(ctx, origin); err != nil {
		return nil, err
	}
	return s, nil
}

// centre is the middle of region loc in the current frame.
func (s *replaySession) centre(loc region.Location) mgl64.Vec3 {
	half := s.geom.RegionDistance() / 2
	return s.geom.Correction(loc).Add(mgl64.Vec3{half, 0, half})
}

// shift drives the controller into the recorded shift: first back to the
// origin region so the tracked location resets, then into the target region.
func (s *replaySession) shift(ctx context.Context, loc region.Location) error {
	s.body.Teleport(s.centre(region.Location{}))
	s.ctrl.Tick(ctx)
	s.body.Teleport(s.centre(loc))
	s.ctrl.Tick(ctx)
	return s.ctrl.Wait(ctx)
}

// replayShifts re-runs the recorded shifts on a fresh in-memory controller
// and compares what was planned. A report with Seq 1 starts a new session
// centred where the recorded one started.
// Disk is not replayed, so loaded tiles count as generated.
func replayShifts(ctx context.Context, tune tuning.Tuning, reports []streaming.Report) (int, []string, error) {
	gen, err := newGenerator(tune)
	if err != nil {
		return 0, nil, err
	}
	var (
		sess       *replaySession
		mismatches []string
		checked    int
	)
	for _, want := range reports {
		if want.Seq == 1 || sess == nil {
			if sess, err = newReplaySession(ctx, tune, gen, want.Shift); err != nil {
				return checked, mismatches, err
			}
		} else if err := sess.shift(ctx, want.Shift); err != nil {
			return checked, mismatches, err
		}
		got := sess.last
		checked++
		mismatches = append(mismatches, compareReport(got, want)...)
	}
	return checked, mismatches, nil
}

func compareReport(got, want streaming.Report) []string {
	var out []string
	check := func(field string, g, w any) {
		if g != w {
			out = append(out, fmt.Sprintf("shift %s (seq %d): %s got=%v want=%v", want.ID, want.Seq, field, g, w))
		}
	}
	check("origin", got.Origin, want.Origin)
	check("tiles", got.Tiles, want.Tiles)
	check("cached", got.Cached, want.Cached+want.CacheMisses)
	check("generated", got.Generated, want.Generated+want.Loaded-want.CacheMisses)
	check("evicted", got.Evicted, want.Evicted)
	return out
}

func verifyTiles(ctx context.Context, tune tuning.Tuning) (int, []region.Location, error) {
	gen, err := newGenerator(tune)
	if err != nil {
		return 0, nil, err
	}
	store, err := tilestore.Open(tune.Disk.Backend, tune.Disk.Root)
	if err != nil {
		return 0, nil, err
	}
	defer store.Close()
	lister, ok := store.(tilestore.Lister)
	if !ok {
		return 0, nil, fmt.Errorf("backend %s cannot list tiles", tune.Disk.Backend)
	}
	keys, err := lister.Keys(ctx)
	if err != nil {
		return 0, nil, err
	}
	var bad []region.Location
	for _, k := range keys {
		r, err := store.Load(ctx, k)
		if err != nil || !r.Equal(gen.Generate(k)) {
			bad = append(bad, k)
		}
	}
	return len(keys), bad, nil
}
