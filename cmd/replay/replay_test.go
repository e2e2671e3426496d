package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/streaming"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/grid"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

func smallTuning(t *testing.T, root string) tuning.Tuning {
	t.Helper()
	tune := tuning.Defaults()
	tune.RegionSize = 8
	tune.RegionLimit = 3
	tune.RegionShiftLimit = 1
	tune.Disk.Enabled = true
	tune.Disk.Root = root
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		t.Fatalf("tuning: %v", err)
	}
	return tune
}

// record walks a disk-backed controller and returns what it reported.
func record(t *testing.T, tune tuning.Tuning, start region.Location, walk []region.Location) []streaming.Report {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := tilestore.Open(tune.Disk.Backend, tune.Disk.Root)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	gen, err := newGenerator(tune)
	if err != nil {
		t.Fatalf("generator: %v", err)
	}
	c, _ := cache.New(cache.ModeTile)
	body := streaming.NewBody(mgl64.Vec3{})
	var reports []streaming.Report
	ctrl, err := streaming.New(streaming.Config{
		Geometry:         tune.Geometry(),
		RegionLimit:      tune.RegionLimit,
		RegionShiftLimit: tune.RegionShiftLimit,
		Unload:           tune.Cache.Unload,
	}, streaming.Deps{
		Terrain:   grid.New(tune.Geometry()),
		Observer:  body,
		Cache:     c,
		Store:     store,
		Generator: gen,
		Reporter:  streaming.ReporterFunc(func(r streaming.Report) { reports = append(reports, r) }),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	d := tune.Geometry().RegionDistance()
	body.Teleport(tune.Geometry().Correction(start).Add(mgl64.Vec3{1, 0, 1}))
	if err := ctrl.StartAt(ctx, start); err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, loc := range walk {
		body.Teleport(mgl64.Vec3{float64(loc.X)*d + 1, 0, float64(loc.Y)*d + 1})
		ctrl.Tick(ctx)
		if err := ctrl.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	return reports
}

func TestReplayMatchesRecording(t *testing.T) {
	tune := smallTuning(t, filepath.Join(t.TempDir(), "tiles"))
	walk := []region.Location{{X: 2}, {X: 0, Y: 1}, {X: -2, Y: 2}, {X: 3, Y: -3}, {X: 1}, {X: 2}}
	first := record(t, tune, region.Location{}, walk)
	// A second session over the same store loads instead of generating.
	second := record(t, tune, region.Location{}, walk)
	if second[0].Loaded == 0 {
		t.Fatalf("second session should load from disk: %+v", second[0])
	}
	// A resumed session starts away from (0,0).
	third := record(t, tune, region.Location{X: 9, Y: -4}, walk)
	if third[0].Shift != (region.Location{X: 9, Y: -4}) {
		t.Fatalf("resumed session first shift: %+v", third[0])
	}
	reports := append(append(first, second...), third...)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	checked, mismatches, err := replayShifts(ctx, tune, reports)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != len(reports) {
		t.Fatalf("checked %d of %d", checked, len(reports))
	}
	if len(mismatches) != 0 {
		t.Fatalf("mismatches: %v", mismatches)
	}

	reports[3].Evicted++
	_, mismatches, err = replayShifts(ctx, tune, reports)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %v", mismatches)
	}

	n, bad, err := verifyTiles(ctx, tune)
	if err != nil {
		t.Fatalf("verifyTiles: %v", err)
	}
	if n == 0 || len(bad) != 0 {
		t.Fatalf("verifyTiles: n=%d bad=%v", n, bad)
	}
}
