package main

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	persistlog "github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/log"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

func newTestRuntime(t *testing.T) *streamRuntime {
	t.Helper()
	dir := t.TempDir()
	tune := tuning.Defaults()
	tune.RegionSize = 16
	tune.RegionLimit = 2
	tune.RegionShiftLimit = 1
	tune.Disk.Enabled = true
	tune.Disk.Root = filepath.Join(dir, "tiles")
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		t.Fatalf("tuning: %v", err)
	}
	rt, err := buildRuntime(serverRuntimeConfig{DataDir: dir, Walk: mgl64.Vec3{16, 0, 0}}, tune, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := rt.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	return rt
}

func TestRuntimeWalksAndShifts(t *testing.T) {
	rt := newTestRuntime(t)
	dataDir := filepath.Dir(rt.tune.Disk.Root)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	// 16 units/s for 2.5s of simulated time crosses two regions of 16.
	for i := 0; i < 5; i++ {
		rt.step(ctx, 0.5)
		if err := rt.ctrl.Wait(ctx); err != nil {
			t.Fatalf("wait: %v", err)
		}
	}
	st := rt.ctrl.Status()
	if st.Shifts < 2 || st.Origin.X != 2 {
		t.Fatalf("status after walk: %+v", st)
	}
	if rt.ticks.Load() != 5 {
		t.Fatalf("ticks: %d", rt.ticks.Load())
	}
	rt.Close()

	reports, err := persistlog.ReadShifts(dataDir)
	if err != nil {
		t.Fatalf("ReadShifts: %v", err)
	}
	if uint64(len(reports)) != st.Shifts {
		t.Fatalf("shift log has %d reports, status says %d", len(reports), st.Shifts)
	}
}

func TestMetricsAndState(t *testing.T) {
	rt := newTestRuntime(t)
	defer rt.Close()

	rec := httptest.NewRecorder()
	rt.metricsHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"terrain_shifts_total 1",
		`terrain_cache_tiles{mode="tile"} 16`,
		`terrain_tiles_total{outcome="generated"} 16`,
		"terrain_window_regions 16",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "127.0.0.1:4000"
	rec = httptest.NewRecorder()
	rt.stateHandler()(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("state status %d", rec.Code)
	}
	var resp struct {
		Status struct {
			Shifts uint64 `json:"shifts"`
		} `json:"status"`
		Height *float32 `json:"height"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status.Shifts != 1 || resp.Height == nil {
		t.Fatalf("state: %+v", resp)
	}

	req = httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "10.1.2.3:4000"
	rec = httptest.NewRecorder()
	rt.stateHandler()(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-loopback state status %d", rec.Code)
	}
}

func TestParseXZ(t *testing.T) {
	v, err := parseXZ(" 3.5, -2 ")
	if err != nil || v != (mgl64.Vec3{3.5, 0, -2}) {
		t.Fatalf("parseXZ: %v %v", v, err)
	}
	if _, err := parseXZ("1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRuntimeResumesSession(t *testing.T) {
	rt := newTestRuntime(t)
	dataDir := filepath.Dir(rt.tune.Disk.Root)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rt.body.Teleport(mgl64.Vec3{40, 0, -3})
	rt.step(ctx, 0)
	if err := rt.ctrl.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if rt.ctrl.Status().Origin.X != 2 {
		t.Fatalf("origin: %v", rt.ctrl.Status().Origin)
	}
	rt.Close()

	rt2, err := buildRuntime(serverRuntimeConfig{DataDir: dataDir, Resume: true}, rt.tune, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("buildRuntime: %v", err)
	}
	defer rt2.Close()
	if got := rt2.body.Position(); got != (mgl64.Vec3{40, 0, -3}) {
		t.Fatalf("resumed position: %v", got)
	}
	if rt2.startRegion != (region.Location{X: 2, Y: -1}) {
		t.Fatalf("start region: %v", rt2.startRegion)
	}
	if err := rt2.start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	// The first window is already around the observer.
	st := rt2.ctrl.Status()
	if st.Origin != rt.ctrl.Status().Origin || st.Shifts != 1 {
		t.Fatalf("resumed status %+v, want origin %v after one shift", st, rt.ctrl.Status().Origin)
	}
	if st.Last == nil || st.Last.Loaded != st.Last.Tiles {
		t.Fatalf("resumed window should come from disk: %+v", st.Last)
	}
	if got := rt2.body.Position(); got != rt.body.Position() {
		t.Fatalf("resumed frame position %v, want %v", got, rt.body.Position())
	}
	rt2.step(ctx, 0)
	if err := rt2.ctrl.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if st := rt2.ctrl.Status(); st.Shifts != 1 {
		t.Fatalf("first tick after resume shifted again: %+v", st)
	}
}
