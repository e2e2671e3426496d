package main

import (
	"fmt"
	"net/http"
	"time"
)

// metricsHandler writes a minimal Prometheus exposition of the streaming state.
func (rt *streamRuntime) metricsHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		st := rt.ctrl.Status()
		mode := string(st.CacheMode)

		fmt.Fprintf(rw, "# HELP terrain_origin Current floating origin in region units.\n")
		fmt.Fprintf(rw, "# TYPE terrain_origin gauge\n")
		fmt.Fprintf(rw, "terrain_origin{axis=%q} %d\n", "x", st.Origin.X)
		fmt.Fprintf(rw, "terrain_origin{axis=%q} %d\n", "y", st.Origin.Y)

		fmt.Fprintf(rw, "# HELP terrain_shift_in_progress 1 while a shift is being prepared.\n")
		fmt.Fprintf(rw, "# TYPE terrain_shift_in_progress gauge\n")
		fmt.Fprintf(rw, "terrain_shift_in_progress %d\n", boolInt(st.InProgress))

		fmt.Fprintf(rw, "# HELP terrain_shifts_total Committed shifts, including the initial population.\n")
		fmt.Fprintf(rw, "# TYPE terrain_shifts_total counter\n")
		fmt.Fprintf(rw, "terrain_shifts_total %d\n", st.Shifts)

		fmt.Fprintf(rw, "# HELP terrain_cache_tiles Resident tiles in the cache.\n")
		fmt.Fprintf(rw, "# TYPE terrain_cache_tiles gauge\n")
		fmt.Fprintf(rw, "terrain_cache_tiles{mode=%q} %d\n", mode, st.CacheSize)

		fmt.Fprintf(rw, "# HELP terrain_window_regions Published regions.\n")
		fmt.Fprintf(rw, "# TYPE terrain_window_regions gauge\n")
		fmt.Fprintf(rw, "terrain_window_regions %d\n", rt.grid.Len())

		fmt.Fprintf(rw, "# HELP terrain_tiles_total Tiles produced by outcome.\n")
		fmt.Fprintf(rw, "# TYPE terrain_tiles_total counter\n")
		fmt.Fprintf(rw, "terrain_tiles_total{outcome=%q} %d\n", "generated", st.Totals.Generated)
		fmt.Fprintf(rw, "terrain_tiles_total{outcome=%q} %d\n", "loaded", st.Totals.Loaded)
		fmt.Fprintf(rw, "terrain_tiles_total{outcome=%q} %d\n", "cached", st.Totals.Cached)
		fmt.Fprintf(rw, "terrain_tiles_total{outcome=%q} %d\n", "evicted", st.Totals.Evicted)

		fmt.Fprintf(rw, "# HELP terrain_tile_errors_total Per-tile failures that were absorbed.\n")
		fmt.Fprintf(rw, "# TYPE terrain_tile_errors_total counter\n")
		fmt.Fprintf(rw, "terrain_tile_errors_total{op=%q} %d\n", "load", st.Totals.LoadFallbacks)
		fmt.Fprintf(rw, "terrain_tile_errors_total{op=%q} %d\n", "cache", st.Totals.CacheMisses)
		fmt.Fprintf(rw, "terrain_tile_errors_total{op=%q} %d\n", "save", st.Totals.SaveErrors)

		if st.Last != nil {
			fmt.Fprintf(rw, "# HELP terrain_last_shift_ms Duration of the last shift in milliseconds.\n")
			fmt.Fprintf(rw, "# TYPE terrain_last_shift_ms gauge\n")
			fmt.Fprintf(rw, "terrain_last_shift_ms %.3f\n", st.Last.DurationMS)
		}

		fmt.Fprintf(rw, "# HELP terrain_host_ticks_total Host loop ticks.\n")
		fmt.Fprintf(rw, "# TYPE terrain_host_ticks_total counter\n")
		fmt.Fprintf(rw, "terrain_host_ticks_total %d\n", rt.ticks.Load())

		fmt.Fprintf(rw, "# HELP terrain_host_step_ms Last host tick duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE terrain_host_step_ms gauge\n")
		fmt.Fprintf(rw, "terrain_host_step_ms %.3f\n", float64(rt.lastStep.Load())/float64(time.Millisecond))

		fmt.Fprintf(rw, "# HELP terrain_observer_sessions Connected observer sessions.\n")
		fmt.Fprintf(rw, "# TYPE terrain_observer_sessions gauge\n")
		fmt.Fprintf(rw, "terrain_observer_sessions %d\n", rt.obs.Sessions())

		fmt.Fprintf(rw, "# HELP terrain_observer_dropped_total Observer messages dropped for slow sessions.\n")
		fmt.Fprintf(rw, "# TYPE terrain_observer_dropped_total counter\n")
		fmt.Fprintf(rw, "terrain_observer_dropped_total %d\n", rt.obs.Dropped())

		if rt.idx != nil {
			s := rt.idx.Stats()
			fmt.Fprintf(rw, "# HELP terrain_index_queue_depth Shift index queue depth.\n")
			fmt.Fprintf(rw, "# TYPE terrain_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "terrain_index_queue_depth %d\n", s.QueueDepth)
			fmt.Fprintf(rw, "# HELP terrain_index_dropped_total Shift reports dropped by the index.\n")
			fmt.Fprintf(rw, "# TYPE terrain_index_dropped_total counter\n")
			fmt.Fprintf(rw, "terrain_index_dropped_total %d\n", s.DropShiftTotal)
		}
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
