package streaming

import (
	"time"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Report describes one committed shift.
type Report struct {
	ID         string          `json:"id"`
	Seq        uint64          `json:"seq"`
	Shift      region.Location `json:"shift"`
	Origin     region.Location `json:"origin"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS float64         `json:"duration_ms"`

	Tiles         int `json:"tiles"`
	Generated     int `json:"generated"`
	Loaded        int `json:"loaded"`
	Cached        int `json:"cached"`
	Evicted       int `json:"evicted"`
	LoadFallbacks int `json:"load_fallbacks"`
	CacheMisses   int `json:"cache_misses"`
	SaveErrors    int `json:"save_errors"`

	TileErrors []TileError `json:"tile_errors,omitempty"`
}

type TileError struct {
	Virtual region.Location `json:"virtual"`
	Op      string          `json:"op"`
	Error   string          `json:"error"`
}

// Totals accumulates report counters over the controller's lifetime.
type Totals struct {
	Generated     uint64 `json:"generated"`
	Loaded        uint64 `json:"loaded"`
	Cached        uint64 `json:"cached"`
	Evicted       uint64 `json:"evicted"`
	LoadFallbacks uint64 `json:"load_fallbacks"`
	CacheMisses   uint64 `json:"cache_misses"`
	SaveErrors    uint64 `json:"save_errors"`
}

func (t *Totals) add(r Report) {
	t.Generated += uint64(r.Generated)
	t.Loaded += uint64(r.Loaded)
	t.Cached += uint64(r.Cached)
	t.Evicted += uint64(r.Evicted)
	t.LoadFallbacks += uint64(r.LoadFallbacks)
	t.CacheMisses += uint64(r.CacheMisses)
	t.SaveErrors += uint64(r.SaveErrors)
}

func buildReport(results []Result) Report {
	r := Report{Tiles: len(results)}
	for _, res := range results {
		switch res.Outcome {
		case FromCache:
			r.Cached++
		case FromDisk:
			r.Loaded++
		case Generate:
			r.Generated++
		}
		if res.CacheMiss {
			r.CacheMisses++
			r.TileErrors = append(r.TileErrors, TileError{Virtual: res.Task.Virtual, Op: "cache", Error: "planned as cached but not resident"})
		}
		if res.LoadErr != nil {
			r.LoadFallbacks++
			r.TileErrors = append(r.TileErrors, TileError{Virtual: res.Task.Virtual, Op: "load", Error: res.LoadErr.Error()})
		}
		if res.SaveErr != nil {
			r.SaveErrors++
			r.TileErrors = append(r.TileErrors, TileError{Virtual: res.Task.Virtual, Op: "save", Error: res.SaveErr.Error()})
		}
	}
	return r
}
