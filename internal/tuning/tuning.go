package tuning

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/cache"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

const (
	MinRegionSize = 8
	MaxRegionSize = 2048
)

// Tuning is read once at startup and never changes afterwards.
type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	RegionSize       int     `yaml:"region_size" json:"region_size"`
	VertexSpacing    float64 `yaml:"vertex_spacing" json:"vertex_spacing"`
	RegionLimit      int     `yaml:"region_limit" json:"region_limit"`
	RegionShiftLimit int     `yaml:"region_shift_limit" json:"region_shift_limit"`
	Workers          int     `yaml:"workers" json:"workers"`

	Cache     CacheTuning     `yaml:"cache" json:"cache"`
	Disk      DiskTuning      `yaml:"disk" json:"disk"`
	Heightmap HeightmapTuning `yaml:"heightmap" json:"heightmap"`
	Noise     NoiseTuning     `yaml:"noise" json:"noise"`
}

type CacheTuning struct {
	Mode   string `yaml:"mode" json:"mode"`
	Unload bool   `yaml:"unload" json:"unload"`
}

type DiskTuning struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Backend string `yaml:"backend" json:"backend"`
	Root    string `yaml:"root" json:"root"`
}

type HeightmapTuning struct {
	Offset float64 `yaml:"offset" json:"offset"`
	Scale  float64 `yaml:"scale" json:"scale"`
}

type NoiseTuning struct {
	Kind       string  `yaml:"kind" json:"kind"`
	Seed       int64   `yaml:"seed" json:"seed"`
	Frequency  float64 `yaml:"frequency" json:"frequency"`
	Octaves    int     `yaml:"octaves" json:"octaves"`
	Lacunarity float64 `yaml:"lacunarity" json:"lacunarity"`
	Gain       float64 `yaml:"gain" json:"gain"`
}

func Defaults() Tuning {
	np := noise.DefaultParams()
	return Tuning{
		TickRateHz:       30,
		RegionSize:       256,
		VertexSpacing:    1,
		RegionLimit:      4,
		RegionShiftLimit: 2,
		Cache: CacheTuning{
			Mode:   string(cache.ModeTile),
			Unload: true,
		},
		Disk: DiskTuning{
			Enabled: false,
			Backend: tilestore.BackendFile,
			Root:    "./data/tiles",
		},
		Heightmap: HeightmapTuning{
			Offset: 0.5,
			Scale:  150,
		},
		Noise: NoiseTuning{
			Kind:       np.Kind,
			Seed:       np.Seed,
			Frequency:  np.Frequency,
			Octaves:    np.Octaves,
			Lacunarity: np.Lacunarity,
			Gain:       np.Gain,
		},
	}
}

// Load reads a YAML file over the defaults. Omitted keys keep their default.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		t.Normalize()
		return t, t.Validate()
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("streaming.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("streaming.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.Cache.Mode = strings.ToLower(strings.TrimSpace(t.Cache.Mode))
	if t.Cache.Mode == "" {
		t.Cache.Mode = string(cache.ModeTile)
	}
	t.Disk.Backend = strings.ToLower(strings.TrimSpace(t.Disk.Backend))
	if t.Disk.Backend == "" {
		t.Disk.Backend = tilestore.BackendFile
	}
	t.Disk.Root = strings.TrimSpace(t.Disk.Root)
	t.Noise.Kind = strings.ToLower(strings.TrimSpace(t.Noise.Kind))
	if t.Noise.Kind == "" {
		t.Noise.Kind = noise.KindSimplex
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 30
	}
}

// Validate rejects configurations the streaming engine cannot run with.
func (t Tuning) Validate() error {
	var errs []error
	if !region.IsPowerOfTwo(t.RegionSize) || t.RegionSize < MinRegionSize || t.RegionSize > MaxRegionSize {
		errs = append(errs, fmt.Errorf("region_size must be a power of two in [%d, %d], got %d", MinRegionSize, MaxRegionSize, t.RegionSize))
	}
	if t.VertexSpacing <= 0 {
		errs = append(errs, fmt.Errorf("vertex_spacing must be > 0, got %v", t.VertexSpacing))
	}
	if t.RegionLimit < 1 {
		errs = append(errs, fmt.Errorf("region_limit must be >= 1, got %d", t.RegionLimit))
	}
	if t.RegionShiftLimit < 0 || t.RegionShiftLimit >= t.RegionLimit {
		errs = append(errs, fmt.Errorf("region_shift_limit must be in [0, region_limit), got %d (region_limit %d)", t.RegionShiftLimit, t.RegionLimit))
	}
	if t.Workers < 0 {
		errs = append(errs, fmt.Errorf("workers must be >= 0, got %d", t.Workers))
	}
	if _, err := cache.ParseMode(t.Cache.Mode); err != nil {
		errs = append(errs, err)
	}
	if t.Disk.Enabled {
		switch t.Disk.Backend {
		case tilestore.BackendFile, tilestore.BackendSQLite:
		default:
			errs = append(errs, fmt.Errorf("unsupported disk backend %q", t.Disk.Backend))
		}
		if t.Disk.Root == "" {
			errs = append(errs, fmt.Errorf("disk.root is required when disk is enabled"))
		}
	}
	switch t.Noise.Kind {
	case noise.KindSimplex, noise.KindPerlin:
	default:
		errs = append(errs, fmt.Errorf("unknown noise kind %q", t.Noise.Kind))
	}
	if t.Noise.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("noise.frequency must be > 0, got %v", t.Noise.Frequency))
	}
	return errors.Join(errs...)
}

func (t Tuning) Geometry() region.Geometry {
	return region.Geometry{RegionSize: t.RegionSize, VertexSpacing: t.VertexSpacing}
}

func (t Tuning) NoiseParams() noise.Params {
	return noise.Params{
		Kind:       t.Noise.Kind,
		Seed:       t.Noise.Seed,
		Frequency:  t.Noise.Frequency,
		Octaves:    t.Noise.Octaves,
		Lacunarity: t.Noise.Lacunarity,
		Gain:       t.Noise.Gain,
	}
}
