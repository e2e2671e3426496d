package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	persistlog "github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/log"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/tilestore"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/noise"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/tuning"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "tiles":
			tilesCmd(os.Args[2:])
			return
		case "shifts":
			shiftsCmd(os.Args[2:])
			return
		case "log":
			logCmd(os.Args[2:])
			return
		case "sample":
			sampleCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		case "bootstrap":
			bootstrapCmd(os.Args[2:])
			return
		}
	}
	fmt.Fprintln(os.Stderr, "usage: admin tiles|shifts|log|sample|state|bootstrap [flags]")
	os.Exit(2)
}

func loadTuning(path string) tuning.Tuning {
	t, err := tuning.Load(path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		t = tuning.Defaults()
		t.Normalize()
	}
	return t
}

func tilesCmd(args []string) {
	fs := flag.NewFlagSet("tiles", flag.ExitOnError)
	configPath := fs.String("config", "./configs/streaming.yaml", "path to streaming.yaml")
	backend := fs.String("backend", "", "tile store backend: file|sqlite (default: from config)")
	root := fs.String("root", "", "tile store root (default: from config)")
	_ = fs.Parse(args)

	t := loadTuning(*configPath)
	if strings.TrimSpace(*backend) == "" {
		*backend = t.Disk.Backend
	}
	if strings.TrimSpace(*root) == "" {
		*root = t.Disk.Root
	}

	store, err := tilestore.Open(*backend, *root)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer store.Close()

	lister, ok := store.(tilestore.Lister)
	if !ok {
		fmt.Fprintln(os.Stderr, "backend cannot list tiles:", *backend)
		os.Exit(1)
	}
	keys, err := lister.Keys(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "list:", err)
		os.Exit(1)
	}
	for _, k := range keys {
		fmt.Printf("%d %d\n", k.X, k.Y)
	}
	fmt.Fprintf(os.Stderr, "%d tiles in %s (%s)\n", len(keys), *root, *backend)
}

func logCmd(args []string) {
	fs := flag.NewFlagSet("log", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	errorsOnly := fs.Bool("errors", false, "only print shifts with tile errors")
	_ = fs.Parse(args)

	reports, err := persistlog.ReadShifts(*dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, r := range reports {
		if *errorsOnly && len(r.TileErrors) == 0 {
			continue
		}
		_ = enc.Encode(r)
	}
}

type sampleStats struct {
	Virtual  region.Location `json:"virtual"`
	Size     int             `json:"size"`
	Min      float32         `json:"min"`
	Max      float32         `json:"max"`
	Mean     float64         `json:"mean"`
	Corner   float32         `json:"corner"`
	Noise    string          `json:"noise"`
	Seed     int64           `json:"seed"`
	Spacing  float64         `json:"vertex_spacing"`
	Distance float64         `json:"region_distance"`
}

func sampleCmd(args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	configPath := fs.String("config", "./configs/streaming.yaml", "path to streaming.yaml")
	at := fs.String("at", "0,0", "virtual region location x,y")
	_ = fs.Parse(args)

	t := loadTuning(*configPath)
	v, err := parseLocation(*at)
	if err != nil {
		fmt.Fprintln(os.Stderr, "bad -at:", err)
		os.Exit(2)
	}
	st, err := sampleTile(t, v)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sample:", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(st)
}

func sampleTile(t tuning.Tuning, v region.Location) (sampleStats, error) {
	field, err := noise.New(t.NoiseParams())
	if err != nil {
		return sampleStats{}, err
	}
	gen := &noise.Generator{
		Field:           field,
		Geometry:        t.Geometry(),
		HeightmapOffset: t.Heightmap.Offset,
		HeightmapScale:  t.Heightmap.Scale,
	}
	r := gen.Generate(v)
	lo, hi := r.MinMax()
	var sum float64
	for _, s := range r.Samples {
		sum += float64(s)
	}
	return sampleStats{
		Virtual:  v,
		Size:     r.Size,
		Min:      lo,
		Max:      hi,
		Mean:     sum / float64(len(r.Samples)),
		Corner:   r.At(0, 0),
		Noise:    t.Noise.Kind,
		Seed:     t.Noise.Seed,
		Spacing:  t.VertexSpacing,
		Distance: t.Geometry().RegionDistance(),
	}, nil
}

func parseLocation(s string) (region.Location, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 2 {
		return region.Location{}, fmt.Errorf("expected x,y")
	}
	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return region.Location{}, err
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return region.Location{}, err
	}
	return region.Location{X: x, Y: y}, nil
}
