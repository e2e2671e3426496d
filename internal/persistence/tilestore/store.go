package tilestore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// ErrNotFound is returned by Load when no raster is stored for a location.
var ErrNotFound = errors.New("tile not found")

// Store persists rasters keyed by virtual location. Implementations must be
// safe for concurrent use by the tile workers.
type Store interface {
	Exists(ctx context.Context, virtual region.Location) (bool, error)
	Load(ctx context.Context, virtual region.Location) (region.Raster, error)
	Save(ctx context.Context, virtual region.Location, r region.Raster) error
	Close() error
}

// Lister is implemented by stores that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context) ([]region.Location, error)
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend rooted at root.
func Open(backend, root string) (Store, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, fmt.Errorf("empty storage root")
	}
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFile:
		return OpenFileStore(root)
	case BackendSQLite:
		return OpenSQLite(filepath.Join(root, "tiles.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported tile store backend: %s", backend)
	}
}
