package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/persistence/indexdb"
)

// openShiftIndex returns nil when indexing is disabled by flag or by
// TS_INDEX_BACKEND.
func openShiftIndex(dataDir string, disableDB bool) (*indexdb.SQLiteIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("TS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "shifts.sqlite"))
	default:
		return nil, fmt.Errorf("unsupported TS_INDEX_BACKEND: %s", backend)
	}
}
