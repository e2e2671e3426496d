package tilestore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

const fileSuffix = ".tile.zst"

// FileStore keeps one compressed file per tile under root.
type FileStore struct {
	root string
}

func OpenFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(v region.Location) string {
	return filepath.Join(s.root, fmt.Sprintf("%d_%d%s", v.X, v.Y, fileSuffix))
}

func (s *FileStore) Exists(_ context.Context, v region.Location) (bool, error) {
	st, err := os.Stat(s.path(v))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !st.IsDir(), nil
}

func (s *FileStore) Load(_ context.Context, v region.Location) (region.Raster, error) {
	f, err := os.Open(s.path(v))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return region.Raster{}, ErrNotFound
		}
		return region.Raster{}, err
	}
	defer f.Close()

	r, err := readTile(f, v)
	if err != nil {
		return region.Raster{}, fmt.Errorf("tile %v: %w", v, err)
	}
	return r, nil
}

// Save writes to a temp file and renames it into place so concurrent
// readers never observe a partial tile.
func (s *FileStore) Save(_ context.Context, v region.Location, r region.Raster) error {
	if err := r.Valid(); err != nil {
		return fmt.Errorf("tile %v: %w", v, err)
	}
	tmp, err := os.CreateTemp(s.root, ".tile-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if err := writeTile(tmp, v, r); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("tile %v: %w", v, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, s.path(v)); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

func (s *FileStore) Keys(_ context.Context) ([]region.Location, error) {
	ents, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var keys []region.Location
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		if v, ok := parseTileName(e.Name()); ok {
			keys = append(keys, v)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

func (s *FileStore) Close() error { return nil }

func parseTileName(name string) (region.Location, bool) {
	if !strings.HasSuffix(name, fileSuffix) {
		return region.Location{}, false
	}
	xs, ys, ok := strings.Cut(strings.TrimSuffix(name, fileSuffix), "_")
	if !ok {
		return region.Location{}, false
	}
	x, err1 := strconv.Atoi(xs)
	y, err2 := strconv.Atoi(ys)
	if err1 != nil || err2 != nil {
		return region.Location{}, false
	}
	return region.Location{X: x, Y: y}, true
}
