package tilestore

import (
	"context"
	"sort"
	"sync"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// MemStore is an in-process Store. FailSave and FailLoad, when set, let
// callers inject I/O errors per location.
type MemStore struct {
	FailSave func(v region.Location) error
	FailLoad func(v region.Location) error

	mu      sync.Mutex
	rasters map[region.Location]region.Raster
	saves   int
	loads   int
}

func NewMemStore() *MemStore {
	return &MemStore{rasters: map[region.Location]region.Raster{}}
}

func (s *MemStore) Exists(_ context.Context, v region.Location) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rasters[v]
	return ok, nil
}

func (s *MemStore) Load(_ context.Context, v region.Location) (region.Raster, error) {
	s.mu.Lock()
	s.loads++
	r, ok := s.rasters[v]
	s.mu.Unlock()
	if s.FailLoad != nil {
		if err := s.FailLoad(v); err != nil {
			return region.Raster{}, err
		}
	}
	if !ok {
		return region.Raster{}, ErrNotFound
	}
	return r, nil
}

func (s *MemStore) Save(_ context.Context, v region.Location, r region.Raster) error {
	if s.FailSave != nil {
		if err := s.FailSave(v); err != nil {
			return err
		}
	}
	s.mu.Lock()
	s.rasters[v] = r
	s.saves++
	s.mu.Unlock()
	return nil
}

// Put stores a raster without counting it as a Save.
func (s *MemStore) Put(v region.Location, r region.Raster) {
	s.mu.Lock()
	s.rasters[v] = r
	s.mu.Unlock()
}

// Delete removes a raster while leaving nothing else changed.
func (s *MemStore) Delete(v region.Location) {
	s.mu.Lock()
	delete(s.rasters, v)
	s.mu.Unlock()
}

func (s *MemStore) Counts() (saves, loads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves, s.loads
}

func (s *MemStore) Keys(_ context.Context) ([]region.Location, error) {
	s.mu.Lock()
	keys := make([]region.Location, 0, len(s.rasters))
	for k := range s.rasters {
		keys = append(keys, k)
	}
	s.mu.Unlock()
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys, nil
}

func (s *MemStore) Close() error { return nil }
