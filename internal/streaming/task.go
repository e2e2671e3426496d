package streaming

import "github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"

// Action says where a tile for one window slot comes from.
type Action uint8

const (
	FromCache Action = iota + 1
	FromDisk
	Generate
)

func (a Action) String() string {
	switch a {
	case FromCache:
		return "FROM_CACHE"
	case FromDisk:
		return "FROM_DISK"
	case Generate:
		return "GENERATE"
	default:
		return "UNKNOWN"
	}
}

// Task is one window slot to fill during a shift.
type Task struct {
	Action  Action
	Real    region.Location
	Virtual region.Location
}

// Result is what a worker produced for a Task. Outcome differs from
// Task.Action when the worker had to fall back to generation.
type Result struct {
	Task    Task
	Tile    *region.Tile
	Outcome Action

	CacheMiss bool
	LoadErr   error
	SaveErr   error
}
