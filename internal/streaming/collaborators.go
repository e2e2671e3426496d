package streaming

import (
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/Inzarcon/Terrain3D-InfiniteProceduralDemo/internal/terrain/region"
)

// Terrain receives the committed window. AddTile calls for one window are
// followed by a single Refresh.
type Terrain interface {
	AddTile(t *region.Tile)
	Refresh()
	RegionLocation(pos mgl64.Vec3) region.Location
}

// Observer is the tracked entity the window follows.
type Observer interface {
	Position() mgl64.Vec3
	// CorrectPosition subtracts offset from the world position. It is called
	// exactly once per committed shift.
	CorrectPosition(offset mgl64.Vec3)
}

// Reporter receives one report per committed shift.
type Reporter interface {
	ReportShift(r Report)
}

type ReporterFunc func(r Report)

func (f ReporterFunc) ReportShift(r Report) { f(r) }

// Reporters fans a report out to every non-nil reporter.
type Reporters []Reporter

func (rs Reporters) ReportShift(r Report) {
	for _, x := range rs {
		if x != nil {
			x.ReportShift(r)
		}
	}
}

// Body is a minimal Observer: a point moving at a constant velocity.
type Body struct {
	mu  sync.Mutex
	pos mgl64.Vec3
	vel mgl64.Vec3
}

func NewBody(pos mgl64.Vec3) *Body { return &Body{pos: pos} }

func (b *Body) Position() mgl64.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pos
}

func (b *Body) CorrectPosition(offset mgl64.Vec3) {
	b.mu.Lock()
	b.pos = b.pos.Sub(offset)
	b.mu.Unlock()
}

func (b *Body) Teleport(pos mgl64.Vec3) {
	b.mu.Lock()
	b.pos = pos
	b.mu.Unlock()
}

func (b *Body) SetVelocity(v mgl64.Vec3) {
	b.mu.Lock()
	b.vel = v
	b.mu.Unlock()
}

func (b *Body) Velocity() mgl64.Vec3 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.vel
}

// Advance moves the body by velocity*dt seconds.
func (b *Body) Advance(dt float64) {
	b.mu.Lock()
	b.pos = b.pos.Add(b.vel.Mul(dt))
	b.mu.Unlock()
}
