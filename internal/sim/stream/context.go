package stream

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
	"endlessterrain.io/internal/sim/tuning"
)

// Requester starts background work. Completion callbacks must be invoked on
// the consumer goroutine, never on the worker.
type Requester interface {
	RequestMapData(centre mgl32.Vec2, done func(dispatch.Result[provider.MapData]))
	RequestMeshData(data provider.MapData, lod int, done func(dispatch.Result[*gen.MeshData]))
}

// Jobs is a Requester that the streamer can also drain once per tick.
type Jobs interface {
	Requester
	Drain() int
	Stats() dispatch.Stats
}

// Context carries everything chunks need from their surroundings: settings,
// the viewer, the job requester and the event sink. It replaces process-wide
// state; every chunk and slot holds a pointer to the one Context of its
// streamer. Only the consumer goroutine touches it.
type Context struct {
	RunID        string
	LODs         []tuning.LODInfo
	ChunkSize    int
	MaxViewDst   float32
	UniformScale float32

	Viewer *ViewerTracker
	Jobs   Requester
	Events EventSink

	tick uint64
}

func NewContext(t tuning.Tuning, jobs Requester, events EventSink) *Context {
	return &Context{
		LODs:         append([]tuning.LODInfo(nil), t.LODs...),
		ChunkSize:    t.ChunkSize(),
		MaxViewDst:   t.MaxViewDst(),
		UniformScale: t.Terrain.UniformScale,
		Viewer:       NewViewerTracker(t.Terrain.UniformScale, t.ViewerMoveThreshold),
		Jobs:         jobs,
		Events:       events,
	}
}

func (c *Context) Tick() uint64 { return c.tick }

// ChunksInView is the number of chunk rings swept around the viewer chunk.
func (c *Context) ChunksInView() int {
	if c.ChunkSize <= 0 {
		return 0
	}
	return int(math.Ceil(float64(c.MaxViewDst) / float64(c.ChunkSize)))
}

func (c *Context) emit(e Event) {
	if c.Events == nil {
		return
	}
	e.RunID = c.RunID
	e.Tick = c.tick
	c.Events.StreamEvent(e)
}

// SelectLOD returns the index of the first LOD row whose threshold dst does
// not exceed, or the last row when dst exceeds every earlier threshold.
func SelectLOD(lods []tuning.LODInfo, dst float32) int {
	idx := 0
	for i := 0; i < len(lods)-1; i++ {
		if dst > lods[i].VisibleDstThreshold {
			idx = i + 1
		} else {
			break
		}
	}
	return idx
}
