package streamtest

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
	"endlessterrain.io/internal/sim/tuning"
)

// Harness drives a Streamer through exported APIs only:
// - jobs never finish until the test completes them through Jobs
// - Tick drains whatever the test completed since the previous tick
// - every event is kept in Events
type Harness struct {
	T        *testing.T
	Tuning   tuning.Tuning
	Jobs     *ManualJobs
	Events   *Recorder
	Streamer *stream.Streamer
}

func NewHarness(t *testing.T, tu tuning.Tuning) *Harness {
	t.Helper()
	jobs := &ManualJobs{}
	rec := &Recorder{}
	return &Harness{
		T:        t,
		Tuning:   tu,
		Jobs:     jobs,
		Events:   rec,
		Streamer: stream.New(tu, jobs, rec, nil),
	}
}

// SmallTuning returns a unit-scale configuration with the given LOD table.
// The move threshold is large so tests decide when sweeps happen.
func SmallTuning(lods ...tuning.LODInfo) tuning.Tuning {
	tu := tuning.Defaults()
	tu.Terrain.UniformScale = 1
	tu.ViewerMoveThreshold = 500
	tu.LODs = lods
	return tu
}

func (h *Harness) Start(x, z float32) stream.SweepStats {
	return h.Streamer.Start(mgl32.Vec3{x, 0, z})
}

func (h *Harness) Tick(x, z float32) stream.TickResult {
	return h.Streamer.Tick(mgl32.Vec3{x, 0, z})
}

func (h *Harness) Chunk(x, y int) *stream.Chunk {
	h.T.Helper()
	c, ok := h.Streamer.Registry().Lookup(stream.ChunkCoord{X: x, Y: y})
	if !ok {
		h.T.Fatalf("chunk (%d,%d) not registered", x, y)
	}
	return c
}

// CompleteMaps finishes every open heightmap job with a flat heightmap.
func (h *Harness) CompleteMaps() int {
	open := h.Jobs.OpenMapJobs()
	for _, j := range open {
		j.Complete(FlatMap(5, 0.5))
	}
	return len(open)
}

// CompleteMapFor finishes the open heightmap job of one chunk.
func (h *Harness) CompleteMapFor(c *stream.Chunk) {
	h.T.Helper()
	for _, j := range h.Jobs.OpenMapJobs() {
		if j.Centre == c.Position() {
			j.Complete(FlatMap(5, 0.5))
			return
		}
	}
	h.T.Fatalf("no open map job for chunk %s", c.Coord())
}

// CompleteMeshes finishes every open mesh job for lod (all LODs when lod is
// negative) with a stub mesh tagged by its LOD.
func (h *Harness) CompleteMeshes(lod int) int {
	open := h.Jobs.OpenMeshJobs(lod)
	for _, j := range open {
		j.Complete(&gen.MeshData{LOD: j.LOD})
	}
	return len(open)
}

func FlatMap(n int, v float32) provider.MapData {
	m := make([][]float32, n)
	for i := range m {
		m[i] = make([]float32, n)
		for j := range m[i] {
			m[i][j] = v
		}
	}
	return provider.MapData{Heightmap: m}
}

// Recorder keeps every stream event in emission order.
type Recorder struct {
	Events []stream.Event
}

func (r *Recorder) StreamEvent(e stream.Event) {
	r.Events = append(r.Events, e)
}

func (r *Recorder) Reset() { r.Events = nil }

func (r *Recorder) Count(kind stream.EventKind) int {
	n := 0
	for _, e := range r.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (r *Recorder) Of(kind stream.EventKind) []stream.Event {
	var out []stream.Event
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
