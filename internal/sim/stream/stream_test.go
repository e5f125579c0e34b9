package stream

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
	"endlessterrain.io/internal/sim/tuning"
)

type countingRequester struct {
	maps   int
	meshes []func(dispatch.Result[*gen.MeshData])
}

func (r *countingRequester) RequestMapData(mgl32.Vec2, func(dispatch.Result[provider.MapData])) {
	r.maps++
}

func (r *countingRequester) RequestMeshData(_ provider.MapData, _ int, done func(dispatch.Result[*gen.MeshData])) {
	r.meshes = append(r.meshes, done)
}

func TestSelectLOD(t *testing.T) {
	lods := []tuning.LODInfo{
		{LOD: 0, VisibleDstThreshold: 300},
		{LOD: 1, VisibleDstThreshold: 600},
		{LOD: 2, VisibleDstThreshold: 1200},
	}
	cases := []struct {
		dst  float32
		want int
	}{
		{0, 0},
		{250, 0},
		{300, 0},
		{300.5, 1},
		{450, 1},
		{900, 2},
		{5000, 2},
	}
	for _, tc := range cases {
		if got := SelectLOD(lods, tc.dst); got != tc.want {
			t.Fatalf("SelectLOD(%v)=%d want %d", tc.dst, got, tc.want)
		}
	}
	if got := SelectLOD(lods[:1], 9999); got != 0 {
		t.Fatalf("single row table should always select 0, got %d", got)
	}
}

func TestBoundsDistance(t *testing.T) {
	b := NewBounds(mgl32.Vec2{0, 0}, 238)
	if d := b.Distance(mgl32.Vec2{50, -100}); d != 0 {
		t.Fatalf("inside distance=%v want 0", d)
	}
	if d := b.Distance(mgl32.Vec2{119 + 30, 0}); d != 30 {
		t.Fatalf("edge distance=%v want 30", d)
	}
	if d := b.SqrDistance(mgl32.Vec2{-119 - 3, 119 + 4}); d != 25 {
		t.Fatalf("corner sqr distance=%v want 25", d)
	}
}

func TestViewerChunk(t *testing.T) {
	cases := []struct {
		pos  mgl32.Vec2
		want ChunkCoord
	}{
		{mgl32.Vec2{0, 0}, ChunkCoord{0, 0}},
		{mgl32.Vec2{118, -118}, ChunkCoord{0, 0}},
		{mgl32.Vec2{120, -120}, ChunkCoord{1, -1}},
		{mgl32.Vec2{119, 0}, ChunkCoord{0, 0}}, // halfway rounds to even
		{mgl32.Vec2{357, 0}, ChunkCoord{2, 0}},
		{mgl32.Vec2{-1000, 500}, ChunkCoord{-4, 2}},
	}
	for _, tc := range cases {
		if got := ViewerChunk(tc.pos, 238); got != tc.want {
			t.Fatalf("ViewerChunk(%v)=%v want %v", tc.pos, got, tc.want)
		}
	}
}

func TestViewerTracker_Gating(t *testing.T) {
	v := NewViewerTracker(2, 25)
	if v.Update(mgl32.Vec3{48, 100, 0}) {
		t.Fatalf("plane displacement 24 should not trigger")
	}
	if got := v.Position(); got != (mgl32.Vec2{24, 0}) {
		t.Fatalf("position=%v want scaled (24,0)", got)
	}
	if !v.Update(mgl32.Vec3{52, 0, 0}) {
		t.Fatalf("plane displacement 26 should trigger")
	}
	if v.Anchor() != (mgl32.Vec2{26, 0}) {
		t.Fatalf("anchor=%v want (26,0)", v.Anchor())
	}
	if v.Update(mgl32.Vec3{52, 0, 40}) {
		t.Fatalf("displacement 20 from new anchor should not trigger")
	}
	if v.Update(mgl32.Vec3{52, 0, 50}) {
		t.Fatalf("displacement exactly 25 should not trigger")
	}
}

func TestLODMesh_RequestIsIdempotentAndMonotonic(t *testing.T) {
	req := &countingRequester{}
	ctx := &Context{Jobs: req}
	readyCalls := 0
	m := newLODMesh(ctx, ChunkCoord{}, 2, func() { readyCalls++ })

	seen := []SlotState{m.State()}
	if !m.RequestIfNeeded(provider.MapData{}) {
		t.Fatalf("first request should submit")
	}
	seen = append(seen, m.State())
	for i := 0; i < 3; i++ {
		if m.RequestIfNeeded(provider.MapData{}) {
			t.Fatalf("repeat request %d submitted a job", i)
		}
	}
	if len(req.meshes) != 1 {
		t.Fatalf("submissions=%d want 1", len(req.meshes))
	}

	req.meshes[0](dispatch.Result[*gen.MeshData]{Err: errors.New("worker died")})
	seen = append(seen, m.State())
	if m.State() != SlotRequested || m.Err() == nil || readyCalls != 0 {
		t.Fatalf("failed job: state=%s err=%v ready=%d", m.State(), m.Err(), readyCalls)
	}
	if m.RequestIfNeeded(provider.MapData{}) {
		t.Fatalf("failed slot must not resubmit")
	}

	mesh := &gen.MeshData{LOD: 2}
	req.meshes[0](dispatch.Result[*gen.MeshData]{Value: mesh})
	seen = append(seen, m.State())
	req.meshes[0](dispatch.Result[*gen.MeshData]{Value: &gen.MeshData{LOD: 9}})
	seen = append(seen, m.State())

	if m.Mesh() != mesh || readyCalls != 1 {
		t.Fatalf("mesh=%p want %p, ready calls=%d", m.Mesh(), mesh, readyCalls)
	}
	for i := 1; i < len(seen); i++ {
		if seen[i] < seen[i-1] {
			t.Fatalf("state regressed: %v", seen)
		}
	}
}

func TestLODMesh_NilMeshIsAFailure(t *testing.T) {
	req := &countingRequester{}
	var events []Event
	ctx := &Context{Jobs: req, Events: SinkFunc(func(e Event) { events = append(events, e) })}
	m := newLODMesh(ctx, ChunkCoord{X: 1, Y: 2}, 0, nil)
	m.RequestIfNeeded(provider.MapData{})
	req.meshes[0](dispatch.Result[*gen.MeshData]{})
	if m.Ready() || !errors.Is(m.Err(), errNilMesh) {
		t.Fatalf("ready=%v err=%v", m.Ready(), m.Err())
	}
	if len(events) != 1 || events[0].Kind != EventJobFailed || events[0].Coord != (ChunkCoord{X: 1, Y: 2}) {
		t.Fatalf("events=%+v", events)
	}
}

func TestContext_ChunksInView(t *testing.T) {
	cases := []struct {
		dst  float32
		size int
		want int
	}{
		{600, 238, 3},
		{476, 238, 2},
		{477, 238, 3},
		{100, 0, 0},
	}
	for _, tc := range cases {
		c := &Context{MaxViewDst: tc.dst, ChunkSize: tc.size}
		if got := c.ChunksInView(); got != tc.want {
			t.Fatalf("ChunksInView(%v/%d)=%d want %d", tc.dst, tc.size, got, tc.want)
		}
	}
}
