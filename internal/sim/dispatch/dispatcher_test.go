package dispatch

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
)

type fakeMaps struct {
	calls atomic.Int32
	err   error
}

func (f *fakeMaps) Generate(centre mgl32.Vec2) (provider.MapData, error) {
	f.calls.Add(1)
	if f.err != nil {
		return provider.MapData{}, f.err
	}
	return provider.MapData{Heightmap: [][]float32{{centre.X(), centre.Y()}}}, nil
}

// gatedMeshes blocks each LOD until its gate is closed.
type gatedMeshes struct {
	gates map[int]chan struct{}
}

func (g *gatedMeshes) Generate(data provider.MapData, lod int) (*gen.MeshData, error) {
	if ch, ok := g.gates[lod]; ok {
		<-ch
	}
	if lod == 5 {
		panic("boom")
	}
	return &gen.MeshData{LOD: lod}, nil
}

func waitCompleted(t *testing.T, d *Dispatcher, n uint64) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for d.Stats().Completed < n {
		select {
		case <-d.Ready():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			t.Fatalf("timeout waiting for %d completed jobs (have %d)", n, d.Stats().Completed)
		}
	}
}

func TestDispatcher_CallbacksRunOnlyInDrain(t *testing.T) {
	maps := &fakeMaps{}
	d := New(2, maps, &gatedMeshes{}, nil)
	defer d.Close()

	var got []provider.MapData
	d.RequestMapData(mgl32.Vec2{3, 4}, func(r Result[provider.MapData]) {
		if r.Err != nil {
			t.Errorf("unexpected err: %v", r.Err)
		}
		got = append(got, r.Value)
	})
	waitCompleted(t, d, 1)
	if len(got) != 0 {
		t.Fatalf("callback ran before Drain")
	}
	if n := d.Drain(); n != 1 {
		t.Fatalf("drained=%d want 1", n)
	}
	if len(got) != 1 || got[0].Heightmap[0][0] != 3 || got[0].Heightmap[0][1] != 4 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if n := d.Drain(); n != 0 {
		t.Fatalf("second drain=%d want 0", n)
	}
}

func TestDispatcher_FailuresAreTypedResults(t *testing.T) {
	maps := &fakeMaps{err: errors.New("no noise")}
	d := New(2, maps, &gatedMeshes{}, nil)
	defer d.Close()

	var mapErr, meshErr error
	d.RequestMapData(mgl32.Vec2{}, func(r Result[provider.MapData]) { mapErr = r.Err })
	d.RequestMeshData(provider.MapData{}, 5, func(r Result[*gen.MeshData]) {
		meshErr = r.Err
		if r.Value != nil {
			t.Errorf("failed mesh should carry nil value")
		}
	})
	waitCompleted(t, d, 2)
	d.Drain()
	if mapErr == nil || meshErr == nil {
		t.Fatalf("expected both failures, map=%v mesh=%v", mapErr, meshErr)
	}
	if st := d.Stats(); st.Failed != 2 || st.Pending != 0 {
		t.Fatalf("stats=%+v want failed=2 pending=0", st)
	}
}

func TestDispatcher_OutOfOrderCompletion(t *testing.T) {
	gates := map[int]chan struct{}{0: make(chan struct{}), 2: make(chan struct{})}
	d := New(4, &fakeMaps{}, &gatedMeshes{gates: gates}, nil)
	defer d.Close()

	var order []int
	byLOD := map[int]*gen.MeshData{}
	for _, lod := range []int{0, 2} {
		lod := lod
		d.RequestMeshData(provider.MapData{}, lod, func(r Result[*gen.MeshData]) {
			order = append(order, lod)
			byLOD[lod] = r.Value
		})
	}

	close(gates[2])
	waitCompleted(t, d, 1)
	d.Drain()
	close(gates[0])
	waitCompleted(t, d, 2)
	d.Drain()

	if len(order) != 2 || order[0] != 2 || order[1] != 0 {
		t.Fatalf("order=%v want [2 0]", order)
	}
	if byLOD[0].LOD != 0 || byLOD[2].LOD != 2 {
		t.Fatalf("results crossed: lod0=%d lod2=%d", byLOD[0].LOD, byLOD[2].LOD)
	}
}

func TestQueue_DrainIncludesResultsPushedDuringDrain(t *testing.T) {
	var q Queue[int]
	var seen []int
	q.Push(Pending[int]{Result: Result[int]{Value: 1}, Done: func(r Result[int]) {
		seen = append(seen, r.Value)
		q.Push(Pending[int]{Result: Result[int]{Value: 2}, Done: func(r Result[int]) { seen = append(seen, r.Value) }})
	}})
	if n := q.Drain(); n != 2 {
		t.Fatalf("drained=%d want 2", n)
	}
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Fatalf("seen=%v want [1 2]", seen)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty")
	}
}
