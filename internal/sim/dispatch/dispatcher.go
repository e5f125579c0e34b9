package dispatch

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
)

type MapSource interface {
	Generate(centre mgl32.Vec2) (provider.MapData, error)
}

type MeshSource interface {
	Generate(data provider.MapData, lod int) (*gen.MeshData, error)
}

// Dispatcher runs heightmap and mesh jobs on a bounded worker pool and queues
// the results for the consumer. Callbacks never run on a worker; they run
// inside Drain.
type Dispatcher struct {
	pool   pond.Pool
	maps   MapSource
	meshes MeshSource
	log    *log.Logger

	mapResults  Queue[provider.MapData]
	meshResults Queue[*gen.MeshData]

	ready chan struct{}

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
}

type Stats struct {
	Submitted uint64 `json:"submitted"`
	Completed uint64 `json:"completed"`
	Failed    uint64 `json:"failed"`
	Pending   uint64 `json:"pending"`
	Queued    int    `json:"queued"`
}

func New(workers int, maps MapSource, meshes MeshSource, logger *log.Logger) *Dispatcher {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Dispatcher{
		pool:   pond.NewPool(workers),
		maps:   maps,
		meshes: meshes,
		log:    logger,
		ready:  make(chan struct{}, 1),
	}
}

func (d *Dispatcher) RequestMapData(centre mgl32.Vec2, done func(Result[provider.MapData])) {
	submit(d, &d.mapResults, "map", func() (provider.MapData, error) {
		return d.maps.Generate(centre)
	}, done)
}

func (d *Dispatcher) RequestMeshData(data provider.MapData, lod int, done func(Result[*gen.MeshData])) {
	submit(d, &d.meshResults, fmt.Sprintf("mesh lod %d", lod), func() (*gen.MeshData, error) {
		return d.meshes.Generate(data, lod)
	}, done)
}

func submit[T any](d *Dispatcher, q *Queue[T], name string, job func() (T, error), done func(Result[T])) {
	d.submitted.Add(1)
	d.pool.Submit(func() {
		res := runJob(job)
		if res.Err != nil {
			d.failed.Add(1)
			if d.log != nil {
				d.log.Printf("%s job failed: %v", name, res.Err)
			}
		}
		q.Push(Pending[T]{Done: done, Result: res})
		d.completed.Add(1)
		d.signal()
	})
}

func runJob[T any](job func() (T, error)) (res Result[T]) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			res = Result[T]{Value: zero, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	v, err := job()
	return Result[T]{Value: v, Err: err}
}

func (d *Dispatcher) signal() {
	select {
	case d.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value after at least one result has been queued since the
// previous receive.
func (d *Dispatcher) Ready() <-chan struct{} { return d.ready }

// Drain delivers every queued result, heightmaps first, then meshes.
func (d *Dispatcher) Drain() int {
	return d.mapResults.Drain() + d.meshResults.Drain()
}

func (d *Dispatcher) Stats() Stats {
	sub := d.submitted.Load()
	done := d.completed.Load()
	st := Stats{
		Submitted: sub,
		Completed: done,
		Failed:    d.failed.Load(),
		Queued:    d.mapResults.Len() + d.meshResults.Len(),
	}
	if sub > done {
		st.Pending = sub - done
	}
	return st
}

// Close waits for running jobs. Their results stay queued and are dropped
// unless Drain is called afterwards.
func (d *Dispatcher) Close() {
	d.pool.StopAndWait()
}
