package streamtest

import (
	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
)

type MapJob struct {
	Centre mgl32.Vec2
	Done   bool

	jobs     *ManualJobs
	callback func(dispatch.Result[provider.MapData])
}

// Complete queues a successful result; it is delivered on the next Drain.
func (j *MapJob) Complete(data provider.MapData) {
	j.finish(dispatch.Result[provider.MapData]{Value: data})
}

func (j *MapJob) Fail(err error) {
	j.finish(dispatch.Result[provider.MapData]{Err: err})
}

func (j *MapJob) finish(res dispatch.Result[provider.MapData]) {
	if j.Done {
		return
	}
	j.Done = true
	j.jobs.finished(res.Err != nil)
	j.jobs.maps.Push(dispatch.Pending[provider.MapData]{Done: j.callback, Result: res})
}

type MeshJob struct {
	Data provider.MapData
	LOD  int
	Done bool

	jobs     *ManualJobs
	callback func(dispatch.Result[*gen.MeshData])
}

func (j *MeshJob) Complete(mesh *gen.MeshData) {
	j.finish(dispatch.Result[*gen.MeshData]{Value: mesh})
}

func (j *MeshJob) Fail(err error) {
	j.finish(dispatch.Result[*gen.MeshData]{Err: err})
}

func (j *MeshJob) finish(res dispatch.Result[*gen.MeshData]) {
	if j.Done {
		return
	}
	j.Done = true
	j.jobs.finished(res.Err != nil)
	j.jobs.meshes.Push(dispatch.Pending[*gen.MeshData]{Done: j.callback, Result: res})
}

// ManualJobs records every request and completes nothing on its own. Tests
// finish jobs in whatever order they like; results are handed out by Drain,
// heightmaps first, the way the real dispatcher does.
type ManualJobs struct {
	MapJobs  []*MapJob
	MeshJobs []*MeshJob

	maps   dispatch.Queue[provider.MapData]
	meshes dispatch.Queue[*gen.MeshData]

	completed uint64
	failed    uint64
}

func (m *ManualJobs) RequestMapData(centre mgl32.Vec2, done func(dispatch.Result[provider.MapData])) {
	m.MapJobs = append(m.MapJobs, &MapJob{Centre: centre, jobs: m, callback: done})
}

func (m *ManualJobs) RequestMeshData(data provider.MapData, lod int, done func(dispatch.Result[*gen.MeshData])) {
	m.MeshJobs = append(m.MeshJobs, &MeshJob{Data: data, LOD: lod, jobs: m, callback: done})
}

func (m *ManualJobs) Drain() int {
	return m.maps.Drain() + m.meshes.Drain()
}

func (m *ManualJobs) Stats() dispatch.Stats {
	sub := uint64(len(m.MapJobs) + len(m.MeshJobs))
	return dispatch.Stats{
		Submitted: sub,
		Completed: m.completed,
		Failed:    m.failed,
		Pending:   sub - m.completed,
		Queued:    m.maps.Len() + m.meshes.Len(),
	}
}

func (m *ManualJobs) finished(failed bool) {
	m.completed++
	if failed {
		m.failed++
	}
}

// OpenMapJobs returns map jobs not yet completed, in request order.
func (m *ManualJobs) OpenMapJobs() []*MapJob {
	var out []*MapJob
	for _, j := range m.MapJobs {
		if !j.Done {
			out = append(out, j)
		}
	}
	return out
}

// OpenMeshJobs returns uncompleted mesh jobs for lod, or for every LOD when
// lod is negative.
func (m *ManualJobs) OpenMeshJobs(lod int) []*MeshJob {
	var out []*MeshJob
	for _, j := range m.MeshJobs {
		if !j.Done && (lod < 0 || j.LOD == lod) {
			out = append(out, j)
		}
	}
	return out
}

// MeshRequests counts mesh jobs ever requested for lod.
func (m *ManualJobs) MeshRequests(lod int) int {
	n := 0
	for _, j := range m.MeshJobs {
		if j.LOD == lod {
			n++
		}
	}
	return n
}
