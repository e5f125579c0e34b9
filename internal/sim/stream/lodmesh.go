package stream

import (
	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
)

type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotRequested
	SlotReady
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "EMPTY"
	case SlotRequested:
		return "REQUESTED"
	case SlotReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// LODMesh caches one chunk's mesh at one LOD so that switching back and forth
// between LODs never regenerates geometry. Its state only moves forward:
// EMPTY -> REQUESTED -> READY. A failed job leaves it REQUESTED.
type LODMesh struct {
	ctx     *Context
	coord   ChunkCoord
	lod     int
	state   SlotState
	mesh    *gen.MeshData
	err     error
	onReady func()
}

func newLODMesh(ctx *Context, coord ChunkCoord, lod int, onReady func()) *LODMesh {
	return &LODMesh{ctx: ctx, coord: coord, lod: lod, onReady: onReady}
}

func (m *LODMesh) LOD() int            { return m.lod }
func (m *LODMesh) State() SlotState    { return m.state }
func (m *LODMesh) Mesh() *gen.MeshData { return m.mesh }
func (m *LODMesh) Err() error          { return m.err }
func (m *LODMesh) Ready() bool         { return m.state == SlotReady }
func (m *LODMesh) Requested() bool     { return m.state != SlotEmpty }

// RequestIfNeeded submits a mesh job unless one was already submitted.
// It reports whether a job was submitted.
func (m *LODMesh) RequestIfNeeded(data provider.MapData) bool {
	if m.state != SlotEmpty {
		return false
	}
	m.state = SlotRequested
	m.ctx.Jobs.RequestMeshData(data, m.lod, m.onMeshData)
	return true
}

func (m *LODMesh) onMeshData(res dispatch.Result[*gen.MeshData]) {
	if m.state == SlotReady {
		return
	}
	if res.Err != nil || res.Value == nil {
		if res.Err != nil {
			m.err = res.Err
		} else {
			m.err = errNilMesh
		}
		m.ctx.emit(Event{Kind: EventJobFailed, Coord: m.coord, LOD: m.lod, Err: m.err.Error()})
		return
	}
	m.mesh = res.Value
	m.state = SlotReady
	m.ctx.emit(Event{Kind: EventMeshReady, Coord: m.coord, LOD: m.lod})
	if m.onReady != nil {
		m.onReady()
	}
}
