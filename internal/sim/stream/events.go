package stream

import "endlessterrain.io/internal/sim/terrain/gen"

type EventKind string

const (
	EventChunkCreated   EventKind = "CHUNK_CREATED"
	EventHeightmapReady EventKind = "HEIGHTMAP_READY"
	EventMeshReady      EventKind = "MESH_READY"
	EventMeshActive     EventKind = "MESH_ACTIVE"
	EventColliderActive EventKind = "COLLIDER_ACTIVE"
	EventVisibility     EventKind = "VISIBILITY"
	EventJobFailed      EventKind = "JOB_FAILED"
	EventSweep          EventKind = "SWEEP"
)

// Event is a state change reported to the host. Events are emitted only from
// the consumer goroutine, in the order the changes happen.
type Event struct {
	RunID string     `json:"run_id"`
	Tick  uint64     `json:"tick"`
	Kind  EventKind  `json:"kind"`
	Coord ChunkCoord `json:"coord"`

	// LOD is the mesh LOD for mesh events, -1 otherwise.
	LOD     int    `json:"lod"`
	Visible bool   `json:"visible,omitempty"`
	Err     string `json:"err,omitempty"`

	// Sweep events only.
	Viewer  *[2]float32 `json:"viewer,omitempty"`
	Created int         `json:"created,omitempty"`
	Updated int         `json:"updated,omitempty"`
	Hidden  int         `json:"hidden,omitempty"`

	// Mesh is set on MESH_ACTIVE and COLLIDER_ACTIVE for in-process hosts.
	Mesh *gen.MeshData `json:"-"`
}

type EventSink interface {
	StreamEvent(e Event)
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(Event)

func (f SinkFunc) StreamEvent(e Event) { f(e) }

// MultiSink fans events out to every non-nil sink in order.
type MultiSink []EventSink

func (m MultiSink) StreamEvent(e Event) {
	for _, s := range m {
		if s != nil {
			s.StreamEvent(e)
		}
	}
}
