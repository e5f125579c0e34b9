package observerproto

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeEvents    = "EVENTS"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Event kinds to receive; empty means all.
	Kinds []string `json:"kinds,omitempty"`
	// Upper bounds on frame size and frame rate.
	MaxBatch  int     `json:"max_batch,omitempty"`
	MaxRateHz float64 `json:"max_rate_hz,omitempty"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string       `json:"protocol_version"`
	RunID           string       `json:"run_id"`
	Tick            uint64       `json:"tick"`
	Params          StreamParams `json:"stream_params"`
	LODs            []LODRow     `json:"lods"`
}

type StreamParams struct {
	TickRateHz          int     `json:"tick_rate_hz"`
	ChunkSize           int     `json:"chunk_size"`
	MaxViewDst          float32 `json:"max_view_dst"`
	UniformScale        float32 `json:"uniform_scale"`
	ViewerMoveThreshold float32 `json:"viewer_move_threshold"`
	Seed                int64   `json:"seed"`
	NoiseKind           string  `json:"noise_kind"`
	NormalizeMode       string  `json:"normalize_mode"`
}

type LODRow struct {
	LOD                 int     `json:"lod"`
	VisibleDstThreshold float32 `json:"visible_dst_threshold"`
	UseForCollider      bool    `json:"use_for_collider"`
}

// Server -> Client. A batch of stream events in emission order. Dropped is
// the number of events this session has lost to a full buffer so far.
type EventsMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Tick            uint64  `json:"tick"`
	Dropped         uint64  `json:"dropped"`
	Events          []Event `json:"events"`
}

type Event struct {
	Tick    uint64      `json:"tick"`
	Kind    string      `json:"kind"`
	X       int         `json:"x"`
	Y       int         `json:"y"`
	LOD     int         `json:"lod"`
	Visible bool        `json:"visible,omitempty"`
	Err     string      `json:"err,omitempty"`
	Viewer  *[2]float32 `json:"viewer,omitempty"`
	Created int         `json:"created,omitempty"`
	Updated int         `json:"updated,omitempty"`
	Hidden  int         `json:"hidden,omitempty"`

	// Vertex and triangle counts of the mesh on MESH_ACTIVE / COLLIDER_ACTIVE.
	Vertices  int `json:"vertices,omitempty"`
	Triangles int `json:"triangles,omitempty"`
}
