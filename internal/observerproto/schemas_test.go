package observerproto_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"endlessterrain.io/internal/observerproto"
	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/terrain/gen"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	compile := func(name string) *jsonschema.Schema {
		t.Helper()
		p := filepath.Join("..", "..", "schemas", name)
		s, err := jsonschema.Compile(p)
		if err != nil {
			t.Fatalf("compile %s: %v", name, err)
		}
		return s
	}

	// Round-trip through JSON so the validator sees plain maps and numbers.
	validate := func(s *jsonschema.Schema, v any) {
		t.Helper()
		b, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		var doc any
		if err := json.Unmarshal(b, &doc); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if err := s.Validate(doc); err != nil {
			t.Fatalf("validate %s: %v", b, err)
		}
	}

	subSchema := compile("observer_subscribe.schema.json")
	bootSchema := compile("observer_bootstrap.schema.json")
	eventsSchema := compile("observer_events.schema.json")
	eventSchema := compile("stream_event.schema.json")

	validate(subSchema, observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		Kinds:           []string{"SWEEP", "MESH_ACTIVE"},
		MaxBatch:        64,
		MaxRateHz:       10,
	})

	validate(bootSchema, observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		RunID:           "2f1e3c1a-run",
		Tick:            12,
		Params: observerproto.StreamParams{
			TickRateHz:          60,
			ChunkSize:           238,
			MaxViewDst:          600,
			UniformScale:        2.5,
			ViewerMoveThreshold: 25,
			Seed:                1337,
			NoiseKind:           "SIMPLEX",
			NormalizeMode:       "GLOBAL",
		},
		LODs: []observerproto.LODRow{
			{LOD: 0, VisibleDstThreshold: 200, UseForCollider: true},
			{LOD: 4, VisibleDstThreshold: 600},
		},
	})

	viewer := [2]float32{10, -3.5}
	validate(eventsSchema, observerproto.EventsMsg{
		Type:            observerproto.TypeEvents,
		ProtocolVersion: observerproto.Version,
		Tick:            7,
		Events: []observerproto.Event{
			{Tick: 7, Kind: "SWEEP", LOD: -1, Viewer: &viewer, Created: 49},
			{Tick: 7, Kind: "MESH_ACTIVE", X: -1, Y: 2, LOD: 2, Vertices: 100, Triangles: 162},
		},
	})

	for _, e := range []stream.Event{
		{RunID: "r", Tick: 0, Kind: stream.EventChunkCreated, Coord: stream.ChunkCoord{X: 3, Y: -3}, LOD: -1},
		{RunID: "r", Tick: 4, Kind: stream.EventJobFailed, LOD: 1, Err: "panic: boom"},
		{RunID: "r", Tick: 5, Kind: stream.EventMeshActive, LOD: 0, Mesh: &gen.MeshData{}},
		{RunID: "r", Tick: 6, Kind: stream.EventSweep, LOD: -1, Viewer: &viewer, Updated: 49, Hidden: 3},
	} {
		validate(eventSchema, e)
	}
}
