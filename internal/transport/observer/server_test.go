package observer

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"endlessterrain.io/internal/observerproto"
	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/tuning"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer("run-x", tuning.Defaults(), nil)
	mux := http.NewServeMux()
	s.Routes(mux)
	hs := httptest.NewServer(mux)
	t.Cleanup(hs.Close)
	return s, hs
}

func dial(t *testing.T, hs *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(hs.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func subscribe(t *testing.T, s *Server, conn *websocket.Conn, sub observerproto.SubscribeMsg) {
	t.Helper()
	sub.Type = observerproto.TypeSubscribe
	sub.ProtocolVersion = observerproto.Version
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for s.Sessions() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readEvents(t *testing.T, conn *websocket.Conn, n int) []observerproto.Event {
	t.Helper()
	var out []observerproto.Event
	for len(out) < n {
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg observerproto.EventsMsg
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v (have %d of %d events)", err, len(out), n)
		}
		if msg.Type != observerproto.TypeEvents || msg.ProtocolVersion != observerproto.Version {
			t.Fatalf("unexpected frame %+v", msg)
		}
		out = append(out, msg.Events...)
	}
	return out
}

func TestBootstrap(t *testing.T) {
	s, hs := newTestServer(t)
	s.StreamEvent(stream.Event{Tick: 42, Kind: stream.EventSweep, LOD: -1})

	resp, err := http.Get(hs.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	var boot observerproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.RunID != "run-x" || boot.Tick != 42 || boot.ProtocolVersion != observerproto.Version {
		t.Fatalf("bootstrap=%+v", boot)
	}
	if boot.Params.ChunkSize != 238 || boot.Params.MaxViewDst != 600 || len(boot.LODs) != 3 {
		t.Fatalf("params=%+v lods=%d", boot.Params, len(boot.LODs))
	}

	post, err := http.Post(hs.URL+"/v1/observer/bootstrap", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	post.Body.Close()
	if post.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", post.StatusCode)
	}
}

func TestWS_StreamsEventsInOrder(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs)
	subscribe(t, s, conn, observerproto.SubscribeMsg{MaxRateHz: 200})

	mesh := &gen.MeshData{Triangles: make([]int32, 6)}
	s.StreamEvent(stream.Event{Tick: 1, Kind: stream.EventChunkCreated, Coord: stream.ChunkCoord{X: 1, Y: -1}, LOD: -1})
	s.StreamEvent(stream.Event{Tick: 2, Kind: stream.EventMeshActive, Coord: stream.ChunkCoord{X: 1, Y: -1}, LOD: 2, Mesh: mesh})
	s.StreamEvent(stream.Event{Tick: 3, Kind: stream.EventVisibility, LOD: -1, Visible: true})

	got := readEvents(t, conn, 3)
	if got[0].Kind != "CHUNK_CREATED" || got[0].X != 1 || got[0].Y != -1 {
		t.Fatalf("first=%+v", got[0])
	}
	if got[1].LOD != 2 || got[1].Triangles != 2 {
		t.Fatalf("mesh event=%+v", got[1])
	}
	if !got[2].Visible || got[2].Tick != 3 {
		t.Fatalf("visibility=%+v", got[2])
	}
}

func TestWS_KindFilter(t *testing.T) {
	s, hs := newTestServer(t)
	conn := dial(t, hs)
	subscribe(t, s, conn, observerproto.SubscribeMsg{Kinds: []string{"sweep"}, MaxRateHz: 200})

	s.StreamEvent(stream.Event{Tick: 1, Kind: stream.EventChunkCreated, LOD: -1})
	s.StreamEvent(stream.Event{Tick: 1, Kind: stream.EventSweep, LOD: -1, Created: 9})

	got := readEvents(t, conn, 1)
	if len(got) != 1 || got[0].Kind != "SWEEP" || got[0].Created != 9 {
		t.Fatalf("events=%+v", got)
	}
}

func TestWS_RejectsBadSubscribe(t *testing.T) {
	_, hs := newTestServer(t)
	conn := dial(t, hs)
	if err := conn.WriteJSON(map[string]string{"type": "HELLO"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	var ce *websocket.CloseError
	if !errors.As(err, &ce) || ce.Code != websocket.ClosePolicyViolation {
		t.Fatalf("err=%v want policy violation close", err)
	}
}

func TestSession_DropsWhenFull(t *testing.T) {
	sess := newSession("O1", observerproto.SubscribeMsg{})
	for i := 0; i < sessionBuffer+5; i++ {
		sess.offer(observerproto.Event{Kind: "SWEEP"})
	}
	if d := sess.dropped.Load(); d != 5 {
		t.Fatalf("dropped=%d want 5", d)
	}
}

func TestIsLoopbackRemote(t *testing.T) {
	cases := map[string]bool{
		"127.0.0.1:5000": true,
		"[::1]:80":       true,
		"10.0.0.2:80":    false,
		"garbage":        false,
	}
	for in, want := range cases {
		if got := isLoopbackRemote(in); got != want {
			t.Fatalf("isLoopbackRemote(%q)=%v want %v", in, got, want)
		}
	}
}
