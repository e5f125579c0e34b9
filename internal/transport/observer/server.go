package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"endlessterrain.io/internal/observerproto"
	"endlessterrain.io/internal/sim/stream"
	"endlessterrain.io/internal/sim/tuning"
)

const sessionBuffer = 4096

// Server is a loopback-only debug feed of stream events. It is a
// stream.EventSink; StreamEvent never blocks the streamer, slow sessions
// lose events instead.
type Server struct {
	log *log.Logger

	runID  string
	params observerproto.StreamParams
	lods   []observerproto.LODRow
	tick   atomic.Uint64

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
}

func NewServer(runID string, t tuning.Tuning, logger *log.Logger) *Server {
	lods := make([]observerproto.LODRow, 0, len(t.LODs))
	for _, l := range t.LODs {
		lods = append(lods, observerproto.LODRow{
			LOD:                 l.LOD,
			VisibleDstThreshold: l.VisibleDstThreshold,
			UseForCollider:      l.UseForCollider,
		})
	}
	return &Server{
		log:   logger,
		runID: runID,
		params: observerproto.StreamParams{
			TickRateHz:          t.TickRateHz,
			ChunkSize:           t.ChunkSize(),
			MaxViewDst:          t.MaxViewDst(),
			UniformScale:        t.Terrain.UniformScale,
			ViewerMoveThreshold: t.ViewerMoveThreshold,
			Seed:                t.Noise.Seed,
			NoiseKind:           t.Noise.Kind,
			NormalizeMode:       t.Noise.NormalizeMode,
		},
		lods: lods,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
		sessions: map[string]*session{},
	}
}

// Routes registers the observer endpoints on mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/observer/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", s.WSHandler())
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			RunID:           s.runID,
			Tick:            s.tick.Load(),
			Params:          s.params,
			LODs:            s.lods,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

// StreamEvent fans e out to every subscribed session.
func (s *Server) StreamEvent(e stream.Event) {
	s.tick.Store(e.Tick)
	ev := toWire(e)

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		sess.offer(ev)
	}
}

// Sessions is the number of connected, subscribed observers.
func (s *Server) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		sess := newSession(fmt.Sprintf("O%d", s.nextID.Add(1)), sub)
		s.mu.Lock()
		s.sessions[sess.id] = sess
		s.mu.Unlock()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()
		if s.log != nil {
			s.log.Printf("observer %s subscribed kinds=%v max_batch=%d max_rate_hz=%.1f", sess.id, sub.Kinds, sub.MaxBatch, sub.MaxRateHz)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			writeErr <- sess.writeLoop(ctx, conn)
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				sess.update(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

type session struct {
	id  string
	out chan observerproto.Event

	dropped atomic.Uint64

	mu       sync.Mutex
	kinds    map[string]bool
	maxBatch int
	limiter  *rate.Limiter
}

func newSession(id string, sub observerproto.SubscribeMsg) *session {
	sess := &session{
		id:  id,
		out: make(chan observerproto.Event, sessionBuffer),
	}
	sess.update(sub)
	return sess
}

func (s *session) update(sub observerproto.SubscribeMsg) {
	kinds := map[string]bool{}
	for _, k := range sub.Kinds {
		kinds[strings.ToUpper(strings.TrimSpace(k))] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kinds = kinds
	s.maxBatch = sub.MaxBatch
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(sub.MaxRateHz), 1)
	} else {
		s.limiter.SetLimit(rate.Limit(sub.MaxRateHz))
	}
}

func (s *session) wants(kind string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.kinds) == 0 || s.kinds[kind]
}

func (s *session) offer(ev observerproto.Event) {
	if !s.wants(ev.Kind) {
		return
	}
	select {
	case s.out <- ev:
	default:
		s.dropped.Add(1)
	}
}

func (s *session) writeLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		var first observerproto.Event
		select {
		case <-ctx.Done():
			return ctx.Err()
		case first = <-s.out:
		}

		s.mu.Lock()
		lim, maxBatch := s.limiter, s.maxBatch
		s.mu.Unlock()
		if err := lim.Wait(ctx); err != nil {
			return err
		}

		batch := []observerproto.Event{first}
	fill:
		for len(batch) < maxBatch {
			select {
			case ev := <-s.out:
				batch = append(batch, ev)
			default:
				break fill
			}
		}

		msg := observerproto.EventsMsg{
			Type:            observerproto.TypeEvents,
			ProtocolVersion: observerproto.Version,
			Tick:            batch[len(batch)-1].Tick,
			Dropped:         s.dropped.Load(),
			Events:          batch,
		}
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return err
		}
	}
}

func parseSubscribe(msg []byte) (observerproto.SubscribeMsg, bool) {
	var sub observerproto.SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false
	}
	normalizeSubscribe(&sub)
	return sub, true
}

func normalizeSubscribe(sub *observerproto.SubscribeMsg) {
	if sub.MaxBatch <= 0 {
		sub.MaxBatch = 256
	}
	if sub.MaxBatch > 4096 {
		sub.MaxBatch = 4096
	}
	if sub.MaxRateHz <= 0 {
		sub.MaxRateHz = 20
	}
	if sub.MaxRateHz > 240 {
		sub.MaxRateHz = 240
	}
}

func toWire(e stream.Event) observerproto.Event {
	return observerproto.Event{
		Tick:      e.Tick,
		Kind:      string(e.Kind),
		X:         e.Coord.X,
		Y:         e.Coord.Y,
		LOD:       e.LOD,
		Visible:   e.Visible,
		Err:       e.Err,
		Viewer:    e.Viewer,
		Created:   e.Created,
		Updated:   e.Updated,
		Hidden:    e.Hidden,
		Vertices:  e.Mesh.VertexCount(),
		Triangles: e.Mesh.TriangleCount(),
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
