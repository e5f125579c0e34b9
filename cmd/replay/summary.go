package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"endlessterrain.io/internal/sim/stream"
)

var errStop = errors.New("stop")

// chunkState is the last known state of one chunk as seen in the log.
type chunkState struct {
	Coord        stream.ChunkCoord
	CreatedTick  uint64
	Heightmap    bool
	ReadyLODs    map[int]bool
	ActiveLOD    int
	ColliderLOD  int
	Visible      bool
	Failures     int
	LastTickSeen uint64
}

// summary folds a run's events into per-kind counts and per-chunk state,
// recording ordering violations instead of stopping.
type summary struct {
	RunID      string
	FirstTick  uint64
	LastTick   uint64
	Events     int
	Kinds      map[stream.EventKind]int
	Chunks     map[stream.ChunkCoord]*chunkState
	Violations []string

	seen bool
}

func newSummary() *summary {
	return &summary{
		Kinds:  map[stream.EventKind]int{},
		Chunks: map[stream.ChunkCoord]*chunkState{},
	}
}

func (s *summary) violate(format string, args ...any) {
	s.Violations = append(s.Violations, fmt.Sprintf(format, args...))
}

func (s *summary) Add(e stream.Event) error {
	if !s.seen {
		s.seen = true
		s.RunID = e.RunID
		s.FirstTick = e.Tick
	} else {
		if e.RunID != s.RunID {
			return fmt.Errorf("mixed runs in one events dir: %s and %s", s.RunID, e.RunID)
		}
		if e.Tick < s.LastTick {
			s.violate("tick went backwards: %d after %d (%s %s)", e.Tick, s.LastTick, e.Kind, e.Coord)
		}
	}
	s.LastTick = e.Tick
	s.Events++
	s.Kinds[e.Kind]++

	if e.Kind == stream.EventSweep {
		return nil
	}

	c := s.Chunks[e.Coord]
	if e.Kind == stream.EventChunkCreated {
		if c != nil {
			s.violate("chunk %s created twice (ticks %d and %d)", e.Coord, c.CreatedTick, e.Tick)
			return nil
		}
		s.Chunks[e.Coord] = &chunkState{
			Coord:        e.Coord,
			CreatedTick:  e.Tick,
			ReadyLODs:    map[int]bool{},
			ActiveLOD:    -1,
			ColliderLOD:  -1,
			LastTickSeen: e.Tick,
		}
		return nil
	}
	if c == nil {
		s.violate("%s for chunk %s before CHUNK_CREATED", e.Kind, e.Coord)
		return nil
	}
	c.LastTickSeen = e.Tick

	switch e.Kind {
	case stream.EventHeightmapReady:
		if c.Heightmap {
			s.violate("chunk %s heightmap ready twice", e.Coord)
		}
		c.Heightmap = true
	case stream.EventMeshReady:
		if !c.Heightmap {
			s.violate("chunk %s mesh lod=%d ready before its heightmap", e.Coord, e.LOD)
		}
		c.ReadyLODs[e.LOD] = true
	case stream.EventMeshActive:
		if !c.ReadyLODs[e.LOD] {
			s.violate("chunk %s lod=%d active before ready", e.Coord, e.LOD)
		}
		c.ActiveLOD = e.LOD
	case stream.EventColliderActive:
		if !c.ReadyLODs[e.LOD] {
			s.violate("chunk %s collider lod=%d active before ready", e.Coord, e.LOD)
		}
		c.ColliderLOD = e.LOD
	case stream.EventVisibility:
		if c.Visible == e.Visible {
			s.violate("chunk %s visibility event without a change (visible=%v)", e.Coord, e.Visible)
		}
		c.Visible = e.Visible
	case stream.EventJobFailed:
		c.Failures++
	}
	return nil
}

func (s *summary) sortedChunks() []*chunkState {
	out := make([]*chunkState, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Coord.Y != out[j].Coord.Y {
			return out[i].Coord.Y < out[j].Coord.Y
		}
		return out[i].Coord.X < out[j].Coord.X
	})
	return out
}

func (s *summary) Print(w io.Writer, chunks bool) {
	visible := 0
	for _, c := range s.Chunks {
		if c.Visible {
			visible++
		}
	}
	fmt.Fprintf(w, "run=%s ticks=%d..%d events=%d chunks=%d visible=%d\n", s.RunID, s.FirstTick, s.LastTick, s.Events, len(s.Chunks), visible)

	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, string(k))
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "  %-16s %d\n", k, s.Kinds[stream.EventKind(k)])
	}

	if chunks {
		fmt.Fprintf(w, "%-12s %8s %9s %6s %8s %7s %8s\n", "chunk", "created", "heightmap", "lod", "collider", "visible", "failures")
		for _, c := range s.sortedChunks() {
			fmt.Fprintf(w, "%-12s %8d %9v %6s %8s %7v %8d\n", c.Coord, c.CreatedTick, c.Heightmap, lodString(c.ActiveLOD), lodString(c.ColliderLOD), c.Visible, c.Failures)
		}
	}

	if len(s.Violations) == 0 {
		fmt.Fprintln(w, "replay ok")
		return
	}
	fmt.Fprintf(w, "replay found %d violations:\n", len(s.Violations))
	for _, v := range s.Violations {
		fmt.Fprintf(w, "  %s\n", v)
	}
}

func lodString(lod int) string {
	if lod < 0 {
		return "-"
	}
	return fmt.Sprintf("%d", lod)
}
