package indexdb

import (
	"testing"

	"endlessterrain.io/internal/sim/stream"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqEvent, event: stream.Event{Tick: 1}}

	s.StreamEvent(stream.Event{Tick: 2, Kind: stream.EventChunkCreated})
	s.StreamEvent(stream.Event{Tick: 2, Kind: stream.EventVisibility})
	s.StreamEvent(stream.Event{Tick: 2, Kind: stream.EventSweep})

	st := s.Stats()
	if st.DropEventTotal != 2 {
		t.Fatalf("DropEventTotal=%d want=2", st.DropEventTotal)
	}
	if st.DropSweepTotal != 1 {
		t.Fatalf("DropSweepTotal=%d want=1", st.DropSweepTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_NilIsNoop(t *testing.T) {
	var s *SQLiteIndex
	s.StreamEvent(stream.Event{Kind: stream.EventSweep})
	if st := s.Stats(); st != (Stats{}) {
		t.Fatalf("nil stats=%+v", st)
	}
}
