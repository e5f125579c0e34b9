package main

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"endlessterrain.io/internal/persistence/indexdb"
	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/stream"
)

func TestViewerPath_Circle(t *testing.T) {
	p, err := newViewerPath("circle", 100, 1000)
	if err != nil {
		t.Fatalf("newViewerPath: %v", err)
	}
	start := p(0)
	if start.X() != 1000 || start.Z() != 0 || start.Y() != 0 {
		t.Fatalf("start=%v", start)
	}
	// A quarter orbit is pi/2 * r / speed seconds.
	q := p(time.Duration(float64(time.Second) * 1000 * 3.14159265 / 2 / 100))
	if q.X() > 0.5 || q.X() < -0.5 || q.Z() < 999.5 {
		t.Fatalf("quarter=%v", q)
	}
	if d := p(7 * time.Second).Len(); d < 999.5 || d > 1000.5 {
		t.Fatalf("left the circle: |p|=%v", d)
	}
}

func TestViewerPath_Line(t *testing.T) {
	p, err := newViewerPath(" LINE ", 40, 0)
	if err != nil {
		t.Fatalf("newViewerPath: %v", err)
	}
	if got := p(2500 * time.Millisecond); got.X() != 100 || got.Z() != 0 {
		t.Fatalf("p(2.5s)=%v", got)
	}
}

func TestViewerPath_Errors(t *testing.T) {
	if _, err := newViewerPath("spiral", 1, 1); err == nil {
		t.Fatalf("expected error for unknown path")
	}
	if _, err := newViewerPath("circle", 1, 0); err == nil {
		t.Fatalf("expected error for zero radius")
	}
	if _, err := newViewerPath("line", -1, 0); err == nil {
		t.Fatalf("expected error for negative speed")
	}
}

func TestWriteMetrics(t *testing.T) {
	var b strings.Builder
	writeMetrics(&b, metrics{
		Stream: stream.Stats{
			RunID:   "r1",
			Tick:    12,
			Sweeps:  3,
			Chunks:  49,
			Visible: 25,
			Jobs:    dispatch.Stats{Submitted: 80, Completed: 70, Failed: 2, Pending: 8, Queued: 1},
		},
		Index:    &indexdb.Stats{QueueCapacity: 10, DropEventTotal: 4},
		Sessions: 1,
	})
	out := b.String()
	for _, want := range []string{
		`endlessterrain_stream_tick{run="r1"} 12`,
		`endlessterrain_stream_chunks{run="r1",state="visible"} 25`,
		`endlessterrain_jobs_total{run="r1",state="failed"} 2`,
		`endlessterrain_jobs_pending{run="r1"} 8`,
		`endlessterrain_observer_sessions{run="r1"} 1`,
		`endlessterrain_index_drop_total{run="r1",kind="event"} 4`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("metrics missing %q:\n%s", want, out)
		}
	}

	b.Reset()
	writeMetrics(&b, metrics{Stream: stream.Stats{RunID: "r2"}})
	if strings.Contains(b.String(), "endlessterrain_index_") {
		t.Fatalf("index metrics without an index:\n%s", b.String())
	}
}

func TestOpenRuntimeIndex(t *testing.T) {
	dir := t.TempDir()
	if idx, err := openRuntimeIndex(dir, true); idx != nil || err != nil {
		t.Fatalf("disabled: idx=%v err=%v", idx, err)
	}

	t.Setenv("ET_INDEX_BACKEND", "none")
	if idx, err := openRuntimeIndex(dir, false); idx != nil || err != nil {
		t.Fatalf("none: idx=%v err=%v", idx, err)
	}

	t.Setenv("ET_INDEX_BACKEND", "d1")
	if _, err := openRuntimeIndex(dir, false); err == nil {
		t.Fatalf("expected error for unsupported backend")
	}

	t.Setenv("ET_INDEX_BACKEND", "")
	t.Setenv("ET_INDEX_SQLITE_PATH", filepath.Join(dir, "x", "i.sqlite"))
	idx, err := openRuntimeIndex(dir, false)
	if err != nil || idx == nil {
		t.Fatalf("sqlite: idx=%v err=%v", idx, err)
	}
	_ = idx.Close()
}
