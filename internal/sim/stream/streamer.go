package stream

import (
	"context"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/tuning"
)

// Streamer is the consumer side of terrain streaming. All of its methods must
// be called from one goroutine; Run is that goroutine when the host does not
// drive ticks itself.
type Streamer struct {
	ctx      *Context
	registry *Registry
	jobs     Jobs
	log      *log.Logger

	tickRate int
	started  bool
	sweeps   uint64
	viewer   mgl32.Vec3
	onTick   func(TickResult)
}

type TickResult struct {
	Tick    uint64     `json:"tick"`
	Swept   bool       `json:"swept"`
	Sweep   SweepStats `json:"sweep"`
	Drained int        `json:"drained"`
}

type Stats struct {
	RunID   string         `json:"run_id"`
	Tick    uint64         `json:"tick"`
	Sweeps  uint64         `json:"sweeps"`
	Chunks  int            `json:"chunks"`
	Visible int            `json:"visible"`
	Jobs    dispatch.Stats `json:"jobs"`
}

func New(t tuning.Tuning, jobs Jobs, events EventSink, logger *log.Logger) *Streamer {
	ctx := NewContext(t, jobs, events)
	ctx.RunID = uuid.NewString()
	return &Streamer{
		ctx:      ctx,
		registry: NewRegistry(ctx),
		jobs:     jobs,
		log:      logger,
		tickRate: t.TickRateHz,
	}
}

func (s *Streamer) Context() *Context   { return s.ctx }
func (s *Streamer) Registry() *Registry { return s.registry }
func (s *Streamer) RunID() string       { return s.ctx.RunID }

// OnTick sets a function Run calls after every tick, on the consumer
// goroutine. It may call back into the streamer.
func (s *Streamer) OnTick(fn func(TickResult)) { s.onTick = fn }

// Start places the viewer and runs the first sweep unconditionally.
func (s *Streamer) Start(viewer mgl32.Vec3) SweepStats {
	s.started = true
	s.viewer = viewer
	s.ctx.Viewer.Reset(viewer)
	return s.sweep()
}

// Tick advances one frame: it re-sweeps when the viewer has moved past the
// threshold, then hands every finished job to its callback.
func (s *Streamer) Tick(viewer mgl32.Vec3) TickResult {
	if !s.started {
		s.Start(viewer)
	}
	s.ctx.tick++
	s.viewer = viewer
	res := TickResult{Tick: s.ctx.tick}
	if s.ctx.Viewer.Update(viewer) {
		res.Swept = true
		res.Sweep = s.sweep()
	}
	res.Drained = s.jobs.Drain()
	return res
}

func (s *Streamer) sweep() SweepStats {
	s.sweeps++
	st := s.registry.Sweep()
	if s.log != nil && st.Created > 0 {
		s.log.Printf("sweep viewer=%s created=%d updated=%d hidden=%d chunks=%d", st.Viewer, st.Created, st.Updated, st.Hidden, s.registry.Len())
	}
	return st
}

// Run ticks at the configured rate until ctx is done, using the latest
// position received on positions. A closed channel keeps the last position.
func (s *Streamer) Run(ctx context.Context, positions <-chan mgl32.Vec3) error {
	rate := s.tickRate
	if rate <= 0 {
		rate = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(rate))
	defer ticker.Stop()

	viewer := s.viewer
	if !s.started {
		select {
		case p, ok := <-positions:
			if ok {
				viewer = p
			}
		case <-ctx.Done():
			return ctx.Err()
		}
		s.Start(viewer)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-positions:
			if !ok {
				positions = nil
				continue
			}
			viewer = p
		case <-ticker.C:
			res := s.Tick(viewer)
			if s.onTick != nil {
				s.onTick(res)
			}
		}
	}
}

func (s *Streamer) Stats() Stats {
	visible := 0
	s.registry.Each(func(c *Chunk) {
		if c.Visible() {
			visible++
		}
	})
	return Stats{
		RunID:   s.ctx.RunID,
		Tick:    s.ctx.tick,
		Sweeps:  s.sweeps,
		Chunks:  s.registry.Len(),
		Visible: visible,
		Jobs:    s.jobs.Stats(),
	}
}
