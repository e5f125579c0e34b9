package stream

// Handle indexes a chunk in the registry arena. Handles are never reused.
type Handle uint32

type SweepStats struct {
	Viewer  ChunkCoord `json:"viewer"`
	Rings   int        `json:"rings"`
	Created int        `json:"created"`
	Updated int        `json:"updated"`
	Hidden  int        `json:"hidden"`
}

// Registry owns every chunk discovered so far. Chunks live in an arena
// addressed by Handle; the coordinate index maps into it.
type Registry struct {
	ctx *Context

	index  map[ChunkCoord]Handle
	chunks []*Chunk
	listed []uint64 // sweep generation a chunk was last put on the visible list

	gen     uint64
	visible []*Chunk
	spare   []*Chunk
}

func NewRegistry(ctx *Context) *Registry {
	return &Registry{
		ctx:   ctx,
		index: make(map[ChunkCoord]Handle),
		gen:   1,
	}
}

// Sweep updates or creates every chunk in the square window of rings around
// the viewer chunk, then hides the chunks that were visible after the
// previous sweep and did not come back onto the visible list. Other chunks
// outside the window are left as they are.
func (r *Registry) Sweep() SweepStats {
	prev := r.visible
	r.visible = r.spare[:0]
	r.gen++

	viewer := r.ctx.Viewer.Position()
	centre := ViewerChunk(viewer, r.ctx.ChunkSize)
	rings := r.ctx.ChunksInView()
	st := SweepStats{Viewer: centre, Rings: rings}

	for y := -rings; y <= rings; y++ {
		for x := -rings; x <= rings; x++ {
			coord := ChunkCoord{X: centre.X + x, Y: centre.Y + y}
			if h, ok := r.index[coord]; ok {
				c := r.chunks[h]
				was := c.Visible()
				c.Update()
				if was && !c.Visible() {
					st.Hidden++
				}
				st.Updated++
				continue
			}
			r.create(coord)
			st.Created++
		}
	}

	// A chunk that stays in view is never hidden in between.
	for _, c := range prev {
		if r.listed[c.handle] != r.gen {
			if c.Visible() {
				st.Hidden++
			}
			c.SetVisible(false)
		}
	}
	clear(prev)
	r.spare = prev[:0]

	v := [2]float32{viewer.X(), viewer.Y()}
	r.ctx.emit(Event{
		Kind:    EventSweep,
		Coord:   centre,
		LOD:     -1,
		Viewer:  &v,
		Created: st.Created,
		Updated: st.Updated,
		Hidden:  st.Hidden,
	})
	return st
}

func (r *Registry) create(coord ChunkCoord) *Chunk {
	h := Handle(len(r.chunks))
	r.chunks = append(r.chunks, nil)
	r.listed = append(r.listed, 0)
	r.index[coord] = h
	c := newChunk(r.ctx, coord, h, r.markVisible)
	r.chunks[h] = c
	return c
}

// markVisible puts c on the visible list once per sweep generation.
func (r *Registry) markVisible(c *Chunk) {
	if r.listed[c.handle] == r.gen {
		return
	}
	r.listed[c.handle] = r.gen
	r.visible = append(r.visible, c)
}

func (r *Registry) Lookup(coord ChunkCoord) (*Chunk, bool) {
	h, ok := r.index[coord]
	if !ok {
		return nil, false
	}
	return r.chunks[h], true
}

func (r *Registry) Get(h Handle) *Chunk {
	if int(h) >= len(r.chunks) {
		return nil
	}
	return r.chunks[h]
}

func (r *Registry) Len() int { return len(r.chunks) }

// Visible returns a copy of the list the next sweep will hide.
func (r *Registry) Visible() []*Chunk {
	return append([]*Chunk(nil), r.visible...)
}

// Each calls fn for every chunk in creation order.
func (r *Registry) Each(fn func(*Chunk)) {
	for _, c := range r.chunks {
		fn(c)
	}
}
