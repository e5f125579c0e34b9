package stream

import (
	"errors"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/dispatch"
	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/terrain/provider"
)

var (
	errNilMesh      = errors.New("mesh job returned no geometry")
	errNilHeightmap = errors.New("map job returned an empty heightmap")
)

type ChunkState int

const (
	AwaitingHeightmap ChunkState = iota
	HasHeightmap
)

func (s ChunkState) String() string {
	if s == HasHeightmap {
		return "HAS_HEIGHTMAP"
	}
	return "AWAITING_HEIGHTMAP"
}

// Chunk is one square of terrain. It requests its heightmap once, on
// creation, and from then on picks a LOD from the live viewer distance every
// time it is updated. Chunks are hidden when out of range, never freed.
type Chunk struct {
	ctx      *Context
	coord    ChunkCoord
	handle   Handle
	position mgl32.Vec2
	bounds   Bounds

	state   ChunkState
	mapData provider.MapData
	mapErr  error

	lodMeshes []*LODMesh
	collision *LODMesh

	// Index into ctx.LODs of the mesh currently shown, -1 before the first.
	activeLOD  int
	activeMesh *gen.MeshData
	collider   *gen.MeshData
	visible    bool

	onVisible func(*Chunk)
}

func newChunk(ctx *Context, coord ChunkCoord, handle Handle, onVisible func(*Chunk)) *Chunk {
	size := float32(ctx.ChunkSize)
	position := mgl32.Vec2{float32(coord.X) * size, float32(coord.Y) * size}
	c := &Chunk{
		ctx:       ctx,
		coord:     coord,
		handle:    handle,
		position:  position,
		bounds:    NewBounds(position, size),
		activeLOD: -1,
		onVisible: onVisible,
	}
	c.lodMeshes = make([]*LODMesh, len(ctx.LODs))
	for i, info := range ctx.LODs {
		c.lodMeshes[i] = newLODMesh(ctx, coord, info.LOD, c.Update)
		if info.UseForCollider && c.collision == nil {
			c.collision = c.lodMeshes[i]
		}
	}
	ctx.emit(Event{Kind: EventChunkCreated, Coord: coord, LOD: -1})
	ctx.Jobs.RequestMapData(position, c.onMapData)
	return c
}

func (c *Chunk) onMapData(res dispatch.Result[provider.MapData]) {
	if c.state == HasHeightmap {
		return
	}
	if res.Err != nil || res.Value.Size() == 0 {
		c.mapErr = res.Err
		if c.mapErr == nil {
			c.mapErr = errNilHeightmap
		}
		c.ctx.emit(Event{Kind: EventJobFailed, Coord: c.coord, LOD: -1, Err: c.mapErr.Error()})
		return
	}
	c.mapData = res.Value
	c.state = HasHeightmap
	c.ctx.emit(Event{Kind: EventHeightmapReady, Coord: c.coord, LOD: -1})
	c.Update()
}

// Update re-evaluates visibility and LOD against the current viewer position.
// It does nothing until the heightmap has arrived.
func (c *Chunk) Update() {
	if c.state != HasHeightmap {
		return
	}

	dst := c.bounds.Distance(c.ctx.Viewer.Position())
	visible := dst <= c.ctx.MaxViewDst

	if visible {
		lodIndex := SelectLOD(c.ctx.LODs, dst)
		if lodIndex != c.activeLOD {
			slot := c.lodMeshes[lodIndex]
			if slot.Ready() {
				c.activeLOD = lodIndex
				c.activeMesh = slot.Mesh()
				c.ctx.emit(Event{Kind: EventMeshActive, Coord: c.coord, LOD: slot.LOD(), Mesh: c.activeMesh})
			} else {
				slot.RequestIfNeeded(c.mapData)
			}
		}

		// Collision geometry only matters right next to the viewer.
		if lodIndex == 0 && c.collision != nil {
			if c.collision.Ready() {
				if c.collider != c.collision.Mesh() {
					c.collider = c.collision.Mesh()
					c.ctx.emit(Event{Kind: EventColliderActive, Coord: c.coord, LOD: c.collision.LOD(), Mesh: c.collider})
				}
			} else {
				c.collision.RequestIfNeeded(c.mapData)
			}
		}

		if c.onVisible != nil {
			c.onVisible(c)
		}
	}

	c.SetVisible(visible)
}

func (c *Chunk) SetVisible(v bool) {
	if c.visible == v {
		return
	}
	c.visible = v
	c.ctx.emit(Event{Kind: EventVisibility, Coord: c.coord, LOD: -1, Visible: v})
}

func (c *Chunk) Coord() ChunkCoord    { return c.coord }
func (c *Chunk) Handle() Handle       { return c.handle }
func (c *Chunk) Position() mgl32.Vec2 { return c.position }
func (c *Chunk) Bounds() Bounds       { return c.bounds }
func (c *Chunk) State() ChunkState    { return c.state }
func (c *Chunk) Visible() bool        { return c.visible }
func (c *Chunk) MapData() provider.MapData {
	return c.mapData
}

// MapErr is the error of the heightmap job, if it failed.
func (c *Chunk) MapErr() error { return c.mapErr }

// ActiveLOD returns the LOD value of the mesh currently shown.
func (c *Chunk) ActiveLOD() (int, bool) {
	if c.activeLOD < 0 {
		return 0, false
	}
	return c.lodMeshes[c.activeLOD].LOD(), true
}

func (c *Chunk) ActiveMesh() *gen.MeshData   { return c.activeMesh }
func (c *Chunk) ColliderMesh() *gen.MeshData { return c.collider }

// Slots returns the chunk's LOD slots in LOD table order.
func (c *Chunk) Slots() []*LODMesh { return c.lodMeshes }

// CollisionSlot is the slot flagged for collision, or nil.
func (c *Chunk) CollisionSlot() *LODMesh { return c.collision }

// Transform returns the world origin and uniform scale to render the
// chunk's mesh with.
func (c *Chunk) Transform() (mgl32.Vec3, float32) {
	s := c.ctx.UniformScale
	return mgl32.Vec3{c.position.X() * s, 0, c.position.Y() * s}, s
}
