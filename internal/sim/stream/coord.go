package stream

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// ChunkCoord identifies a chunk on the infinite grid. Chunk (x, y) is centred
// on world-plane position (x*chunkSize, y*chunkSize).
type ChunkCoord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (c ChunkCoord) String() string { return fmt.Sprintf("(%d,%d)", c.X, c.Y) }

// ViewerChunk returns the coordinate of the chunk whose centre is nearest to
// the plane position. Halfway cases round to even.
func ViewerChunk(pos mgl32.Vec2, chunkSize int) ChunkCoord {
	if chunkSize <= 0 {
		return ChunkCoord{}
	}
	size := float64(chunkSize)
	return ChunkCoord{
		X: int(math.RoundToEven(float64(pos.X()) / size)),
		Y: int(math.RoundToEven(float64(pos.Y()) / size)),
	}
}

// Bounds is an axis-aligned square on the world plane.
type Bounds struct {
	Min mgl32.Vec2
	Max mgl32.Vec2
}

func NewBounds(centre mgl32.Vec2, size float32) Bounds {
	half := mgl32.Vec2{size / 2, size / 2}
	return Bounds{Min: centre.Sub(half), Max: centre.Add(half)}
}

// SqrDistance is the squared distance from p to the nearest point of the
// square; zero when p is inside.
func (b Bounds) SqrDistance(p mgl32.Vec2) float32 {
	var d float32
	for i := 0; i < 2; i++ {
		switch {
		case p[i] < b.Min[i]:
			e := b.Min[i] - p[i]
			d += e * e
		case p[i] > b.Max[i]:
			e := p[i] - b.Max[i]
			d += e * e
		}
	}
	return d
}

func (b Bounds) Distance(p mgl32.Vec2) float32 {
	return float32(math.Sqrt(float64(b.SqrDistance(p))))
}
