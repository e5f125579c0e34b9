package gen

import (
	"github.com/go-gl/mathgl/mgl32"
)

// MeshData is triangulated geometry for one chunk at one LOD. It is never
// modified after GenerateMesh returns.
type MeshData struct {
	LOD       int
	Vertices  []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Triangles []int32
}

func (m *MeshData) VertexCount() int {
	if m == nil {
		return 0
	}
	return len(m.Vertices)
}

func (m *MeshData) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Triangles) / 3
}

// MeshStride is the heightmap step between vertices at a given LOD.
func MeshStride(lod int) int {
	if lod <= 0 {
		return 1
	}
	return lod * 2
}

// meshBuilder keeps the one-vertex border ring apart from the real mesh.
// Border vertices have negative indices and only feed normal calculation, so
// normals along chunk seams match the neighbour's.
type meshBuilder struct {
	vertices  []mgl32.Vec3
	uvs       []mgl32.Vec2
	triangles []int32

	borderVertices  []mgl32.Vec3
	borderTriangles []int32
}

func (b *meshBuilder) addVertex(pos mgl32.Vec3, uv mgl32.Vec2, index int32) {
	if index < 0 {
		b.borderVertices[-index-1] = pos
		return
	}
	b.vertices[index] = pos
	b.uvs[index] = uv
}

func (b *meshBuilder) addTriangle(a, c, d int32) {
	if a < 0 || c < 0 || d < 0 {
		b.borderTriangles = append(b.borderTriangles, a, c, d)
		return
	}
	b.triangles = append(b.triangles, a, c, d)
}

func (b *meshBuilder) vertex(i int32) mgl32.Vec3 {
	if i < 0 {
		return b.borderVertices[-i-1]
	}
	return b.vertices[i]
}

func (b *meshBuilder) surfaceNormal(a, c, d int32) mgl32.Vec3 {
	pa, pb, pc := b.vertex(a), b.vertex(c), b.vertex(d)
	n := pb.Sub(pa).Cross(pc.Sub(pa))
	if n.Len() == 0 {
		return mgl32.Vec3{0, 1, 0}
	}
	return n.Normalize()
}

func (b *meshBuilder) smoothNormals() []mgl32.Vec3 {
	normals := make([]mgl32.Vec3, len(b.vertices))
	accumulate := func(tris []int32) {
		for i := 0; i+2 < len(tris); i += 3 {
			a, c, d := tris[i], tris[i+1], tris[i+2]
			n := b.surfaceNormal(a, c, d)
			for _, idx := range [3]int32{a, c, d} {
				if idx >= 0 {
					normals[idx] = normals[idx].Add(n)
				}
			}
		}
	}
	accumulate(b.triangles)
	accumulate(b.borderTriangles)
	for i, n := range normals {
		if n.Len() > 0 {
			normals[i] = n.Normalize()
		}
	}
	return normals
}

func (b *meshBuilder) smooth(lod int) *MeshData {
	return &MeshData{
		LOD:       lod,
		Vertices:  b.vertices,
		Normals:   b.smoothNormals(),
		UVs:       b.uvs,
		Triangles: b.triangles,
	}
}

// flat gives every triangle its own three vertices so each face is lit with
// its own normal.
func (b *meshBuilder) flat(lod int) *MeshData {
	n := len(b.triangles)
	out := &MeshData{
		LOD:       lod,
		Vertices:  make([]mgl32.Vec3, n),
		Normals:   make([]mgl32.Vec3, n),
		UVs:       make([]mgl32.Vec2, n),
		Triangles: make([]int32, n),
	}
	for i, idx := range b.triangles {
		out.Vertices[i] = b.vertices[idx]
		out.UVs[i] = b.uvs[idx]
		out.Triangles[i] = int32(i)
	}
	for i := 0; i+2 < n; i += 3 {
		face := b.surfaceNormal(b.triangles[i], b.triangles[i+1], b.triangles[i+2])
		out.Normals[i], out.Normals[i+1], out.Normals[i+2] = face, face, face
	}
	return out
}

// GenerateMesh triangulates a bordered heightmap (indexed [x][y]). The outer
// ring of samples is used only for normals. Vertices are centred on the
// chunk origin, X to the right and Z away from the viewer.
func GenerateMesh(heightmap [][]float32, heightMultiplier float32, heightCurve Curve, lod int, flatShading bool) *MeshData {
	bordered := len(heightmap)
	if bordered < 3 {
		return &MeshData{LOD: lod}
	}
	inc := MeshStride(lod)
	meshSize := bordered - 2*inc
	unsimplified := bordered - 2
	if meshSize < 2 {
		return &MeshData{LOD: lod}
	}
	topLeftX := float32(unsimplified-1) / -2
	topLeftZ := float32(unsimplified-1) / 2
	perLine := (meshSize-1)/inc + 1

	indices := make([][]int32, bordered)
	for i := range indices {
		indices[i] = make([]int32, bordered)
	}
	meshIndex, borderIndex := int32(0), int32(-1)
	for y := 0; y < bordered; y += inc {
		for x := 0; x < bordered; x += inc {
			if y == 0 || y == bordered-1 || x == 0 || x == bordered-1 {
				indices[x][y] = borderIndex
				borderIndex--
			} else {
				indices[x][y] = meshIndex
				meshIndex++
			}
		}
	}

	b := &meshBuilder{
		vertices:       make([]mgl32.Vec3, meshIndex),
		uvs:            make([]mgl32.Vec2, meshIndex),
		triangles:      make([]int32, 0, (perLine-1)*(perLine-1)*6),
		borderVertices: make([]mgl32.Vec3, -borderIndex-1),
	}

	for y := 0; y < bordered; y += inc {
		for x := 0; x < bordered; x += inc {
			idx := indices[x][y]
			// Coarse LODs skip samples; stretch the first and last kept
			// vertex to the chunk edge so neighbouring chunks stay closed.
			percent := mgl32.Vec2{
				float32(x-inc) / float32(meshSize-1),
				float32(y-inc) / float32(meshSize-1),
			}
			h := heightCurve.Evaluate(heightmap[x][y]) * heightMultiplier
			pos := mgl32.Vec3{
				topLeftX + percent.X()*float32(unsimplified-1),
				h,
				topLeftZ - percent.Y()*float32(unsimplified-1),
			}
			b.addVertex(pos, percent, idx)

			if x+inc < bordered && y+inc < bordered {
				a := indices[x][y]
				c := indices[x+inc][y]
				d := indices[x][y+inc]
				e := indices[x+inc][y+inc]
				b.addTriangle(a, e, d)
				b.addTriangle(e, a, c)
			}
		}
	}

	if flatShading {
		return b.flat(lod)
	}
	return b.smooth(lod)
}
