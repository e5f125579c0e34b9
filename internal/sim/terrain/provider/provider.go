package provider

import (
	"fmt"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/terrain/gen"
	"endlessterrain.io/internal/sim/tuning"
)

// MapData is the heightmap for one chunk, including a one-sample border on
// every side. It is shared read-only between the chunk and all of its LOD
// meshes and must not be modified after it is produced.
type MapData struct {
	Heightmap [][]float32
}

func (m MapData) Size() int { return len(m.Heightmap) }

// MapProvider turns a chunk centre into MapData. Safe for concurrent use.
type MapProvider struct {
	size       int // bordered edge length
	noise      gen.Noise
	settings   tuning.Noise
	mode       gen.NormalizeMode
	useFalloff bool

	falloffOnce sync.Once
	falloff     [][]float32
}

func NewMapProvider(t tuning.Tuning) *MapProvider {
	return &MapProvider{
		size:       t.MapChunkSize() + 2,
		noise:      gen.NewNoise(t.NoiseKind(), t.Noise.Seed),
		settings:   t.Noise,
		mode:       t.NormalizeMode(),
		useFalloff: t.Terrain.UseFalloff,
	}
}

// Size is the bordered heightmap edge length produced by Generate.
func (p *MapProvider) Size() int { return p.size }

func (p *MapProvider) Generate(centre mgl32.Vec2) (MapData, error) {
	if p.size < 3 {
		return MapData{}, fmt.Errorf("heightmap size %d too small", p.size)
	}
	n := p.settings
	offset := centre.Add(mgl32.Vec2{n.Offset[0], n.Offset[1]})
	hm := gen.GenerateHeightmapFrom(p.noise, p.size, p.size, n.Seed, n.Scale, n.Octaves, n.Persistence, n.Lacunarity, offset, p.mode)

	if p.useFalloff {
		fm := p.falloffMap()
		for x := 0; x < p.size; x++ {
			for y := 0; y < p.size; y++ {
				hm[x][y] = mgl32.Clamp(hm[x][y]-fm[x][y], 0, 1)
			}
		}
	}
	return MapData{Heightmap: hm}, nil
}

func (p *MapProvider) falloffMap() [][]float32 {
	p.falloffOnce.Do(func() {
		p.falloff = gen.GenerateFalloffMap(p.size)
	})
	return p.falloff
}

// MeshProvider triangulates MapData at a requested LOD. Safe for concurrent use.
type MeshProvider struct {
	heightMultiplier float32
	curve            gen.Curve
	flatShading      bool
}

func NewMeshProvider(t tuning.Tuning) *MeshProvider {
	return &MeshProvider{
		heightMultiplier: t.Terrain.MeshHeightMultiplier,
		curve:            t.HeightCurve(),
		flatShading:      t.Terrain.UseFlatShading,
	}
}

func (p *MeshProvider) Generate(data MapData, lod int) (*gen.MeshData, error) {
	if data.Size() < 3 {
		return nil, fmt.Errorf("mesh lod %d: heightmap size %d too small", lod, data.Size())
	}
	if lod < 0 || lod > tuning.MaxLOD {
		return nil, fmt.Errorf("mesh lod %d out of range [0, %d]", lod, tuning.MaxLOD)
	}
	return gen.GenerateMesh(data.Heightmap, p.heightMultiplier, p.curve, lod, p.flatShading), nil
}
