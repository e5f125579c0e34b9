package provider

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"endlessterrain.io/internal/sim/tuning"
)

func smallTuning(falloff bool) tuning.Tuning {
	t := tuning.Defaults()
	t.Terrain.UseFlatShading = true
	t.Terrain.UseFalloff = falloff
	t.Noise.Octaves = 2
	t.Normalize()
	return t
}

func TestMapProvider_SizeIncludesBorder(t *testing.T) {
	tune := smallTuning(false)
	p := NewMapProvider(tune)
	md, err := p.Generate(mgl32.Vec2{0, 0})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	want := tune.MapChunkSize() + 2
	if md.Size() != want || len(md.Heightmap[0]) != want {
		t.Fatalf("size=%d want %d", md.Size(), want)
	}
}

func TestMapProvider_FalloffClampsToUnitRange(t *testing.T) {
	p := NewMapProvider(smallTuning(true))
	md, err := p.Generate(mgl32.Vec2{94, -94})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for x := range md.Heightmap {
		for y, h := range md.Heightmap[x] {
			if h < 0 || h > 1 {
				t.Fatalf("h[%d][%d]=%v outside [0,1]", x, y, h)
			}
		}
	}
	// Falloff is 1 on the rim, so the rim is flattened to 0.
	if h := md.Heightmap[0][md.Size()/2]; h != 0 {
		t.Fatalf("rim height=%v want 0", h)
	}
}

func TestMapProvider_DifferentChunksDiffer(t *testing.T) {
	p := NewMapProvider(smallTuning(false))
	a, _ := p.Generate(mgl32.Vec2{0, 0})
	b, _ := p.Generate(mgl32.Vec2{94, 0})
	same := true
	for x := range a.Heightmap {
		for y := range a.Heightmap[x] {
			if a.Heightmap[x][y] != b.Heightmap[x][y] {
				same = false
			}
		}
	}
	if same {
		t.Fatalf("neighbouring chunks produced identical heightmaps")
	}
}

func TestMeshProvider_Generate(t *testing.T) {
	tune := smallTuning(false)
	md, _ := NewMapProvider(tune).Generate(mgl32.Vec2{0, 0})
	mp := NewMeshProvider(tune)

	m, err := mp.Generate(md, 2)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if m.LOD != 2 || m.VertexCount() == 0 {
		t.Fatalf("mesh lod=%d vertices=%d", m.LOD, m.VertexCount())
	}
	if _, err := mp.Generate(MapData{}, 0); err == nil {
		t.Fatalf("expected error for empty heightmap")
	}
	if _, err := mp.Generate(md, tuning.MaxLOD+1); err == nil {
		t.Fatalf("expected error for out-of-range lod")
	}
}
