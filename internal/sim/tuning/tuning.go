package tuning

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"endlessterrain.io/internal/sim/terrain/gen"
)

const (
	// Vertices per chunk edge. Flat shading duplicates vertices per triangle,
	// so its chunks are kept smaller.
	mapChunkSize     = 239
	flatMapChunkSize = 95

	// Highest LOD index the mesh generator accepts (stride 12).
	MaxLOD = 6
)

type Tuning struct {
	TickRateHz          int     `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	Workers             int     `yaml:"workers" json:"workers"`
	ViewerMoveThreshold float32 `yaml:"viewer_move_threshold" json:"viewer_move_threshold"`

	Terrain Terrain   `yaml:"terrain" json:"terrain"`
	Noise   Noise     `yaml:"noise" json:"noise"`
	LODs    []LODInfo `yaml:"lods" json:"lods"`
}

type Terrain struct {
	UniformScale         float32    `yaml:"uniform_scale" json:"uniform_scale"`
	UseFlatShading       bool       `yaml:"use_flat_shading" json:"use_flat_shading"`
	UseFalloff           bool       `yaml:"use_falloff" json:"use_falloff"`
	MeshHeightMultiplier float32    `yaml:"mesh_height_multiplier" json:"mesh_height_multiplier"`
	MeshHeightCurve      []CurveKey `yaml:"mesh_height_curve" json:"mesh_height_curve"`
}

type CurveKey struct {
	T float32 `yaml:"t" json:"t"`
	V float32 `yaml:"v" json:"v"`
}

type Noise struct {
	Kind          string     `yaml:"kind" json:"kind"`
	NormalizeMode string     `yaml:"normalize_mode" json:"normalize_mode"`
	Scale         float64    `yaml:"scale" json:"scale"`
	Octaves       int        `yaml:"octaves" json:"octaves"`
	Persistence   float64    `yaml:"persistence" json:"persistence"`
	Lacunarity    float64    `yaml:"lacunarity" json:"lacunarity"`
	Seed          int64      `yaml:"seed" json:"seed"`
	Offset        [2]float32 `yaml:"offset" json:"offset"`
}

// LODInfo is one row of the LOD table. Rows are ordered by ascending
// VisibleDstThreshold; the last row's threshold is the max view distance.
type LODInfo struct {
	LOD                 int     `yaml:"lod" json:"lod"`
	VisibleDstThreshold float32 `yaml:"visible_dst_threshold" json:"visible_dst_threshold"`
	UseForCollider      bool    `yaml:"use_for_collider" json:"use_for_collider"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:          60,
		Workers:             runtime.NumCPU(),
		ViewerMoveThreshold: 25,
		Terrain: Terrain{
			UniformScale:         2.5,
			MeshHeightMultiplier: 30,
			MeshHeightCurve: []CurveKey{
				{T: 0, V: 0},
				{T: 0.4, V: 0.05},
				{T: 1, V: 1},
			},
		},
		Noise: Noise{
			Kind:          "SIMPLEX",
			NormalizeMode: "GLOBAL",
			Scale:         50,
			Octaves:       4,
			Persistence:   0.5,
			Lacunarity:    2,
			Seed:          1337,
		},
		LODs: []LODInfo{
			{LOD: 0, VisibleDstThreshold: 200, UseForCollider: true},
			{LOD: 2, VisibleDstThreshold: 400},
			{LOD: 4, VisibleDstThreshold: 600},
		},
	}
}

func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 60
	}
	if t.Workers <= 0 {
		t.Workers = runtime.NumCPU()
	}
	if t.ViewerMoveThreshold <= 0 {
		t.ViewerMoveThreshold = 25
	}
	if t.Terrain.UniformScale <= 0 {
		t.Terrain.UniformScale = 1
	}
	if len(t.Terrain.MeshHeightCurve) == 0 {
		t.Terrain.MeshHeightCurve = []CurveKey{{T: 0, V: 0}, {T: 1, V: 1}}
	}

	n := &t.Noise
	n.Kind = strings.ToUpper(strings.TrimSpace(n.Kind))
	if n.Kind == "" {
		n.Kind = "SIMPLEX"
	}
	n.NormalizeMode = strings.ToUpper(strings.TrimSpace(n.NormalizeMode))
	if n.NormalizeMode == "" {
		n.NormalizeMode = "LOCAL"
	}
	if n.Scale <= 0 {
		n.Scale = 0.0001
	}
	if n.Octaves < 1 {
		n.Octaves = 1
	}
	if n.Lacunarity < 1 {
		n.Lacunarity = 1
	}
	if n.Persistence < 0 {
		n.Persistence = 0
	}
	if n.Persistence > 1 {
		n.Persistence = 1
	}
}

func (t Tuning) Validate() error {
	switch t.Noise.Kind {
	case "SIMPLEX", "PERLIN":
	default:
		return fmt.Errorf("noise.kind %q must be SIMPLEX or PERLIN", t.Noise.Kind)
	}
	switch t.Noise.NormalizeMode {
	case "LOCAL", "GLOBAL":
	default:
		return fmt.Errorf("noise.normalize_mode %q must be LOCAL or GLOBAL", t.Noise.NormalizeMode)
	}
	if len(t.LODs) == 0 {
		return fmt.Errorf("lods must not be empty")
	}
	edge := t.MapChunkSize() + 1 // bordered heightmap edge minus one
	colliders := 0
	var prev float32
	for i, l := range t.LODs {
		if l.LOD < 0 || l.LOD > MaxLOD {
			return fmt.Errorf("lods[%d] lod must be in [0, %d]", i, MaxLOD)
		}
		if edge%gen.MeshStride(l.LOD) != 0 {
			return fmt.Errorf("lods[%d] lod %d does not evenly divide a %d vertex chunk", i, l.LOD, t.MapChunkSize())
		}
		if l.VisibleDstThreshold <= 0 {
			return fmt.Errorf("lods[%d] visible_dst_threshold must be > 0", i)
		}
		if i > 0 && l.VisibleDstThreshold <= prev {
			return fmt.Errorf("lods[%d] visible_dst_threshold must be greater than lods[%d]", i, i-1)
		}
		prev = l.VisibleDstThreshold
		if l.UseForCollider {
			colliders++
		}
	}
	if colliders != 1 {
		return fmt.Errorf("exactly one lod must set use_for_collider (got %d)", colliders)
	}
	return nil
}

// MapChunkSize is the number of vertices along one chunk edge.
func (t Tuning) MapChunkSize() int {
	if t.Terrain.UseFlatShading {
		return flatMapChunkSize
	}
	return mapChunkSize
}

// ChunkSize is the chunk edge length in world-plane units.
func (t Tuning) ChunkSize() int { return t.MapChunkSize() - 1 }

func (t Tuning) MaxViewDst() float32 {
	if len(t.LODs) == 0 {
		return 0
	}
	return t.LODs[len(t.LODs)-1].VisibleDstThreshold
}

func (t Tuning) MinHeight() float32 {
	return t.Terrain.UniformScale * t.Terrain.MeshHeightMultiplier * t.HeightCurve().Evaluate(0)
}

func (t Tuning) MaxHeight() float32 {
	return t.Terrain.UniformScale * t.Terrain.MeshHeightMultiplier * t.HeightCurve().Evaluate(1)
}

// HeightCurve converts the configured keys into the mesh generator's curve.
func (t Tuning) HeightCurve() gen.Curve {
	keys := make([]gen.CurveKey, 0, len(t.Terrain.MeshHeightCurve))
	for _, k := range t.Terrain.MeshHeightCurve {
		keys = append(keys, gen.CurveKey{T: k.T, V: k.V})
	}
	return gen.NewCurve(keys)
}

func (t Tuning) NormalizeMode() gen.NormalizeMode {
	if t.Noise.NormalizeMode == "GLOBAL" {
		return gen.NormalizeGlobal
	}
	return gen.NormalizeLocal
}

func (t Tuning) NoiseKind() gen.NoiseKind {
	if t.Noise.Kind == "PERLIN" {
		return gen.NoisePerlin
	}
	return gen.NoiseSimplex
}

