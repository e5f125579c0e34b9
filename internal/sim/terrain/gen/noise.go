package gen

import (
	"math"
	"math/rand"

	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/ojrac/opensimplex-go"
)

type NormalizeMode int

const (
	// NormalizeLocal stretches each map to its own min/max. Neighbouring
	// chunks will not line up, so it is only useful for single previews.
	NormalizeLocal NormalizeMode = iota
	// NormalizeGlobal scales against the largest height the octave stack can
	// produce, so independently generated chunks share one range.
	NormalizeGlobal
)

type NoiseKind int

const (
	NoiseSimplex NoiseKind = iota
	NoisePerlin
)

// Noise is a 2D gradient noise source returning values in roughly [-1, 1].
type Noise interface {
	Eval2(x, y float64) float64
}

type perlinNoise struct{ p *perlin.Perlin }

func (n perlinNoise) Eval2(x, y float64) float64 { return n.p.Noise2D(x, y) }

// NewNoise returns a deterministic noise source for seed.
func NewNoise(kind NoiseKind, seed int64) Noise {
	if kind == NoisePerlin {
		return perlinNoise{p: perlin.NewPerlin(2, 2, 3, seed)}
	}
	return opensimplex.New(seed)
}

const octaveOffsetRange = 100000

// GenerateHeightmap samples simplex noise into a width x height grid indexed
// [x][y]. offset is the sample-space centre of the map.
func GenerateHeightmap(width, height int, seed int64, scale float64, octaves int, persistence, lacunarity float64, offset mgl32.Vec2, mode NormalizeMode) [][]float32 {
	return GenerateHeightmapFrom(NewNoise(NoiseSimplex, seed), width, height, seed, scale, octaves, persistence, lacunarity, offset, mode)
}

// GenerateHeightmapFrom is GenerateHeightmap with an explicit noise source.
// seed still drives the per-octave sample offsets.
func GenerateHeightmapFrom(noise Noise, width, height int, seed int64, scale float64, octaves int, persistence, lacunarity float64, offset mgl32.Vec2, mode NormalizeMode) [][]float32 {
	if width <= 0 || height <= 0 {
		return nil
	}
	if scale <= 0 {
		scale = 0.0001
	}
	if octaves < 1 {
		octaves = 1
	}

	prng := rand.New(rand.NewSource(seed))
	octaveOffsets := make([][2]float64, octaves)
	maxPossible := 0.0
	amplitude := 1.0
	for i := range octaveOffsets {
		octaveOffsets[i][0] = float64(prng.Intn(2*octaveOffsetRange)-octaveOffsetRange) + float64(offset.X())
		octaveOffsets[i][1] = float64(prng.Intn(2*octaveOffsetRange)-octaveOffsetRange) - float64(offset.Y())
		maxPossible += amplitude
		amplitude *= persistence
	}

	out := make([][]float32, width)
	for x := range out {
		out[x] = make([]float32, height)
	}

	halfW := float64(width) / 2
	halfH := float64(height) / 2
	minLocal := math.MaxFloat64
	maxLocal := -math.MaxFloat64

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			amplitude, frequency, h := 1.0, 1.0, 0.0
			for i := 0; i < octaves; i++ {
				sx := (float64(x) - halfW + octaveOffsets[i][0]) / scale * frequency
				sy := (float64(y) - halfH + octaveOffsets[i][1]) / scale * frequency
				h += noise.Eval2(sx, sy) * amplitude
				amplitude *= persistence
				frequency *= lacunarity
			}
			v := float32(h)
			minLocal = math.Min(minLocal, float64(v))
			maxLocal = math.Max(maxLocal, float64(v))
			out[x][y] = v
		}
	}

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			h := float64(out[x][y])
			switch mode {
			case NormalizeGlobal:
				h = (h + 1) / (maxPossible / 0.9)
				if h < 0 {
					h = 0
				}
			default:
				if maxLocal > minLocal {
					h = (h - minLocal) / (maxLocal - minLocal)
				} else {
					h = 0
				}
			}
			out[x][y] = float32(h)
		}
	}
	return out
}
