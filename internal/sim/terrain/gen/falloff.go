package gen

import "math"

// GenerateFalloffMap returns a size x size mask that is 0 in the middle and
// rises to 1 at the edges. Subtracting it from a heightmap pushes the borders
// under water.
func GenerateFalloffMap(size int) [][]float32 {
	if size <= 0 {
		return nil
	}
	out := make([][]float32, size)
	for i := range out {
		out[i] = make([]float32, size)
		for j := range out[i] {
			x := float64(i)/float64(size)*2 - 1
			y := float64(j)/float64(size)*2 - 1
			v := math.Max(math.Abs(x), math.Abs(y))
			out[i][j] = float32(falloffCurve(v))
		}
	}
	return out
}

func falloffCurve(v float64) float64 {
	const a, b = 3.0, 2.2
	num := math.Pow(v, a)
	return num / (num + math.Pow(b-b*v, a))
}
