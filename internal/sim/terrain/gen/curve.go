package gen

import "sort"

type CurveKey struct {
	T float32
	V float32
}

// Curve is a piecewise linear mapping sampled on [0, 1]. It is immutable after
// construction and safe to evaluate from any goroutine.
type Curve struct {
	keys []CurveKey
}

// NewCurve copies and sorts keys. With no keys the curve is the identity.
func NewCurve(keys []CurveKey) Curve {
	k := append([]CurveKey(nil), keys...)
	sort.SliceStable(k, func(i, j int) bool { return k[i].T < k[j].T })
	return Curve{keys: k}
}

func Linear() Curve {
	return NewCurve([]CurveKey{{T: 0, V: 0}, {T: 1, V: 1}})
}

func (c Curve) Evaluate(t float32) float32 {
	if len(c.keys) == 0 {
		return t
	}
	if t <= c.keys[0].T {
		return c.keys[0].V
	}
	for i := 1; i < len(c.keys); i++ {
		b := c.keys[i]
		if t > b.T {
			continue
		}
		a := c.keys[i-1]
		if t == b.T || b.T == a.T {
			return b.V
		}
		f := (t - a.T) / (b.T - a.T)
		return a.V*(1-f) + b.V*f
	}
	return c.keys[len(c.keys)-1].V
}
