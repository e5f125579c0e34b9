package main

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// viewerPath maps time since start to a viewer position in world space.
type viewerPath func(elapsed time.Duration) mgl32.Vec3

// newViewerPath builds a scripted path on the XZ plane. circle orbits the
// origin at radius; line walks +X from the origin.
func newViewerPath(kind string, speed, radius float32) (viewerPath, error) {
	if speed < 0 {
		return nil, fmt.Errorf("speed must be >= 0")
	}
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "circle":
		if radius <= 0 {
			return nil, fmt.Errorf("radius must be > 0")
		}
		omega := float64(speed) / float64(radius)
		return func(elapsed time.Duration) mgl32.Vec3 {
			a := omega * elapsed.Seconds()
			return mgl32.Vec3{radius * float32(math.Cos(a)), 0, radius * float32(math.Sin(a))}
		}, nil
	case "line":
		return func(elapsed time.Duration) mgl32.Vec3 {
			return mgl32.Vec3{speed * float32(elapsed.Seconds()), 0, 0}
		}, nil
	default:
		return nil, fmt.Errorf("unknown path %q (want circle|line)", kind)
	}
}
