package stream

import "github.com/go-gl/mathgl/mgl32"

// ViewerTracker projects the viewer onto the world plane and reports when it
// has moved far enough since the last sweep to warrant another one.
type ViewerTracker struct {
	scale        float32
	sqrThreshold float32

	position mgl32.Vec2
	old      mgl32.Vec2
}

func NewViewerTracker(uniformScale, moveThreshold float32) *ViewerTracker {
	if uniformScale <= 0 {
		uniformScale = 1
	}
	return &ViewerTracker{
		scale:        uniformScale,
		sqrThreshold: moveThreshold * moveThreshold,
	}
}

// Project maps a world position to plane coordinates (X, Z over the scale).
func (v *ViewerTracker) Project(world mgl32.Vec3) mgl32.Vec2 {
	return mgl32.Vec2{world.X() / v.scale, world.Z() / v.scale}
}

// Update records the current position and reports whether it is more than
// the threshold away from the position of the last positive report.
func (v *ViewerTracker) Update(world mgl32.Vec3) bool {
	v.position = v.Project(world)
	d := v.position.Sub(v.old)
	if d.Dot(d) > v.sqrThreshold {
		v.old = v.position
		return true
	}
	return false
}

// Reset places the viewer without a movement report.
func (v *ViewerTracker) Reset(world mgl32.Vec3) {
	v.position = v.Project(world)
	v.old = v.position
}

func (v *ViewerTracker) Position() mgl32.Vec2 { return v.position }

// Anchor is the position at the last positive Update.
func (v *ViewerTracker) Anchor() mgl32.Vec2 { return v.old }
