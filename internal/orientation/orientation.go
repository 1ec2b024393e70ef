// Package orientation holds the live look direction and field of view of
// the active panorama camera. One View exists per panorama session and is
// the single source of truth for both animation math and host publication.
package orientation

import (
	"math"
	"sync"

	"github.com/scanwalk/engine/internal/mathx"
	"github.com/scanwalk/engine/pkg/core"
)

// Angle and field-of-view limits. Pitch never reaches the poles so the
// yaw shortest-path math stays free of gimbal cases. User zoom is clamped
// to the free-interaction band; scripted transitions may leave it.
const (
	PitchMin = -85.0
	PitchMax = 85.0
	FovMin   = 10.0
	FovMax   = 100.0
)

// View is the mutable look state of the active panorama camera.
// Yaw and pitch are degrees; yaw is unbounded and wraps through
// trigonometric use rather than explicit normalization.
type View struct {
	mu    sync.Mutex
	yaw   float64
	pitch float64
	fov   float64
}

// New creates a View at the given angles and field of view. Pitch is
// clamped on entry; fov is taken as-is so an incoming transition can start
// outside the free-zoom band.
func New(a core.ViewAngle, fov float64) *View {
	return &View{
		yaw:   a.Yaw,
		pitch: mathx.Clamp(a.Pitch, PitchMin, PitchMax),
		fov:   fov,
	}
}

// Angles returns the current yaw and pitch.
func (v *View) Angles() core.ViewAngle {
	v.mu.Lock()
	defer v.mu.Unlock()
	return core.ViewAngle{Yaw: v.yaw, Pitch: v.pitch}
}

// Fov returns the current field of view in degrees.
func (v *View) Fov() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.fov
}

// Rotate applies pointer deltas in pixels scaled by sensitivity
// (degrees per pixel). Pitch is clamped; yaw accumulates without bound.
func (v *View) Rotate(deltaYawPx, deltaPitchPx, sensitivity float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.yaw += deltaYawPx * sensitivity
	v.pitch = mathx.Clamp(v.pitch+deltaPitchPx*sensitivity, PitchMin, PitchMax)
}

// Zoom applies a user-driven field-of-view delta, clamped to the free
// interaction band.
func (v *View) Zoom(deltaFov float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fov = mathx.Clamp(v.fov+deltaFov, FovMin, FovMax)
}

// SetAngles replaces yaw and pitch, clamping pitch. Used to carry the look
// direction across a viewpoint switch and by scripted rotation.
func (v *View) SetAngles(a core.ViewAngle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.yaw = a.Yaw
	v.pitch = mathx.Clamp(a.Pitch, PitchMin, PitchMax)
}

// SetFovScripted replaces the field of view without clamping. Reserved for
// transition animations, which transiently leave the free-zoom band.
func (v *View) SetFovScripted(fov float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.fov = fov
}

// ShortestPath returns the signed deltas that move from one angle to the
// other over the shortest arc. The yaw delta magnitude never exceeds 180;
// pitch is a direct difference since its domain never reaches the poles.
func ShortestPath(from, to core.ViewAngle) (dYaw, dPitch float64) {
	dYaw = math.Mod(to.Yaw-from.Yaw, 360)
	if dYaw > 180 {
		dYaw -= 360
	} else if dYaw < -180 {
		dYaw += 360
	}
	return dYaw, to.Pitch - from.Pitch
}

// LookVector converts a view angle to a unit direction in render space,
// consistent with the projector's convention: pitch measured from the
// horizontal plane, yaw from the +X axis toward +Z.
func LookVector(a core.ViewAngle) core.Position3D {
	yaw := mathx.Deg2Rad(a.Yaw)
	pitch := mathx.Deg2Rad(a.Pitch)
	return core.Position3D{
		X: math.Cos(pitch) * math.Cos(yaw),
		Y: math.Sin(pitch),
		Z: math.Cos(pitch) * math.Sin(yaw),
	}
}
