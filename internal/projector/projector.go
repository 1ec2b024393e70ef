// Package projector computes hotspot marker placement for both display
// modes: screen-space positions on the overhead model view and local
// spherical angles inside the active panorama. All functions are pure;
// hit-testing stays with the render engine's ray picking.
package projector

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/scanwalk/engine/internal/mathx"
	"github.com/scanwalk/engine/pkg/core"
)

// Overhead marker size band in pixels and the distance scale that maps
// camera range to size before clamping.
const (
	markerMinSize = 8.0
	markerMaxSize = 48.0
	markerScale   = 220.0
)

// OverheadCamera describes the perspective camera of the overhead model
// view. FovY is the vertical field of view in degrees; Width and Height
// are the viewport in pixels. Up is the world up axis, +Y in render space.
type OverheadCamera struct {
	Eye    core.Position3D
	Target core.Position3D
	FovY   float64
	Aspect float64
	Width  int
	Height int
}

// CullConfig bounds panorama hotspot visibility. Markers past MaxSpread
// degrees from the look direction or closer than MinDistance are hidden.
type CullConfig struct {
	MaxSpread   float64
	MinDistance float64
}

// FalloffConfig tunes the distance falloff of panorama marker scale and
// opacity. The curve is a blend between a linear ramp and the same ramp
// raised to Power; Blend 0 is purely linear, 1 purely powered.
type FalloffConfig struct {
	MaxDistance float64
	Power       float64
	Blend       float64
	MinScale    float64
	MaxScale    float64
	MinOpacity  float64
	MaxOpacity  float64
}

// DefaultCull returns the stock visibility bounds.
func DefaultCull() CullConfig {
	return CullConfig{MaxSpread: 70, MinDistance: 0.5}
}

// DefaultFalloff returns the stock distance fade.
func DefaultFalloff() FalloffConfig {
	return FalloffConfig{
		MaxDistance: 30,
		Power:       2,
		Blend:       0.6,
		MinScale:    0.25,
		MaxScale:    1.0,
		MinOpacity:  0.15,
		MaxOpacity:  1.0,
	}
}

// ProjectOverhead maps a viewpoint position through the overhead camera's
// view and perspective matrices to a pixel position. Behind is set when
// the point sits at or behind the camera plane; OnScreen reflects the
// viewport bounds. Marker size shrinks with camera distance inside a
// fixed band.
func ProjectOverhead(cam OverheadCamera, target core.Position3D) core.OverheadMarker {
	vp := new(mat.Dense)
	vp.Mul(perspective(cam.FovY, cam.Aspect), lookAt(cam.Eye, cam.Target))

	clip := new(mat.VecDense)
	clip.MulVec(vp, mat.NewVecDense(4, []float64{target.X, target.Y, target.Z, 1}))

	w := clip.AtVec(3)
	m := core.OverheadMarker{Behind: w <= 0}
	dist := cam.Eye.Dist(target)
	m.Size = mathx.Clamp(markerScale/math.Max(dist, 1e-9), markerMinSize, markerMaxSize)
	if m.Behind {
		return m
	}

	ndcX := clip.AtVec(0) / w
	ndcY := clip.AtVec(1) / w
	m.X = (ndcX + 1) / 2 * float64(cam.Width)
	m.Y = (1 - ndcY) / 2 * float64(cam.Height)
	m.OnScreen = ndcX >= -1 && ndcX <= 1 && ndcY >= -1 && ndcY <= 1
	return m
}

// ProjectPanorama derives the local spherical placement of a target
// viewpoint as seen from the current one. The relative vector is remapped
// by a quarter-turn about the up axis because the panorama's forward axis
// differs from the overhead scene's forward axis.
func ProjectPanorama(current, target core.CameraPose) core.HotspotPlacement {
	rel := target.Position.Sub(current.Position)

	localX := rel.Z
	localY := rel.Y
	localZ := -rel.X

	horiz := math.Hypot(localX, localZ)
	return core.HotspotPlacement{
		Yaw:      mathx.Rad2Deg(math.Atan2(localZ, localX)),
		Pitch:    mathx.Rad2Deg(math.Atan2(localY, horiz)),
		Distance: current.Position.Dist(target.Position),
		Scale:    1,
		Opacity:  1,
		Visible:  true,
	}
}

// Cull hides a placement that falls outside the angular spread around the
// current look direction or under the minimum distance. Display decision
// only; the catalog is untouched.
func Cull(p core.HotspotPlacement, look core.ViewAngle, cfg CullConfig) core.HotspotPlacement {
	dYaw := mathx.AngleDist(look.Yaw, p.Yaw)
	dPitch := math.Abs(p.Pitch - look.Pitch)
	if dYaw > cfg.MaxSpread || dPitch > cfg.MaxSpread || p.Distance < cfg.MinDistance {
		p.Visible = false
	}
	return p
}

// Falloff maps distance to marker scale and opacity. Near markers read as
// emphatic and far ones fade toward near-transparent; the curve blends a
// linear ramp with its Power-th power and is not a physical light model.
func Falloff(distance float64, cfg FalloffConfig) (scale, opacity float64) {
	t := mathx.Clamp(distance/cfg.MaxDistance, 0, 1)
	lin := 1 - t
	f := mathx.Lerp(lin, math.Pow(lin, cfg.Power), cfg.Blend)
	scale = mathx.Lerp(cfg.MinScale, cfg.MaxScale, f)
	opacity = mathx.Lerp(cfg.MinOpacity, cfg.MaxOpacity, f)
	return scale, opacity
}

// Apply combines culling and falloff into a render-ready placement.
func Apply(p core.HotspotPlacement, look core.ViewAngle, cull CullConfig, fall FalloffConfig) core.HotspotPlacement {
	p = Cull(p, look, cull)
	if !p.Visible {
		return p
	}
	p.Scale, p.Opacity = Falloff(p.Distance, fall)
	return p
}

// lookAt builds a right-handed view matrix with +Y up.
func lookAt(eye, target core.Position3D) *mat.Dense {
	f := normalize(target.Sub(eye))
	r := normalize(cross(f, core.Position3D{Y: 1}))
	u := cross(r, f)
	return mat.NewDense(4, 4, []float64{
		r.X, r.Y, r.Z, -dot(r, eye),
		u.X, u.Y, u.Z, -dot(u, eye),
		-f.X, -f.Y, -f.Z, dot(f, eye),
		0, 0, 0, 1,
	})
}

// perspective builds a standard perspective projection; fovY in degrees.
func perspective(fovY, aspect float64) *mat.Dense {
	const near, far = 0.1, 10000.0
	f := 1 / math.Tan(mathx.Deg2Rad(fovY)/2)
	return mat.NewDense(4, 4, []float64{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, (far + near) / (near - far), 2 * far * near / (near - far),
		0, 0, -1, 0,
	})
}

func dot(a, b core.Position3D) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

func cross(a, b core.Position3D) core.Position3D {
	return core.Position3D{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func normalize(v core.Position3D) core.Position3D {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	return core.Position3D{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}
