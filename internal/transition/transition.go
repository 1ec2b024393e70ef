// Package transition runs the animated viewpoint switch as a state
// machine driven once per frame by Advance. Every animated value is a
// pure function of elapsed time, so a dropped frame never desynchronizes
// the sequence.
package transition

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/scanwalk/engine/internal/mathx"
	"github.com/scanwalk/engine/internal/orientation"
	"github.com/scanwalk/engine/pkg/core"
)

// State identifies the controller's position in the switch sequence.
type State int

const (
	StateIdle State = iota
	StateRotating
	StateZoomingIn
	StateSwitching
	StateZoomingOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRotating:
		return "rotating"
	case StateZoomingIn:
		return "zooming_in"
	case StateSwitching:
		return "switching"
	case StateZoomingOut:
		return "zooming_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Animation timing. The crossfade hands off at the zoom-in midpoint so the
// outgoing and incoming panoramas meet at symmetric fields of view.
const (
	NormalFov      = 75.0
	rotateDuration = 800 * time.Millisecond
	zoomDuration   = 2000 * time.Millisecond
	switchProgress = 0.5

	dimOpacity = 0.5

	zoomAmountMin   = 10.0
	zoomAmountMax   = 45.0
	zoomMaxDistance = 20.0
)

// HotspotClick is a navigation request from the input layer. Angle nil
// means switch without reorienting; Distance is the straight-line range
// to the target used to size the zoom.
type HotspotClick struct {
	TargetID uint32
	Angle    *core.ViewAngle
	Distance float64
}

// SwitchFunc is invoked exactly once per accepted click, when the host
// must construct the target panorama.
type SwitchFunc func(core.SwitchRequest)

// Controller sequences Idle, Rotating, ZoomingIn, Switching and
// ZoomingOut. It owns the orientation while non-Idle; callers gate
// pointer writes on Active. Not safe for concurrent use; one frame
// goroutine drives it.
type Controller struct {
	logger   *slog.Logger
	view     *orientation.View
	knownID  func(id uint32) bool
	onSwitch SwitchFunc

	state   State
	started time.Time
	opacity float64

	targetID   uint32
	distance   float64
	fromAngle  core.ViewAngle
	dYaw       float64
	dPitch     float64
	hasAngle   bool
	fromFov    float64
	targetFov  float64
	clickedAt  time.Time
	fromID     uint32
	switchSent bool
}

// NewController wires the controller to the live view. knownID answers
// whether a viewpoint id exists in the catalog; onSwitch is the single
// host callback.
func NewController(logger *slog.Logger, view *orientation.View, knownID func(uint32) bool, onSwitch SwitchFunc) *Controller {
	return &Controller{
		logger:   logger.With("component", "transition"),
		view:     view,
		knownID:  knownID,
		onSwitch: onSwitch,
		state:    StateIdle,
		opacity:  1,
	}
}

// State returns the current machine state.
func (c *Controller) State() State { return c.state }

// Active reports whether a transition is in flight. While true the
// controller owns the orientation and pointer rotation is suppressed.
func (c *Controller) Active() bool { return c.state != StateIdle }

// Opacity is the overlay opacity the render layer should apply to the
// visible panorama this frame.
func (c *Controller) Opacity() float64 { return c.opacity }

// ZoomFov maps target distance to the field of view the zoom-in lands on.
// Closer targets zoom harder; the zoom amount shrinks linearly out to
// zoomMaxDistance and clamps past it, so the result rises monotonically
// with distance.
func ZoomFov(distance float64) float64 {
	t := mathx.Clamp(distance/zoomMaxDistance, 0, 1)
	amount := mathx.Lerp(zoomAmountMax, zoomAmountMin, t)
	return NormalFov - amount
}

// SymmetricFov reflects a zoomed-in field of view to the far side of
// NormalFov, so the incoming panorama starts as zoomed out as the
// outgoing one ended zoomed in.
func SymmetricFov(targetFov float64) float64 {
	return NormalFov + (NormalFov - targetFov)
}

// Begin accepts a hotspot click. A nil target angle requests an immediate
// switch that keeps the current look direction; otherwise the animated
// sequence starts with the rotate leg. Clicks arriving while a transition
// is in flight are ignored. An unknown target id fails the attempt and
// leaves the machine Idle.
func (c *Controller) Begin(click HotspotClick, fromID uint32, now time.Time) error {
	if c.state != StateIdle {
		c.logger.Debug("click ignored, transition in flight", "state", c.state.String(), "target", click.TargetID)
		return nil
	}
	if !c.knownID(click.TargetID) {
		return fmt.Errorf("begin transition: unknown viewpoint id %d", click.TargetID)
	}

	c.targetID = click.TargetID
	c.fromID = fromID
	c.distance = click.Distance
	c.targetFov = ZoomFov(click.Distance)
	c.clickedAt = now
	c.switchSent = false

	if click.Angle == nil {
		// Switch without reorientation: no animation, current angle kept.
		a := c.view.Angles()
		c.onSwitch(core.SwitchRequest{TargetID: click.TargetID, Angle: &a, IncomingFov: c.view.Fov()})
		c.logger.Info("immediate switch", "from", fromID, "to", click.TargetID)
		return nil
	}

	c.hasAngle = true
	c.fromAngle = c.view.Angles()
	c.dYaw, c.dPitch = orientation.ShortestPath(c.fromAngle, *click.Angle)
	c.state = StateRotating
	c.started = now
	c.logger.Info("transition started", "from", fromID, "to", click.TargetID, "distance", click.Distance)
	return nil
}

// Advance samples the animation at now and performs any due state change.
// Call once per rendered frame.
func (c *Controller) Advance(now time.Time) {
	switch c.state {
	case StateRotating:
		c.advanceRotating(now)
	case StateZoomingIn:
		c.advanceZoomingIn(now)
	case StateZoomingOut:
		c.advanceZoomingOut(now)
	}
}

func (c *Controller) advanceRotating(now time.Time) {
	p := progress(now, c.started, rotateDuration)
	e := CubicInOut(p)
	c.view.SetAngles(core.ViewAngle{
		Yaw:   c.fromAngle.Yaw + c.dYaw*e,
		Pitch: c.fromAngle.Pitch + c.dPitch*e,
	})
	if p >= 1 {
		c.fromFov = c.view.Fov()
		c.state = StateZoomingIn
		c.started = now
	}
}

func (c *Controller) advanceZoomingIn(now time.Time) {
	p := progress(now, c.started, zoomDuration)

	// The handoff fires at the 50% mark with the outgoing panorama fully
	// zoomed and dimmed, so both tweens run against the first half.
	h := mathx.Clamp(p/switchProgress, 0, 1)
	c.view.SetFovScripted(mathx.Lerp(c.fromFov, c.targetFov, QuadInOut(h)))
	c.opacity = mathx.Lerp(1, dimOpacity, h)

	if p >= switchProgress && !c.switchSent {
		c.switchSent = true
		c.view.SetFovScripted(c.targetFov)
		c.opacity = dimOpacity
		a := c.view.Angles()
		// The state must be Switching before the callback runs: the host
		// completes (or aborts) the switch synchronously from inside it.
		c.state = StateSwitching
		c.onSwitch(core.SwitchRequest{
			TargetID:    c.targetID,
			Angle:       &a,
			IncomingFov: SymmetricFov(c.targetFov),
		})
		c.logger.Debug("switch requested", "to", c.targetID, "incomingFov", SymmetricFov(c.targetFov))
	}
}

// CompleteSwitch is called by the session once the new panorama is
// constructed. The view enters at the symmetric zoomed-out field of view
// and dimmed, then eases back to normal.
func (c *Controller) CompleteSwitch(now time.Time) {
	if c.state != StateSwitching {
		return
	}
	c.view.SetFovScripted(SymmetricFov(c.targetFov))
	c.opacity = dimOpacity
	c.state = StateZoomingOut
	c.started = now
}

func (c *Controller) advanceZoomingOut(now time.Time) {
	p := progress(now, c.started, zoomDuration)
	e := QuadOut(p)
	c.view.SetFovScripted(mathx.Lerp(SymmetricFov(c.targetFov), NormalFov, e))
	c.opacity = mathx.Lerp(dimOpacity, 1, e)
	if p >= 1 {
		c.state = StateIdle
		c.opacity = 1
		c.logger.Info("transition finished", "from", c.fromID, "to", c.targetID,
			"duration", now.Sub(c.clickedAt).String())
	}
}

// Stats describes the transition currently or most recently in flight.
func (c *Controller) Stats(now time.Time) core.TransitionStats {
	return core.TransitionStats{
		FromID:    c.fromID,
		ToID:      c.targetID,
		Distance:  c.distance,
		TargetFov: c.targetFov,
		Duration:  now.Sub(c.clickedAt),
	}
}

// Abort drops the machine back to Idle synchronously. Used by escape and
// by session teardown; the field of view is restored to normal so the
// view is never left mid-zoom.
func (c *Controller) Abort() {
	if c.state == StateIdle {
		return
	}
	c.logger.Info("transition aborted", "state", c.state.String(), "target", c.targetID)
	c.view.SetFovScripted(NormalFov)
	c.opacity = 1
	c.state = StateIdle
}

func progress(now, started time.Time, d time.Duration) float64 {
	return mathx.Clamp(float64(now.Sub(started))/float64(d), 0, 1)
}

// CubicInOut is the rotate easing.
func CubicInOut(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	u := 2*t - 2
	return 1 + u*u*u/2
}

// QuadInOut is the zoom-in easing.
func QuadInOut(t float64) float64 {
	if t < 0.5 {
		return 2 * t * t
	}
	u := 1 - t
	return 1 - 2*u*u
}

// QuadOut is the zoom-out easing.
func QuadOut(t float64) float64 {
	u := 1 - t
	return 1 - u*u
}
