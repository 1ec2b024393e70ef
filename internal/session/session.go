// Package session owns the per-viewpoint lifecycle of the viewer: at most
// one panorama session is live at a time, constructed when a viewpoint
// becomes active and released before the next one starts. The manager is
// also the input surface, translating pointer, wheel, hotspot and escape
// events into orientation and transition calls.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/scanwalk/engine/internal/cache"
	"github.com/scanwalk/engine/internal/catalog"
	"github.com/scanwalk/engine/internal/orientation"
	"github.com/scanwalk/engine/internal/prefetch"
	"github.com/scanwalk/engine/internal/projector"
	"github.com/scanwalk/engine/internal/transition"
	"github.com/scanwalk/engine/pkg/core"
)

// Pointer movement below this many pixels stays a click; past it the
// gesture becomes a drag.
const defaultDragThreshold = 6.0

const defaultSensitivity = 0.25

// Session is the scoped state of one active viewpoint. It is constructed
// on entry and released exactly once on exit, including aborted
// transitions. Err marks an image load failure; the session stays visible
// in that state so the host can render it.
type Session struct {
	Pose      core.CameraPose
	Image     []byte
	EnteredAt time.Time
	Via       bool
	Err       error

	Frames cache.SafeCounter

	released bool
}

// Manager drives sessions for one tour. All methods are called from the
// render engine's frame goroutine; the prefetch manager is the only
// concurrent worker behind it.
type Manager struct {
	logger *slog.Logger
	tour   *catalog.Tour
	fetch  *prefetch.Manager
	view   *orientation.View
	ctrl   *transition.Controller

	onOverhead func()
	onVisit    func(core.VisitEvent)
	now        func() time.Time

	current *Session

	sensitivity   float64
	dragThreshold float64
	pointerDown   bool
	dragging      bool
	downX, downY  float64
	lastX, lastY  float64
}

// Option configures a Manager.
type Option func(*Manager)

// WithOverheadFunc sets the callback fired when escape returns the user
// to the overhead view.
func WithOverheadFunc(fn func()) Option {
	return func(m *Manager) { m.onOverhead = fn }
}

// WithVisitFunc sets the callback fired when a session ends, carrying the
// dwell time for the metrics pipeline.
func WithVisitFunc(fn func(core.VisitEvent)) Option {
	return func(m *Manager) { m.onVisit = fn }
}

// WithClock overrides the wall clock, for stepping transitions in tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithSensitivity sets the drag rotation speed in degrees per pixel.
func WithSensitivity(degPerPx float64) Option {
	return func(m *Manager) { m.sensitivity = degPerPx }
}

// WithDragThreshold sets the pixel distance a pointer must travel before
// a gesture counts as a drag instead of a click.
func WithDragThreshold(px float64) Option {
	return func(m *Manager) { m.dragThreshold = px }
}

// NewManager creates a session manager over a built tour.
func NewManager(logger *slog.Logger, tour *catalog.Tour, fetch *prefetch.Manager, opts ...Option) *Manager {
	m := &Manager{
		logger:        logger.With("component", "session"),
		tour:          tour,
		fetch:         fetch,
		now:           time.Now,
		sensitivity:   defaultSensitivity,
		dragThreshold: defaultDragThreshold,
		onOverhead:    func() {},
		onVisit:       func(core.VisitEvent) {},
	}
	for _, o := range opts {
		o(m)
	}
	m.view = orientation.New(core.ViewAngle{}, transition.NormalFov)
	m.ctrl = transition.NewController(logger, m.view,
		func(id uint32) bool { _, err := tour.Pose(id); return err == nil },
		m.handleSwitch)
	return m
}

// View exposes the live orientation for the render layer.
func (m *Manager) View() *orientation.View { return m.view }

// Controller exposes the transition machine, mainly for overlay opacity.
func (m *Manager) Controller() *transition.Controller { return m.ctrl }

// Current returns the live session, nil when the overhead view is active.
func (m *Manager) Current() *Session { return m.current }

// Enter activates a viewpoint directly, as when the user picks a marker
// on the overhead view. The look direction is kept.
func (m *Manager) Enter(ctx context.Context, id uint32) error {
	return m.activate(ctx, id, nil, m.view.Fov(), false)
}

// activate tears the old session down, then constructs the new one. An
// image load failure still produces a session, flagged with Err, so the
// viewer shows the error state instead of a stale panorama.
func (m *Manager) activate(ctx context.Context, id uint32, angle *core.ViewAngle, fov float64, via bool) error {
	pose, err := m.tour.Pose(id)
	if err != nil {
		return err
	}

	m.teardown()

	if angle != nil {
		m.view.SetAngles(*angle)
	}
	m.view.SetFovScripted(fov)

	s := &Session{Pose: pose, EnteredAt: m.now(), Via: via}
	task := m.fetch.Prefetch(ctx, id, pose.ImageRef)
	img, err := task.Await(ctx)
	if err != nil {
		s.Err = fmt.Errorf("load panorama for viewpoint %d: %w", id, err)
		m.current = s
		m.logger.Error("panorama load failed", "viewpoint", id, "error", err)
		return s.Err
	}
	s.Image = img
	m.current = s
	m.logger.Info("viewpoint active", "viewpoint", id, "label", pose.Label)
	return nil
}

// teardown releases the live session synchronously. No frame callback for
// the old viewpoint may run after this returns.
func (m *Manager) teardown() {
	s := m.current
	if s == nil || s.released {
		return
	}
	s.released = true
	m.current = nil
	m.pointerDown = false
	m.dragging = false
	m.onVisit(core.VisitEvent{
		TourName:      m.tour.ModelRef(),
		ViewpointID:   s.Pose.ID,
		EnteredAt:     s.EnteredAt,
		Dwell:         m.now().Sub(s.EnteredAt),
		ViaTransition: s.Via,
	})
	m.logger.Debug("session released", "viewpoint", s.Pose.ID, "frames", s.Frames.Value())
}

// handleSwitch is the controller's single host callback. The switch
// blocks on the prefetch if the image is not ready yet.
func (m *Manager) handleSwitch(req core.SwitchRequest) {
	if err := m.activate(context.Background(), req.TargetID, req.Angle, req.IncomingFov, true); err != nil {
		m.ctrl.Abort()
		return
	}
	m.ctrl.CompleteSwitch(m.now())
}

// Frame advances the transition machine one render frame.
func (m *Manager) Frame(now time.Time) {
	if m.current == nil {
		return
	}
	m.current.Frames.Inc()
	m.ctrl.Advance(now)
}

// ClickHotspot starts a transition toward another viewpoint. The target
// angle and distance are derived from the catalog geometry.
func (m *Manager) ClickHotspot(targetID uint32) error {
	if m.current == nil {
		return fmt.Errorf("hotspot click with no active viewpoint")
	}
	target, err := m.tour.Pose(targetID)
	if err != nil {
		return err
	}
	p := projector.ProjectPanorama(m.current.Pose, target)
	return m.ctrl.Begin(transition.HotspotClick{
		TargetID: targetID,
		Angle:    &core.ViewAngle{Yaw: p.Yaw, Pitch: p.Pitch},
		Distance: p.Distance,
	}, m.current.Pose.ID, m.now())
}

// SwitchInPlace jumps to a viewpoint keeping the current look direction,
// with no animation.
func (m *Manager) SwitchInPlace(targetID uint32) error {
	if m.current == nil {
		return fmt.Errorf("switch with no active viewpoint")
	}
	return m.ctrl.Begin(transition.HotspotClick{TargetID: targetID}, m.current.Pose.ID, m.now())
}

// PointerDown starts tracking a gesture.
func (m *Manager) PointerDown(x, y float64) {
	m.pointerDown = true
	m.dragging = false
	m.downX, m.downY = x, y
	m.lastX, m.lastY = x, y
}

// PointerMove rotates the view once the gesture crosses the drag
// threshold. Rotation is suppressed while a transition owns the
// orientation.
func (m *Manager) PointerMove(x, y float64) {
	if !m.pointerDown {
		return
	}
	if !m.dragging {
		if math.Hypot(x-m.downX, y-m.downY) < m.dragThreshold {
			return
		}
		m.dragging = true
		m.lastX, m.lastY = x, y
		return
	}
	dx, dy := x-m.lastX, y-m.lastY
	m.lastX, m.lastY = x, y
	if m.ctrl.Active() {
		return
	}
	// Dragging pulls the panorama with the pointer.
	m.view.Rotate(-dx, dy, m.sensitivity)
}

// PointerUp ends the gesture and reports whether it stayed a click, in
// which case the host runs hotspot ray-picking at the release position.
func (m *Manager) PointerUp(x, y float64) (click bool) {
	wasDrag := m.dragging
	m.pointerDown = false
	m.dragging = false
	return !wasDrag
}

// PointerLeave cancels the gesture without producing a click.
func (m *Manager) PointerLeave() {
	m.pointerDown = false
	m.dragging = false
}

// Wheel applies user zoom, suppressed while a transition scripts the
// field of view.
func (m *Manager) Wheel(delta float64) {
	if m.ctrl.Active() {
		return
	}
	m.view.Zoom(delta)
}

// Escape aborts any transition, releases the session and returns the
// user to the overhead view.
func (m *Manager) Escape() {
	m.ctrl.Abort()
	m.fetch.CancelAll()
	m.teardown()
	m.onOverhead()
}

// Close releases the live session. Idempotent.
func (m *Manager) Close() {
	m.ctrl.Abort()
	m.fetch.CancelAll()
	m.teardown()
}
