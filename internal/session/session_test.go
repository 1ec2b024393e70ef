package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/scanwalk/engine/internal/cache"
	"github.com/scanwalk/engine/internal/catalog"
	"github.com/scanwalk/engine/internal/orientation"
	"github.com/scanwalk/engine/internal/prefetch"
	"github.com/scanwalk/engine/internal/transition"
	"github.com/scanwalk/engine/pkg/core"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type mapSource struct {
	images map[string][]byte
}

func (s mapSource) Fetch(_ context.Context, ref string) ([]byte, error) {
	img, ok := s.images[ref]
	if !ok {
		return nil, errors.New("no such panorama")
	}
	return img, nil
}

func testTour(t *testing.T) *catalog.Tour {
	t.Helper()
	poses := []core.CameraPose{
		{ID: 1, Label: "0_frame_1", Position: core.Position3D{}, Orientation: core.IdentityQuaternion(), ImageRef: "0_frame_1.jpg"},
		{ID: 2, Label: "0_frame_2", Position: core.Position3D{X: 3, Y: 0, Z: 4}, Orientation: core.IdentityQuaternion(), ImageRef: "0_frame_2.jpg"},
		{ID: 3, Label: "0_frame_3", Position: core.Position3D{X: 0, Y: 0, Z: 12}, Orientation: core.IdentityQuaternion(), ImageRef: "0_frame_3.jpg"},
	}
	tour, err := catalog.Build(testLogger(), "scan.glb", poses)
	if err != nil {
		t.Fatalf("unexpected error building tour: %v", err)
	}
	return tour
}

type env struct {
	m      *Manager
	clock  time.Time
	visits []core.VisitEvent
	over   int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{clock: time.Unix(1000, 0)}
	src := mapSource{images: map[string][]byte{
		"0_frame_1.jpg": []byte("p1"),
		"0_frame_2.jpg": []byte("p2"),
	}}
	fetch := prefetch.NewManager(testLogger(), src, cache.NewImageCache())
	e.m = NewManager(testLogger(), testTour(t), fetch,
		WithClock(func() time.Time { return e.clock }),
		WithVisitFunc(func(v core.VisitEvent) { e.visits = append(e.visits, v) }),
		WithOverheadFunc(func() { e.over++ }),
	)
	return e
}

func (e *env) step(d time.Duration) {
	e.clock = e.clock.Add(d)
	e.m.Frame(e.clock)
}

func TestManager_Enter(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := e.m.Current()
	if s == nil {
		t.Fatal("expected live session")
	}
	if s.Pose.ID != 1 {
		t.Errorf("expected viewpoint 1 active, got %d", s.Pose.ID)
	}
	if string(s.Image) != "p1" {
		t.Errorf("expected panorama bytes, got %q", s.Image)
	}
	if s.Err != nil {
		t.Errorf("unexpected session error: %v", s.Err)
	}
}

func TestManager_EnterUnknownViewpoint(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 99); err == nil {
		t.Fatal("expected error for unknown viewpoint")
	}
	if e.m.Current() != nil {
		t.Error("expected no session after failed enter")
	}
}

func TestManager_ImageLoadFailure(t *testing.T) {
	e := newEnv(t)
	err := e.m.Enter(context.Background(), 3) // no image registered for frame 3
	if err == nil {
		t.Fatal("expected image load error")
	}
	s := e.m.Current()
	if s == nil {
		t.Fatal("expected error-state session to stay visible")
	}
	if s.Err == nil {
		t.Error("expected session error state set")
	}
	if e.m.Controller().Active() {
		t.Error("expected machine idle after load failure")
	}
}

func TestManager_HotspotTransitionSwitchesViewpoint(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := e.m.ClickHotspot(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !e.m.Controller().Active() {
		t.Fatal("expected transition active after hotspot click")
	}

	// Rotate leg, then half the zoom leg; the switch fires inside Frame.
	e.step(800 * time.Millisecond)
	if got := e.m.Controller().State(); got != transition.StateZoomingIn {
		t.Fatalf("expected zooming in, got %v", got)
	}
	e.step(1000 * time.Millisecond)

	s := e.m.Current()
	if s == nil || s.Pose.ID != 2 {
		t.Fatalf("expected viewpoint 2 active after switch, got %+v", s)
	}
	if !s.Via {
		t.Error("expected session marked as reached via transition")
	}
	if got := e.m.Controller().State(); got != transition.StateZoomingOut {
		t.Errorf("expected zooming out after completed switch, got %v", got)
	}

	// The zoom-out leg finishes back at the normal field of view.
	e.step(2000 * time.Millisecond)
	if e.m.Controller().Active() {
		t.Error("expected transition finished")
	}
	if got := e.m.View().Fov(); got != transition.NormalFov {
		t.Errorf("expected fov %v, got %v", transition.NormalFov, got)
	}

	if len(e.visits) != 1 {
		t.Fatalf("expected 1 visit recorded for the released session, got %d", len(e.visits))
	}
	if e.visits[0].ViewpointID != 1 {
		t.Errorf("expected visit for viewpoint 1, got %d", e.visits[0].ViewpointID)
	}
}

func TestManager_CarriesAngleAcrossSwitch(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := e.m.ClickHotspot(2); err != nil {
		t.Fatal(err)
	}
	e.step(800 * time.Millisecond)
	e.step(1000 * time.Millisecond)

	// The look direction after the switch is the rotate target, not zero.
	a := e.m.View().Angles()
	if a.Yaw == 0 && a.Pitch == 0 {
		t.Error("expected look direction carried across the switch")
	}
}

func TestManager_DragThreshold(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	start := e.m.View().Angles()

	// A sub-threshold wiggle stays a click and never rotates.
	e.m.PointerDown(100, 100)
	e.m.PointerMove(102, 101)
	if got := e.m.View().Angles(); got != start {
		t.Error("expected no rotation below drag threshold")
	}
	if !e.m.PointerUp(102, 101) {
		t.Error("expected sub-threshold gesture reported as click")
	}

	// A real drag rotates and is not a click.
	e.m.PointerDown(100, 100)
	e.m.PointerMove(140, 100)
	e.m.PointerMove(180, 100)
	if got := e.m.View().Angles(); got == start {
		t.Error("expected rotation after crossing drag threshold")
	}
	if e.m.PointerUp(180, 100) {
		t.Error("expected drag not reported as click")
	}
}

func TestManager_PointerLeaveCancelsGesture(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	e.m.PointerDown(100, 100)
	e.m.PointerLeave()
	before := e.m.View().Angles()
	e.m.PointerMove(300, 300)
	if got := e.m.View().Angles(); got != before {
		t.Error("expected no rotation after pointer leave")
	}
}

func TestManager_InputSuppressedDuringTransition(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := e.m.ClickHotspot(2); err != nil {
		t.Fatal(err)
	}
	e.step(100 * time.Millisecond)
	angles := e.m.View().Angles()
	fov := e.m.View().Fov()

	e.m.PointerDown(0, 0)
	e.m.PointerMove(50, 0)
	e.m.PointerMove(100, 0)
	if got := e.m.View().Angles(); got != angles {
		t.Error("expected pointer rotation suppressed during transition")
	}
	e.m.Wheel(-10)
	if got := e.m.View().Fov(); got != fov {
		t.Error("expected wheel zoom suppressed during transition")
	}
}

func TestManager_WheelZoom(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	e.m.Wheel(-10)
	if got := e.m.View().Fov(); got != transition.NormalFov-10 {
		t.Errorf("expected fov %v, got %v", transition.NormalFov-10, got)
	}
	e.m.Wheel(-1000)
	if got := e.m.View().Fov(); got != orientation.FovMin {
		t.Errorf("expected fov clamped to %v, got %v", orientation.FovMin, got)
	}
}

func TestManager_EscapeReturnsToOverhead(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	if err := e.m.ClickHotspot(2); err != nil {
		t.Fatal(err)
	}
	e.step(100 * time.Millisecond)

	e.m.Escape()
	if e.m.Current() != nil {
		t.Error("expected session released on escape")
	}
	if e.m.Controller().Active() {
		t.Error("expected transition aborted on escape")
	}
	if e.over != 1 {
		t.Errorf("expected overhead callback fired once, got %d", e.over)
	}
	if len(e.visits) != 1 {
		t.Errorf("expected released session's visit recorded, got %d", len(e.visits))
	}
}

func TestManager_SwitchInPlace(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	e.m.View().SetAngles(core.ViewAngle{Yaw: 123, Pitch: 4})

	if err := e.m.SwitchInPlace(2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := e.m.Current()
	if s == nil || s.Pose.ID != 2 {
		t.Fatalf("expected immediate switch to viewpoint 2, got %+v", s)
	}
	if e.m.Controller().Active() {
		t.Error("expected no animation for in-place switch")
	}
	a := e.m.View().Angles()
	if a.Yaw != 123 || a.Pitch != 4 {
		t.Errorf("expected look direction kept, got %+v", a)
	}
}

func TestManager_CloseIdempotent(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	e.m.Close()
	e.m.Close()
	if len(e.visits) != 1 {
		t.Errorf("expected a single visit from double close, got %d", len(e.visits))
	}
}

func TestManager_VisitDwell(t *testing.T) {
	e := newEnv(t)
	if err := e.m.Enter(context.Background(), 1); err != nil {
		t.Fatal(err)
	}
	e.clock = e.clock.Add(90 * time.Second)
	e.m.Close()
	if len(e.visits) != 1 {
		t.Fatalf("expected 1 visit, got %d", len(e.visits))
	}
	if e.visits[0].Dwell != 90*time.Second {
		t.Errorf("expected dwell 90s, got %v", e.visits[0].Dwell)
	}
	if e.visits[0].TourName != "scan.glb" {
		t.Errorf("expected tour name carried, got %q", e.visits[0].TourName)
	}
}

func ExampleManager_ClickHotspot() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	poses := []core.CameraPose{
		{ID: 1, Label: "0_frame_1", ImageRef: "0_frame_1.jpg"},
		{ID: 2, Label: "0_frame_2", Position: core.Position3D{X: 3, Z: 4}, ImageRef: "0_frame_2.jpg"},
	}
	tour, _ := catalog.Build(logger, "scan.glb", poses)
	src := mapSource{images: map[string][]byte{
		"0_frame_1.jpg": {1}, "0_frame_2.jpg": {2},
	}}
	fetch := prefetch.NewManager(logger, src, cache.NewImageCache())
	clock := time.Unix(0, 0)
	m := NewManager(logger, tour, fetch, WithClock(func() time.Time { return clock }))

	_ = m.Enter(context.Background(), 1)
	_ = m.ClickHotspot(2)
	for i := 0; i < 48; i++ {
		clock = clock.Add(100 * time.Millisecond)
		m.Frame(clock)
	}
	fmt.Println(m.Current().Pose.ID, m.Controller().Active())
	// Output: 2 false
}
