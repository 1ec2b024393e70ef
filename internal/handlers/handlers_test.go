package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/scanwalk/engine/internal/cache"
	"github.com/scanwalk/engine/internal/catalog"
	"github.com/scanwalk/engine/internal/dispatcher"
	"github.com/scanwalk/engine/internal/logging"
	"github.com/scanwalk/engine/internal/prefetch"
	"github.com/scanwalk/engine/internal/session"
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

type env struct {
	sessions   *session.Manager
	dispatcher *dispatcher.Dispatcher
	overheads  int
	reloads    int
}

func newEnv(t *testing.T, withReload bool) *env {
	t.Helper()
	logger := testLogger()

	poses := []core.CameraPose{
		{ID: 1, Label: "0_frame_1", Orientation: core.IdentityQuaternion(), ImageRef: "0_frame_1.jpg"},
		{ID: 2, Label: "0_frame_2", Position: core.Position3D{X: 3, Z: 4}, Orientation: core.IdentityQuaternion(), ImageRef: "0_frame_2.jpg"},
	}
	tour, err := catalog.Build(logger, "scan.glb", poses)
	if err != nil {
		t.Fatalf("catalog build failed: %v", err)
	}

	source := mapSource{images: map[string][]byte{
		"0_frame_1.jpg": []byte("img1"),
		"0_frame_2.jpg": []byte("img2"),
	}}
	fetch := prefetch.NewManager(logger, source, cache.NewImageCache())

	e := &env{}
	e.sessions = session.NewManager(logger, tour, fetch,
		session.WithOverheadFunc(func() { e.overheads++ }))

	d, err := dispatcher.New(logging.NewDispatcherLogger(logger))
	if err != nil {
		t.Fatalf("dispatcher setup failed: %v", err)
	}

	deps := Dependencies{Logger: logger, Sessions: e.sessions}
	if withReload {
		deps.Reload = func() error { e.reloads++; return nil }
	}
	NewService(deps).Register(d)
	e.dispatcher = d

	if err := e.sessions.Enter(context.Background(), 1); err != nil {
		t.Fatalf("enter failed: %v", err)
	}
	return e
}

func dispatch(t *testing.T, e *env, command string, args ...string) any {
	t.Helper()
	res, err := e.dispatcher.Dispatch(dispatcher.Event{Command: command, Args: args})
	if err != nil {
		t.Fatalf("dispatch %s failed: %v", command, err)
	}
	return res
}

func TestDragRotatesView(t *testing.T) {
	e := newEnv(t, false)

	before := e.sessions.View().Angles()
	dispatch(t, e, dispatcher.CmdPointerDown, "100", "100")
	dispatch(t, e, dispatcher.CmdPointerMove, "150", "120")
	dispatch(t, e, dispatcher.CmdPointerMove, "200", "140")
	res := dispatch(t, e, dispatcher.CmdPointerUp, "200", "140")

	if click, ok := res.(bool); !ok || click {
		t.Errorf("expected drag to end as non-click, got %v", res)
	}
	after := e.sessions.View().Angles()
	if after.Yaw == before.Yaw && after.Pitch == before.Pitch {
		t.Error("expected drag to rotate the view")
	}
}

func TestTapReportsClick(t *testing.T) {
	e := newEnv(t, false)

	dispatch(t, e, dispatcher.CmdPointerDown, "100", "100")
	res := dispatch(t, e, dispatcher.CmdPointerUp, "102", "101")

	if click, ok := res.(bool); !ok || !click {
		t.Errorf("expected sub-threshold gesture to report a click, got %v", res)
	}
}

func TestWheelZooms(t *testing.T) {
	e := newEnv(t, false)

	fov0 := e.sessions.View().Fov()
	dispatch(t, e, dispatcher.CmdWheel, "-10")

	if e.sessions.View().Fov() >= fov0 {
		t.Errorf("expected wheel to narrow fov, got %f -> %f", fov0, e.sessions.View().Fov())
	}
}

func TestHotspotClickStartsTransition(t *testing.T) {
	e := newEnv(t, false)

	dispatch(t, e, dispatcher.CmdHotspotClick, "2")

	if !e.sessions.Controller().Active() {
		t.Error("expected an active transition after hotspot click")
	}
}

func TestHotspotClick_UnknownTarget(t *testing.T) {
	e := newEnv(t, false)

	_, err := e.dispatcher.Dispatch(dispatcher.Event{
		Command: dispatcher.CmdHotspotClick, Args: []string{"99"},
	})
	if err == nil {
		t.Error("expected error for unknown viewpoint")
	}
}

func TestEscapeReturnsToOverhead(t *testing.T) {
	e := newEnv(t, false)

	dispatch(t, e, dispatcher.CmdEscape)

	if e.overheads != 1 {
		t.Errorf("expected one overhead callback, got %d", e.overheads)
	}
}

func TestTourReload(t *testing.T) {
	e := newEnv(t, true)

	dispatch(t, e, dispatcher.CmdTourReload)

	if e.reloads != 1 {
		t.Errorf("expected one reload, got %d", e.reloads)
	}
}

func TestTourReload_NotRegisteredWithoutFunc(t *testing.T) {
	e := newEnv(t, false)

	if e.dispatcher.HasHandler(dispatcher.CmdTourReload) {
		t.Error("tour:reload should not be registered without a reload func")
	}
}

func TestBadArgs(t *testing.T) {
	e := newEnv(t, false)

	cases := []dispatcher.Event{
		{Command: dispatcher.CmdPointerDown, Args: []string{"100"}},
		{Command: dispatcher.CmdPointerMove, Args: []string{"x", "y"}},
		{Command: dispatcher.CmdWheel, Args: nil},
		{Command: dispatcher.CmdHotspotClick, Args: []string{"notanumber"}},
	}
	for _, ev := range cases {
		if _, err := e.dispatcher.Dispatch(ev); !errors.Is(err, ErrBadArgs) {
			t.Errorf("%s: expected ErrBadArgs, got %v", ev.Command, err)
		}
	}
}
