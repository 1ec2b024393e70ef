package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/scanwalk/engine/internal/cache"
	"github.com/scanwalk/engine/internal/catalog"
	"github.com/scanwalk/engine/internal/channel"
	"github.com/scanwalk/engine/internal/config"
	"github.com/scanwalk/engine/internal/dispatcher"
	"github.com/scanwalk/engine/internal/geo"
	"github.com/scanwalk/engine/internal/handlers"
	"github.com/scanwalk/engine/internal/logging"
	"github.com/scanwalk/engine/internal/metrics"
	"github.com/scanwalk/engine/internal/monitor"
	"github.com/scanwalk/engine/internal/parser"
	"github.com/scanwalk/engine/internal/prefetch"
	"github.com/scanwalk/engine/internal/projector"
	"github.com/scanwalk/engine/internal/session"
	"github.com/scanwalk/engine/internal/storage"
	"github.com/scanwalk/engine/internal/worker"
	"github.com/scanwalk/engine/pkg/core"
)

// run executes one CLI command. initRuntime has already been called.
func run(args []string) error {
	switch cmd := args[0]; cmd {
	case "validate":
		if len(args) != 2 {
			return fmt.Errorf("usage: scanwalk validate <poses-file>")
		}
		return cmdValidate(args[1])
	case "inspect":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: scanwalk inspect <poses-file> <id> [k]")
		}
		return cmdInspect(args[1], args[2:])
	case "simulate":
		if len(args) != 4 {
			return fmt.Errorf("usage: scanwalk simulate <poses-file> <from> <to>")
		}
		return cmdSimulate(args[1], args[2], args[3])
	case "save":
		if len(args) != 3 {
			return fmt.Errorf("usage: scanwalk save <poses-file> <tour-name>")
		}
		return cmdSave(args[1], args[2])
	case "load":
		if len(args) != 2 {
			return fmt.Errorf("usage: scanwalk load <tour-name>")
		}
		return cmdLoad(args[1])
	case "visits":
		if len(args) != 2 {
			return fmt.Errorf("usage: scanwalk visits <tour-name>")
		}
		return cmdVisits(args[1])
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func newParser() *parser.Parser {
	return parser.New(Logger,
		config.GetString("tour.framesDir"),
		config.GetString("tour.imageExt"))
}

// buildTour parses a poses file and assembles the catalog under the given
// tour name. Returns the raw record count alongside, for drop reporting.
func buildTour(path, name string) (*catalog.Tour, int, error) {
	raw, err := readRawRecords(path)
	if err != nil {
		return nil, 0, err
	}
	poses := newParser().ParseAll(raw)
	tour, err := catalog.Build(Logger, name, poses)
	if err != nil {
		return nil, 0, err
	}
	return tour, len(raw), nil
}

func zlogger() zerolog.Logger {
	return zerolog.New(LogFile).With().Timestamp().Logger()
}

// openBackend creates and initializes the configured storage backend.
func openBackend() (storage.Backend, error) {
	backend, err := storage.NewBackend(config.GetStorageConfig(), zlogger())
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("storage init: %w", err)
	}
	return backend, nil
}

func cullFromConfig() projector.CullConfig {
	return projector.CullConfig{
		MaxSpread:   config.GetFloat("hotspot.maxSpreadDeg"),
		MinDistance: config.GetFloat("hotspot.minDistance"),
	}
}

func falloffFromConfig() projector.FalloffConfig {
	f := projector.DefaultFalloff()
	f.MaxDistance = config.GetFloat("hotspot.falloffMaxDistance")
	return f
}

func cmdValidate(path string) error {
	name := tourNameFromPath(path)
	tour, rawCount, err := buildTour(path, name)
	if err != nil {
		return err
	}

	fmt.Printf("tour %q: %d records, %d valid poses, %d dropped\n",
		name, rawCount, tour.Len(), rawCount-tour.Len())

	if min, max, ok := tour.Footprint().MinMaxXYs(); ok {
		fmt.Printf("footprint: x [%.2f, %.2f] z [%.2f, %.2f]\n",
			min.X, max.X, min.Y, max.Y)
	}

	if tour.Len() >= 2 {
		walk, err := geo.TourPath(tour.Poses())
		if err != nil {
			return err
		}
		fmt.Printf("capture path length: %.2f m\n", walk.Length())
	}

	if anchor := config.GetString("tour.anchor"); anchor != "" {
		pt, elev, err := geo.AnchorFromString(anchor)
		if err != nil {
			return fmt.Errorf("tour.anchor: %w", err)
		}
		coords, ok := pt.Coordinates()
		if !ok {
			return fmt.Errorf("tour.anchor: empty point")
		}
		merc, err := geo.Anchor3857From4326(coords.X, coords.Y)
		if err != nil {
			return fmt.Errorf("tour.anchor: %w", err)
		}
		fmt.Printf("anchor: %s elev %.1f -> EPSG:3857 %s\n",
			pt.AsText(), elev, merc.AsText())
	}

	return nil
}

func cmdInspect(path string, args []string) error {
	id64, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("viewpoint id %q: %w", args[0], err)
	}
	id := uint32(id64)

	k := 5
	if len(args) == 2 {
		k, err = strconv.Atoi(args[1])
		if err != nil || k < 1 {
			return fmt.Errorf("neighbor count %q", args[1])
		}
	}

	tour, _, err := buildTour(path, tourNameFromPath(path))
	if err != nil {
		return err
	}
	pose, err := tour.Pose(id)
	if err != nil {
		return err
	}

	fmt.Printf("viewpoint %d %q\n", pose.ID, pose.Label)
	fmt.Printf("  position: (%.3f, %.3f, %.3f)\n",
		pose.Position.X, pose.Position.Y, pose.Position.Z)
	fmt.Printf("  image: %s\n", pose.ImageRef)

	neighbors, err := tour.NeighborsOf(id, k)
	if err != nil {
		return err
	}

	cull := cullFromConfig()
	fall := falloffFromConfig()

	// Overhead camera straight above the footprint center, framing the
	// whole tour.
	min, max, _ := tour.Footprint().MinMaxXYs()
	center := core.Position3D{X: (min.X + max.X) / 2, Z: (min.Y + max.Y) / 2}
	span := max.X - min.X
	if max.Y-min.Y > span {
		span = max.Y - min.Y
	}
	cam := projector.OverheadCamera{
		Eye:    core.Position3D{X: center.X, Y: span + 10, Z: center.Z},
		Target: center,
		FovY:   60,
		Aspect: 16.0 / 9.0,
		Width:  1280,
		Height: 720,
	}

	fmt.Printf("nearest %d neighbors:\n", len(neighbors))
	for _, n := range neighbors {
		// Aim the look direction at the target so the placement shows
		// the full falloff rather than the cull result.
		p := projector.ProjectPanorama(pose, n)
		p = projector.Apply(p, core.ViewAngle{Yaw: p.Yaw, Pitch: p.Pitch}, cull, fall)
		m := projector.ProjectOverhead(cam, n.Position)

		fmt.Printf("  %4d %-20s dist %6.2f  yaw %7.2f pitch %6.2f  scale %.2f opacity %.2f  overhead (%.0f, %.0f)\n",
			n.ID, n.Label, p.Distance, p.Yaw, p.Pitch, p.Scale, p.Opacity, m.X, m.Y)
	}

	return nil
}

func cmdSave(path, name string) error {
	tour, rawCount, err := buildTour(path, name)
	if err != nil {
		return err
	}

	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	if err := backend.SaveTour(name, tour.ModelRef(), tour.Poses()); err != nil {
		return fmt.Errorf("save tour: %w", err)
	}

	Logger.Info("tour saved", "tour", name, "viewpoints", tour.Len())
	fmt.Printf("saved tour %q: %d viewpoints (%d records read)\n",
		name, tour.Len(), rawCount)
	return nil
}

func cmdLoad(name string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	modelRef, poses, err := backend.LoadTour(name)
	if err != nil {
		return err
	}

	fmt.Printf("tour %q: model %q, %d viewpoints\n", name, modelRef, len(poses))
	for _, p := range poses {
		fmt.Printf("  %4d %-20s (%.3f, %.3f, %.3f)\n",
			p.ID, p.Label, p.Position.X, p.Position.Y, p.Position.Z)
	}
	return nil
}

func cmdVisits(name string) error {
	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()

	visits, err := backend.Visits(name)
	if err != nil {
		return err
	}
	if len(visits) == 0 {
		fmt.Printf("no visits recorded for tour %q\n", name)
		return nil
	}

	fmt.Printf("%d visits for tour %q:\n", len(visits), name)
	for _, v := range visits {
		via := "direct"
		if v.ViaTransition {
			via = "transition"
		}
		fmt.Printf("  viewpoint %4d  entered %s  dwell %8s  %s\n",
			v.ViewpointID, v.EnteredAt.Format(time.RFC3339), v.Dwell.Round(time.Millisecond), via)
	}
	return nil
}

// placeholderSource wraps the configured image source and substitutes a
// marker payload when a panorama cannot be fetched, so a simulation run
// does not depend on the frames being present.
type placeholderSource struct {
	inner prefetch.Source
}

func (s placeholderSource) Fetch(ctx context.Context, ref string) ([]byte, error) {
	img, err := s.inner.Fetch(ctx, ref)
	if err != nil {
		return []byte("placeholder:" + ref), nil
	}
	return img, nil
}

func sourceFromConfig() (prefetch.Source, error) {
	switch src := config.GetString("tour.source"); src {
	case "file":
		return prefetch.FileSource{}, nil
	case "http":
		return prefetch.NewHTTPSource(config.GetString("tour.serverUrl")), nil
	default:
		return nil, fmt.Errorf("unknown tour.source %q", src)
	}
}

// scriptStep is one scheduled input event of a simulation run.
type scriptStep struct {
	frame   int
	command string
	args    []string
}

func cmdSimulate(path, fromStr, toStr string) error {
	from64, err := strconv.ParseUint(fromStr, 10, 32)
	if err != nil {
		return fmt.Errorf("from id %q: %w", fromStr, err)
	}
	to64, err := strconv.ParseUint(toStr, 10, 32)
	if err != nil {
		return fmt.Errorf("to id %q: %w", toStr, err)
	}
	fromID, toID := uint32(from64), uint32(to64)

	name := tourNameFromPath(path)
	tour, _, err := buildTour(path, name)
	if err != nil {
		return err
	}
	if _, err := tour.Pose(toID); err != nil {
		return err
	}

	backend, err := openBackend()
	if err != nil {
		return err
	}
	defer backend.Close()
	if err := backend.SaveTour(name, tour.ModelRef(), tour.Poses()); err != nil {
		return fmt.Errorf("save tour: %w", err)
	}

	var metricsMgr *metrics.Manager
	if config.GetBool("influx.enabled") {
		metricsMgr = metrics.NewManager(zlogger(),
			filepath.Join(config.GetString("logsDir"), "metrics_backup.gz"))
		if err := metricsMgr.Connect(); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer metricsMgr.Close()
	}

	queues := worker.NewQueues()
	workerMgr := worker.NewManager(worker.Dependencies{
		Logger:   Logger,
		Backend:  backend,
		Metrics:  metricsMgr,
		TourName: name,
	}, queues)
	workerMgr.Start(worker.DefaultFlushInterval)
	defer workerMgr.Stop()

	// The session logger tags every record with the live viewpoint.
	var sessions *session.Manager
	sessLogger := slog.New(logging.NewContextHandler(Logger.Handler(), func() []slog.Attr {
		attrs := []slog.Attr{slog.String("tour", name)}
		if sessions != nil {
			if s := sessions.Current(); s != nil {
				attrs = append(attrs, slog.Uint64("viewpoint", uint64(s.Pose.ID)))
			}
		}
		return attrs
	}))

	src, err := sourceFromConfig()
	if err != nil {
		return err
	}
	fetch := prefetch.NewManager(sessLogger, placeholderSource{inner: src}, cache.NewImageCache())

	// Simulated render clock, one 60 fps frame per loop iteration.
	const frameDt = 16667 * time.Microsecond
	simNow := time.Now()
	atOverhead := false

	sessions = session.NewManager(sessLogger, tour, fetch,
		session.WithClock(func() time.Time { return simNow }),
		session.WithVisitFunc(func(v core.VisitEvent) { queues.Visits.Push(v) }),
		session.WithOverheadFunc(func() { atOverhead = true }),
		session.WithSensitivity(config.GetFloat("input.sensitivity")),
		session.WithDragThreshold(config.GetFloat("input.dragThresholdPx")),
	)
	defer sessions.Close()

	monitorSvc := monitor.NewService(monitor.Dependencies{
		Logger:        Logger,
		Queues:        queues,
		WorkerManager: workerMgr,
		Metrics:       metricsMgr,
		TourName:      name,
		StatusDir:     config.GetString("logsDir"),
		SessionStatus: func() monitor.SessionStatus {
			st := monitor.SessionStatus{
				TransitionState: sessions.Controller().State().String(),
			}
			if s := sessions.Current(); s != nil {
				st.ViewpointID = s.Pose.ID
				st.Frames = uint(s.Frames.Value())
				st.HasError = s.Err != nil
			}
			return st
		},
	}, time.Second)
	if err := monitorSvc.Start(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	defer monitorSvc.Stop()

	d, err := dispatcher.New(logging.NewDispatcherLogger(Logger))
	if err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	handlers.NewService(handlers.Dependencies{
		Logger:   Logger,
		Sessions: sessions,
	}).Register(d)

	if err := sessions.Enter(context.Background(), fromID); err != nil {
		return err
	}
	fmt.Printf("entered viewpoint %d\n", fromID)

	wheelStep := strconv.Itoa(-config.GetInt("input.wheelStep"))
	const clickFrame = 12
	script := []scriptStep{
		{2, dispatcher.CmdPointerDown, []string{"640", "360"}},
		{3, dispatcher.CmdPointerMove, []string{"700", "372"}},
		{4, dispatcher.CmdPointerMove, []string{"760", "384"}},
		{5, dispatcher.CmdPointerUp, []string{"760", "384"}},
		{8, dispatcher.CmdWheel, []string{wheelStep}},
		{clickFrame, dispatcher.CmdHotspotClick, []string{toStr}},
	}

	// Input events flow through the same pump a render host would use:
	// pushed onto a channel as they arrive, drained once per frame.
	events := channel.New[dispatcher.Event](64)
	defer events.Close()

	ctrl := sessions.Controller()
	prevState := ctrl.State().String()
	const maxFrames = 1200

	frame := 0
	for ; frame < maxFrames; frame++ {
		for _, step := range script {
			if step.frame == frame {
				events.Send(dispatcher.Event{
					Command:   step.command,
					Args:      step.args,
					Timestamp: simNow,
				})
			}
		}
		for {
			e, ok := events.TryReceive()
			if !ok {
				break
			}
			if _, err := d.Dispatch(e); err != nil {
				return fmt.Errorf("dispatch %s: %w", e.Command, err)
			}
		}

		sessions.Frame(simNow)

		if st := ctrl.State().String(); st != prevState {
			view := sessions.View()
			fmt.Printf("frame %4d  %-10s fov %6.2f  yaw %7.2f pitch %6.2f  opacity %.2f\n",
				frame, st, view.Fov(), view.Angles().Yaw, view.Angles().Pitch, ctrl.Opacity())
			prevState = st
		}

		if frame > clickFrame && !ctrl.Active() {
			break
		}
		simNow = simNow.Add(frameDt)
	}

	if ctrl.Active() {
		return fmt.Errorf("transition still %s after %d frames", ctrl.State(), frame)
	}

	stats := ctrl.Stats(simNow)
	queues.Transitions.Push(stats)
	fmt.Printf("transition %d -> %d: %.2f m, target fov %.2f, %s\n",
		stats.FromID, stats.ToID, stats.Distance, stats.TargetFov,
		stats.Duration.Round(time.Millisecond))

	// Dwell a moment at the destination, then leave for the overhead view
	// so the final visit is recorded.
	simNow = simNow.Add(2 * time.Second)
	if _, err := d.Dispatch(dispatcher.Event{Command: dispatcher.CmdEscape, Timestamp: simNow}); err != nil {
		return err
	}
	if !atOverhead {
		return fmt.Errorf("escape did not reach the overhead view")
	}

	workerMgr.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	workerMgr.Flush(ctx)

	visits, err := backend.Visits(name)
	if err != nil {
		return err
	}
	fmt.Printf("simulation done: %d frames, %d visits persisted\n", frame, len(visits))
	return nil
}
