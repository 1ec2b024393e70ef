// Package handlers routes input commands from the host render engine to
// the session manager.
package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/scanwalk/engine/internal/dispatcher"
	"github.com/scanwalk/engine/internal/session"
)

// ErrBadArgs is returned when a command arrives with missing or
// unparseable arguments.
var ErrBadArgs = errors.New("bad command arguments")

// Dependencies holds all dependencies for the handler service
type Dependencies struct {
	Logger   *slog.Logger
	Sessions *session.Manager

	// Reload rebuilds the tour catalog. Nil disables the tour:reload
	// command.
	Reload func() error
}

// Service translates dispatcher events into session manager calls.
type Service struct {
	deps Dependencies
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	return &Service{deps: deps}
}

// Register registers all input handlers with the dispatcher.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	// Pointer traffic is high volume, only state changes are logged.
	d.Register(dispatcher.CmdPointerDown, s.handlePointerDown)
	d.Register(dispatcher.CmdPointerMove, s.handlePointerMove)
	d.Register(dispatcher.CmdPointerUp, s.handlePointerUp)
	d.Register(dispatcher.CmdPointerLeave, s.handlePointerLeave)
	d.Register(dispatcher.CmdWheel, s.handleWheel)

	d.Register(dispatcher.CmdHotspotClick, s.handleHotspotClick, dispatcher.Logged())
	d.Register(dispatcher.CmdEscape, s.handleEscape, dispatcher.Logged())

	if s.deps.Reload != nil {
		d.Register(dispatcher.CmdTourReload, s.handleTourReload, dispatcher.Logged())
	}
}

func (s *Service) handlePointerDown(e dispatcher.Event) (any, error) {
	x, y, err := parseXY(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.Sessions.PointerDown(x, y)
	return nil, nil
}

func (s *Service) handlePointerMove(e dispatcher.Event) (any, error) {
	x, y, err := parseXY(e.Args)
	if err != nil {
		return nil, err
	}
	s.deps.Sessions.PointerMove(x, y)
	return nil, nil
}

// handlePointerUp reports whether the gesture ended as a click rather
// than a drag, so the host can run hit testing.
func (s *Service) handlePointerUp(e dispatcher.Event) (any, error) {
	x, y, err := parseXY(e.Args)
	if err != nil {
		return nil, err
	}
	return s.deps.Sessions.PointerUp(x, y), nil
}

func (s *Service) handlePointerLeave(e dispatcher.Event) (any, error) {
	s.deps.Sessions.PointerLeave()
	return nil, nil
}

func (s *Service) handleWheel(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("%w: wheel needs a delta", ErrBadArgs)
	}
	delta, err := strconv.ParseFloat(e.Args[0], 64)
	if err != nil {
		return nil, fmt.Errorf("%w: wheel delta %q", ErrBadArgs, e.Args[0])
	}
	s.deps.Sessions.Wheel(delta)
	return nil, nil
}

func (s *Service) handleHotspotClick(e dispatcher.Event) (any, error) {
	if len(e.Args) < 1 {
		return nil, fmt.Errorf("%w: hotspot click needs a target id", ErrBadArgs)
	}
	id, err := strconv.ParseUint(e.Args[0], 10, 32)
	if err != nil {
		return nil, fmt.Errorf("%w: target id %q", ErrBadArgs, e.Args[0])
	}
	if err := s.deps.Sessions.ClickHotspot(uint32(id)); err != nil {
		return nil, err
	}
	return nil, nil
}

func (s *Service) handleEscape(e dispatcher.Event) (any, error) {
	s.deps.Sessions.Escape()
	return nil, nil
}

func (s *Service) handleTourReload(e dispatcher.Event) (any, error) {
	if err := s.deps.Reload(); err != nil {
		return nil, fmt.Errorf("tour reload failed: %w", err)
	}
	s.deps.Logger.Info("tour reloaded")
	return nil, nil
}

// parseXY reads a pixel coordinate pair from command arguments.
func parseXY(args []string) (x, y float64, err error) {
	if len(args) < 2 {
		return 0, 0, fmt.Errorf("%w: need x and y", ErrBadArgs)
	}
	x, err = strconv.ParseFloat(args[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: x %q", ErrBadArgs, args[0])
	}
	y, err = strconv.ParseFloat(args[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: y %q", ErrBadArgs, args[1])
	}
	return x, y, nil
}
