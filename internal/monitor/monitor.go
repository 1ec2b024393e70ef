// Package monitor periodically reports viewer health: transition state,
// telemetry queue depths and flush latency. The report lands in a status
// file next to the logs and, when metrics are up, in the frame_timing
// bucket.
package monitor

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/scanwalk/engine/internal/metrics"
	"github.com/scanwalk/engine/internal/worker"
)

// Snapshot is one status report.
type Snapshot struct {
	Time            time.Time `json:"time"`
	TourName        string    `json:"tourName"`
	ViewpointID     uint32    `json:"viewpointId"`
	TransitionState string    `json:"transitionState"`
	Frames          uint      `json:"frames"`
	VisitQueue      int       `json:"visitQueue"`
	TransitionQueue int       `json:"transitionQueue"`
	LastWriteMs     float64   `json:"lastWriteMs"`
	SessionHasError bool      `json:"sessionHasError"`
}

// SessionStatus is the live state the session layer exposes to the
// monitor.
type SessionStatus struct {
	ViewpointID     uint32
	TransitionState string
	Frames          uint
	HasError        bool
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Logger        *slog.Logger
	Queues        *worker.Queues
	WorkerManager *worker.Manager
	Metrics       *metrics.Manager
	TourName      string
	StatusDir     string

	// SessionStatus reports the active session. Nil fields out the
	// session part of the snapshot.
	SessionStatus func() SessionStatus
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	interval  time.Duration
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewService creates a new monitor service
func NewService(deps Dependencies, interval time.Duration) *Service {
	if interval <= 0 {
		interval = time.Second
	}
	return &Service{
		deps:     deps,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot builds the current status report.
func (s *Service) Snapshot() Snapshot {
	snap := Snapshot{
		Time:     time.Now(),
		TourName: s.deps.TourName,
	}
	if s.deps.SessionStatus != nil {
		st := s.deps.SessionStatus()
		snap.ViewpointID = st.ViewpointID
		snap.TransitionState = st.TransitionState
		snap.Frames = st.Frames
		snap.SessionHasError = st.HasError
	}
	if s.deps.Queues != nil {
		snap.VisitQueue = s.deps.Queues.Visits.Len()
		snap.TransitionQueue = s.deps.Queues.Transitions.Len()
	}
	if s.deps.WorkerManager != nil {
		snap.LastWriteMs = float64(s.deps.WorkerManager.GetLastWriteDuration().Microseconds()) / 1000
	}
	return snap
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	statusPath := filepath.Join(s.deps.StatusDir, "status.json")
	statusFile, err := os.Create(statusPath)
	if err != nil {
		s.deps.Logger.Error("Error creating status file", "path", statusPath, "error", err)
		statusFile = nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
			if statusFile != nil {
				statusFile.Close()
			}
		}()

		s.deps.Logger.Debug("Starting status monitor goroutine", "interval", s.interval)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				return
			case <-ticker.C:
				snap := s.Snapshot()
				s.report(snap, statusFile)
			}
		}
	}()

	return nil
}

func (s *Service) report(snap Snapshot, statusFile *os.File) {
	if statusFile != nil {
		out, err := json.MarshalIndent(snap, "", "  ")
		if err == nil {
			statusFile.Truncate(0)
			statusFile.Seek(0, 0)
			statusFile.Write(append(out, '\n'))
		}
	}

	if s.deps.Metrics != nil {
		err := s.deps.Metrics.WriteFrameTiming(
			context.Background(), snap.TourName, snap.Frames, s.interval)
		if err != nil {
			s.deps.Logger.Error("Error writing frame timing metric", "error", err)
		}
	}
}

// Stop stops the status monitor
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	s.mu.Unlock()

	s.wg.Wait()
}
