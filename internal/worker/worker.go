// Package worker drains navigation telemetry queues into the storage
// backend and the metrics pipeline on a fixed flush interval, keeping the
// frame loop free of I/O.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/scanwalk/engine/internal/metrics"
	"github.com/scanwalk/engine/internal/queue"
	"github.com/scanwalk/engine/internal/storage"
	"github.com/scanwalk/engine/pkg/core"
)

// DefaultFlushInterval is how often queued telemetry is written out.
const DefaultFlushInterval = 1 * time.Second

// Queues holds the telemetry write queues fed by the session layer.
type Queues struct {
	Visits      *queue.Queue[core.VisitEvent]
	Transitions *queue.Queue[core.TransitionStats]
}

// NewQueues creates the telemetry queues.
func NewQueues() *Queues {
	return &Queues{
		Visits:      queue.New[core.VisitEvent](),
		Transitions: queue.New[core.TransitionStats](),
	}
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	Logger *slog.Logger

	// Backend persists visits. Nil disables persistence.
	Backend storage.Backend

	// Metrics ships transition and visit telemetry. Nil disables it.
	Metrics *metrics.Manager

	// TourName tags metric points.
	TourName string
}

// Manager owns the flush goroutine.
type Manager struct {
	deps   Dependencies
	queues *Queues

	mu        sync.RWMutex
	isRunning bool
	lastWrite time.Duration
	stopChan  chan struct{}
	wg        sync.WaitGroup
}

// NewManager creates a new worker manager
func NewManager(deps Dependencies, queues *Queues) *Manager {
	return &Manager{
		deps:   deps,
		queues: queues,
	}
}

// IsRunning returns whether the flush goroutine is running.
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isRunning
}

// GetLastWriteDuration returns the duration of the last flush cycle.
func (m *Manager) GetLastWriteDuration() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastWrite
}

// Start launches the flush goroutine. Calling Start on a running manager
// is a no-op.
func (m *Manager) Start(interval time.Duration) {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}

	m.mu.Lock()
	if m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = true
	m.stopChan = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stopChan:
				// final drain before shutdown
				m.Flush(context.Background())
				return
			case <-ticker.C:
				m.Flush(context.Background())
			}
		}
	}()
}

// Stop flushes remaining telemetry and stops the goroutine.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.isRunning {
		m.mu.Unlock()
		return
	}
	m.isRunning = false
	close(m.stopChan)
	m.mu.Unlock()

	m.wg.Wait()
}

// Flush drains both queues and writes their contents out. Failed visit
// writes are logged and dropped; storage errors must not stall the
// session.
func (m *Manager) Flush(ctx context.Context) {
	visits := m.queues.Visits.Drain()
	transitions := m.queues.Transitions.Drain()
	if len(visits) == 0 && len(transitions) == 0 {
		return
	}

	start := time.Now()

	for _, v := range visits {
		if m.deps.Backend != nil {
			if err := m.deps.Backend.RecordVisit(v); err != nil {
				m.deps.Logger.Error("failed to persist visit",
					"viewpoint", v.ViewpointID, "error", err)
			}
		}
		if m.deps.Metrics != nil {
			if err := m.deps.Metrics.WriteVisit(ctx, v); err != nil {
				m.deps.Logger.Error("failed to ship visit metric",
					"viewpoint", v.ViewpointID, "error", err)
			}
		}
	}

	for _, s := range transitions {
		if m.deps.Metrics != nil {
			if err := m.deps.Metrics.WriteTransition(ctx, m.deps.TourName, s); err != nil {
				m.deps.Logger.Error("failed to ship transition metric",
					"from", s.FromID, "to", s.ToID, "error", err)
			}
		}
	}

	elapsed := time.Since(start)
	m.mu.Lock()
	m.lastWrite = elapsed
	m.mu.Unlock()

	m.deps.Logger.Debug("telemetry flushed",
		"visits", len(visits), "transitions", len(transitions), "duration", elapsed)
}
