// internal/storage/memory/memory.go
package memory

import (
	"fmt"
	"sync"

	"github.com/scanwalk/engine/pkg/core"
)

// TourRecord groups a stored tour with its visit history
type TourRecord struct {
	ModelRef string
	Poses    []core.CameraPose
	Visits   []core.VisitEvent
}

// Backend stores tours and visits in memory. It backs tests and runs where
// persistence is disabled.
type Backend struct {
	tours map[string]*TourRecord // keyed by tour name
	mu    sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{
		tours: make(map[string]*TourRecord),
	}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// SaveTour stores the tour, replacing any previous pose set under the same
// name. Visit history for the name is kept.
func (b *Backend) SaveTour(name, modelRef string, poses []core.CameraPose) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.tours[name]
	if !ok {
		rec = &TourRecord{}
		b.tours[name] = rec
	}
	rec.ModelRef = modelRef
	rec.Poses = append([]core.CameraPose(nil), poses...)
	return nil
}

// LoadTour returns the stored tour by name.
func (b *Backend) LoadTour(name string) (string, []core.CameraPose, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.tours[name]
	if !ok {
		return "", nil, fmt.Errorf("tour not found: %s", name)
	}
	return rec.ModelRef, append([]core.CameraPose(nil), rec.Poses...), nil
}

// RecordVisit appends a visit event. The tour does not have to be saved
// first; visits arrive as soon as a session activates a viewpoint.
func (b *Backend) RecordVisit(v core.VisitEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.tours[v.TourName]
	if !ok {
		rec = &TourRecord{}
		b.tours[v.TourName] = rec
	}
	rec.Visits = append(rec.Visits, v)
	return nil
}

// Visits returns recorded visits for the tour in arrival order.
func (b *Backend) Visits(tourName string) ([]core.VisitEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.tours[tourName]
	if !ok {
		return nil, nil
	}
	return append([]core.VisitEvent(nil), rec.Visits...), nil
}
