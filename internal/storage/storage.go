// internal/storage/storage.go
package storage

import "github.com/scanwalk/engine/pkg/core"

// Backend is the interface all storage implementations must satisfy
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Tour persistence. SaveTour upserts by name and replaces the stored
	// viewpoint set wholesale, mirroring how a catalog reload works.
	SaveTour(name, modelRef string, poses []core.CameraPose) error
	LoadTour(name string) (modelRef string, poses []core.CameraPose, err error)

	// Visit recording
	RecordVisit(v core.VisitEvent) error
	Visits(tourName string) ([]core.VisitEvent, error)
}
