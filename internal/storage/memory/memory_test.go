// internal/storage/memory/memory_test.go
package memory_test

import (
	"sync"
	"testing"
	"time"

	"github.com/scanwalk/engine/internal/storage"
	"github.com/scanwalk/engine/internal/storage/memory"
	"github.com/scanwalk/engine/pkg/core"
)

// Verify Backend implements storage.Backend interface
var _ storage.Backend = (*memory.Backend)(nil)

func testPoses() []core.CameraPose {
	return []core.CameraPose{
		{ID: 1, Label: "vp_001", ImageRef: "pano_001.jpg", Position: core.Position3D{X: 0, Y: 1.6, Z: 0}, Orientation: core.IdentityQuaternion()},
		{ID: 2, Label: "vp_002", ImageRef: "pano_002.jpg", Position: core.Position3D{X: 3, Y: 1.6, Z: 4}, Orientation: core.IdentityQuaternion()},
	}
}

func TestInitAndClose(t *testing.T) {
	b := memory.New()

	if err := b.Init(); err != nil {
		t.Errorf("Init failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSaveAndLoadTour(t *testing.T) {
	b := memory.New()

	if err := b.SaveTour("museum", "scan.glb", testPoses()); err != nil {
		t.Fatalf("SaveTour failed: %v", err)
	}

	modelRef, poses, err := b.LoadTour("museum")
	if err != nil {
		t.Fatalf("LoadTour failed: %v", err)
	}
	if modelRef != "scan.glb" {
		t.Errorf("expected modelRef=scan.glb, got %s", modelRef)
	}
	if len(poses) != 2 {
		t.Fatalf("expected 2 poses, got %d", len(poses))
	}
	if poses[1].ID != 2 || poses[1].Position.Z != 4 {
		t.Errorf("pose 2 not preserved: %+v", poses[1])
	}
}

func TestLoadTour_NotFound(t *testing.T) {
	b := memory.New()

	if _, _, err := b.LoadTour("missing"); err == nil {
		t.Error("expected error loading unknown tour")
	}
}

func TestSaveTour_ReplacesPoses(t *testing.T) {
	b := memory.New()

	if err := b.SaveTour("museum", "scan.glb", testPoses()); err != nil {
		t.Fatalf("SaveTour failed: %v", err)
	}
	if err := b.SaveTour("museum", "scan_v2.glb", testPoses()[:1]); err != nil {
		t.Fatalf("second SaveTour failed: %v", err)
	}

	modelRef, poses, err := b.LoadTour("museum")
	if err != nil {
		t.Fatalf("LoadTour failed: %v", err)
	}
	if modelRef != "scan_v2.glb" {
		t.Errorf("expected updated modelRef, got %s", modelRef)
	}
	if len(poses) != 1 {
		t.Errorf("expected pose set replaced, got %d poses", len(poses))
	}
}

func TestRecordAndQueryVisits(t *testing.T) {
	b := memory.New()
	entered := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	// visits may arrive before the tour is saved
	err := b.RecordVisit(core.VisitEvent{
		TourName:    "museum",
		ViewpointID: 1,
		EnteredAt:   entered,
		Dwell:       30 * time.Second,
	})
	if err != nil {
		t.Fatalf("RecordVisit failed: %v", err)
	}
	err = b.RecordVisit(core.VisitEvent{
		TourName:      "museum",
		ViewpointID:   2,
		EnteredAt:     entered.Add(30 * time.Second),
		Dwell:         10 * time.Second,
		ViaTransition: true,
	})
	if err != nil {
		t.Fatalf("RecordVisit failed: %v", err)
	}

	visits, err := b.Visits("museum")
	if err != nil {
		t.Fatalf("Visits failed: %v", err)
	}
	if len(visits) != 2 {
		t.Fatalf("expected 2 visits, got %d", len(visits))
	}
	if visits[0].ViewpointID != 1 || visits[1].ViewpointID != 2 {
		t.Errorf("visits out of order: %+v", visits)
	}
	if !visits[1].ViaTransition {
		t.Error("expected second visit flagged as transition")
	}
}

func TestVisits_UnknownTour(t *testing.T) {
	b := memory.New()

	visits, err := b.Visits("missing")
	if err != nil {
		t.Fatalf("Visits failed: %v", err)
	}
	if len(visits) != 0 {
		t.Errorf("expected no visits, got %d", len(visits))
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := memory.New()
	if err := b.SaveTour("museum", "scan.glb", testPoses()); err != nil {
		t.Fatalf("SaveTour failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			_ = b.RecordVisit(core.VisitEvent{
				TourName:    "museum",
				ViewpointID: uint32(n%2 + 1),
				EnteredAt:   time.Now(),
			})
		}(i)
		go func() {
			defer wg.Done()
			_, _, _ = b.LoadTour("museum")
		}()
	}
	wg.Wait()

	visits, err := b.Visits("museum")
	if err != nil {
		t.Fatalf("Visits failed: %v", err)
	}
	if len(visits) != 10 {
		t.Errorf("expected 10 visits, got %d", len(visits))
	}
}
