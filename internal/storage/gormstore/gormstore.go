// internal/storage/gormstore/gormstore.go
package gormstore

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/scanwalk/engine/internal/database"
	"github.com/scanwalk/engine/internal/model"
	"github.com/scanwalk/engine/pkg/core"
)

// Backend persists tours and visits through gorm, delegating connection
// handling (SQLite or Postgres selection, pragmas, migration) to the
// shared database manager.
type Backend struct {
	mgr *database.Manager
	db  *gorm.DB
}

// New creates a backend that connects on Init using the configured driver.
func New(log zerolog.Logger) *Backend {
	return &Backend{mgr: database.NewManager(log)}
}

// NewWithDB wraps an already-open, already-migrated connection. Used by
// tests and by callers that manage the connection themselves.
func NewWithDB(db *gorm.DB) *Backend {
	return &Backend{db: db}
}

// Init connects and migrates the schema.
func (b *Backend) Init() error {
	if b.db != nil {
		return nil
	}
	if err := b.mgr.Connect(); err != nil {
		return err
	}
	if err := b.mgr.Setup(); err != nil {
		return err
	}
	b.db = b.mgr.DB
	return nil
}

// Close flushes the in-memory SQLite database to disk when a file path is
// configured, then releases the connection pool.
func (b *Backend) Close() error {
	if b.mgr == nil {
		return nil
	}
	if b.mgr.UsingSqlite && b.mgr.SqliteFilePath != "" {
		if err := b.mgr.DumpMemoryToDisk(); err != nil {
			b.mgr.Logger.Error().Err(err).Msg("Failed to dump in-memory DB to disk")
		}
	}
	return b.mgr.Close()
}

// SaveTour upserts the tour by name and replaces its viewpoint set.
func (b *Backend) SaveTour(name, modelRef string, poses []core.CameraPose) error {
	tour := &model.TourRecord{
		Name:       name,
		ModelRef:   modelRef,
		FrameCount: len(poses),
	}
	created, err := tour.GetOrInsert(b.db)
	if err != nil {
		return fmt.Errorf("failed to upsert tour %q: %w", name, err)
	}
	if !created {
		updates := map[string]interface{}{
			"model_ref":   modelRef,
			"frame_count": len(poses),
		}
		if err := b.db.Model(tour).Updates(updates).Error; err != nil {
			return fmt.Errorf("failed to update tour %q: %w", name, err)
		}
	}

	return b.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("tour_id = ?", tour.ID).Delete(&model.ViewpointRecord{}).Error; err != nil {
			return fmt.Errorf("failed to clear viewpoints for tour %q: %w", name, err)
		}
		if len(poses) == 0 {
			return nil
		}
		records := make([]model.ViewpointRecord, len(poses))
		for i, p := range poses {
			records[i] = model.FromCameraPose(tour.ID, p)
		}
		if err := tx.Create(&records).Error; err != nil {
			return fmt.Errorf("failed to insert viewpoints for tour %q: %w", name, err)
		}
		return nil
	})
}

// LoadTour returns the stored tour by name, poses in the order they were
// saved.
func (b *Backend) LoadTour(name string) (string, []core.CameraPose, error) {
	var tour model.TourRecord
	if err := b.db.Where("name = ?", name).First(&tour).Error; err != nil {
		return "", nil, fmt.Errorf("tour not found: %s: %w", name, err)
	}

	var records []model.ViewpointRecord
	if err := b.db.Where("tour_id = ?", tour.ID).Order("id ASC").Find(&records).Error; err != nil {
		return "", nil, fmt.Errorf("failed to load viewpoints for tour %q: %w", name, err)
	}

	poses := make([]core.CameraPose, len(records))
	for i, r := range records {
		poses[i] = r.CameraPose()
	}
	return tour.ModelRef, poses, nil
}

// RecordVisit inserts a visit row, creating a placeholder tour record when
// the tour has not been saved yet.
func (b *Backend) RecordVisit(v core.VisitEvent) error {
	tour := &model.TourRecord{Name: v.TourName}
	if _, err := tour.GetOrInsert(b.db); err != nil {
		return fmt.Errorf("failed to resolve tour %q: %w", v.TourName, err)
	}

	visit := model.Visit{
		TourID:        tour.ID,
		ViewpointID:   v.ViewpointID,
		EnteredAt:     v.EnteredAt,
		DwellMs:       v.Dwell.Milliseconds(),
		ViaTransition: v.ViaTransition,
	}
	if err := b.db.Create(&visit).Error; err != nil {
		return fmt.Errorf("failed to record visit: %w", err)
	}
	return nil
}

// Visits returns recorded visits for the tour ordered by entry time.
func (b *Backend) Visits(tourName string) ([]core.VisitEvent, error) {
	var tour model.TourRecord
	err := b.db.Where("name = ?", tourName).First(&tour).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve tour %q: %w", tourName, err)
	}

	var rows []model.Visit
	if err := b.db.Where("tour_id = ?", tour.ID).
		Order("entered_at ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load visits for tour %q: %w", tourName, err)
	}

	events := make([]core.VisitEvent, len(rows))
	for i, r := range rows {
		events[i] = core.VisitEvent{
			TourName:      tourName,
			ViewpointID:   r.ViewpointID,
			EnteredAt:     r.EnteredAt,
			Dwell:         time.Duration(r.DwellMs) * time.Millisecond,
			ViaTransition: r.ViaTransition,
		}
	}
	return events, nil
}
