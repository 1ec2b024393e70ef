package model

import (
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&TourRecord{},
	&ViewpointRecord{},
	&Visit{},
}

// TourRecord is the persisted form of one scanned tour: the 3D model
// asset plus the converted capture poses. Persisting the converted poses
// lets a reload skip matrix validation and decomposition.
type TourRecord struct {
	gorm.Model
	Name       string     `json:"name" gorm:"size:127;uniqueIndex:idx_tour_name"`
	ModelRef   string     `json:"modelRef" gorm:"size:255"` // overhead mesh asset
	FrameCount int        `json:"frameCount"`
	Latitude   float64    `json:"latitude" gorm:"-"`
	Longitude  float64    `json:"longitude" gorm:"-"`
	Anchor     geom.Point `json:"anchor"` // world location for georeferenced scans
	Elevation  float64    `json:"elevation"`

	Viewpoints []ViewpointRecord `gorm:"foreignKey:TourID"`
	Visits     []Visit           `gorm:"foreignKey:TourID"`
}

func (*TourRecord) TableName() string {
	return "tours"
}

// GetOrInsert looks a tour up by name, inserting it when absent.
func (t *TourRecord) GetOrInsert(db *gorm.DB) (
	created bool,
	err error,
) {
	var existing TourRecord
	err = db.Where("name = ?", t.Name).First(&existing).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			// insert
			err = db.Create(t).Error
			return true, err
		}
		return false, err
	}
	// overwrite with db record if found
	*t = existing
	return false, nil
}

// ViewpointRecord is one converted capture pose. ViewpointID is the
// logical id parsed from the label; the unique index enforces the same
// duplicate rule the in-memory catalog applies at build time.
type ViewpointRecord struct {
	ID        uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	TourID    uint       `json:"tourId" gorm:"uniqueIndex:idx_viewpoint_tour_vp;index:idx_viewpoint_tour_id"`
	Tour      TourRecord `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:TourID;"`
	CreatedAt time.Time  `json:"createdAt"`

	ViewpointID uint32 `json:"viewpointId" gorm:"uniqueIndex:idx_viewpoint_tour_vp"`
	Label       string `json:"label" gorm:"size:128"`
	ImageRef    string `json:"imageRef" gorm:"size:255"`

	// Converted render-space pose
	PosX float64 `json:"posX"`
	PosY float64 `json:"posY"`
	PosZ float64 `json:"posZ"`
	RotX float64 `json:"rotX"`
	RotY float64 `json:"rotY"`
	RotZ float64 `json:"rotZ"`
	RotW float64 `json:"rotW"`

	// Raw photogrammetry matrix, kept for diagnostics
	SourceTransform datatypes.JSON `json:"sourceTransform" gorm:"type:jsonb;default:'[]'"`
}

func (*ViewpointRecord) TableName() string {
	return "viewpoints"
}

// Visit records that a viewpoint was active, with dwell time and whether
// it was reached through an animated transition or a direct jump.
type Visit struct {
	ID            uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	TourID        uint       `json:"tourId" gorm:"index:idx_visit_tour_id"`
	Tour          TourRecord `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:TourID;"`
	ViewpointID   uint32     `json:"viewpointId" gorm:"index:idx_visit_viewpoint_id"`
	EnteredAt     time.Time  `json:"enteredAt" gorm:"index:idx_visit_entered_at"`
	DwellMs       int64      `json:"dwellMs"`
	ViaTransition bool       `json:"viaTransition" gorm:"default:false"`
}

func (*Visit) TableName() string {
	return "visits"
}
