package model

import (
	"encoding/json"

	"github.com/scanwalk/engine/pkg/core"
)

// FromCameraPose builds the persisted form of a converted pose.
func FromCameraPose(tourID uint, p core.CameraPose) ViewpointRecord {
	src, _ := json.Marshal(p.SourceTransform)
	return ViewpointRecord{
		TourID:          tourID,
		ViewpointID:     p.ID,
		Label:           p.Label,
		ImageRef:        p.ImageRef,
		PosX:            p.Position.X,
		PosY:            p.Position.Y,
		PosZ:            p.Position.Z,
		RotX:            p.Orientation.X,
		RotY:            p.Orientation.Y,
		RotZ:            p.Orientation.Z,
		RotW:            p.Orientation.W,
		SourceTransform: src,
	}
}

// CameraPose reconstructs the in-memory pose from a stored record.
func (r ViewpointRecord) CameraPose() core.CameraPose {
	p := core.CameraPose{
		ID:          r.ViewpointID,
		Label:       r.Label,
		ImageRef:    r.ImageRef,
		Position:    core.Position3D{X: r.PosX, Y: r.PosY, Z: r.PosZ},
		Orientation: core.Quaternion{X: r.RotX, Y: r.RotY, Z: r.RotZ, W: r.RotW},
	}
	if len(r.SourceTransform) > 0 {
		var t core.Transform4
		if err := json.Unmarshal(r.SourceTransform, &t); err == nil {
			p.SourceTransform = t
		}
	}
	return p
}
