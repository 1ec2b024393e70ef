// pkg/core/view.go
package core

import "time"

// ViewAngle is a panorama look direction in degrees. Yaw is unbounded and
// wraps through trigonometric use; pitch stays within the camera's clamp.
type ViewAngle struct {
	Yaw   float64 `json:"yaw"`
	Pitch float64 `json:"pitch"`
}

// SwitchRequest is the payload of the single callback the navigation core
// emits to its host: switch the active panorama to TargetID. Angle carries
// the look direction to restore (nil means keep the current one), and
// IncomingFov is the field of view the incoming panorama should start at
// so a transition crossfade reads as continuous.
type SwitchRequest struct {
	TargetID    uint32     `json:"targetId"`
	Angle       *ViewAngle `json:"angle,omitempty"`
	IncomingFov float64    `json:"incomingFov"`
}

// VisitEvent records that a viewpoint became active.
type VisitEvent struct {
	TourName      string        `json:"tourName"`
	ViewpointID   uint32        `json:"viewpointId"`
	EnteredAt     time.Time     `json:"enteredAt"`
	Dwell         time.Duration `json:"dwell"`
	ViaTransition bool          `json:"viaTransition"`
}

// TransitionStats captures timing for one completed viewpoint transition.
type TransitionStats struct {
	FromID    uint32        `json:"fromId"`
	ToID      uint32        `json:"toId"`
	Distance  float64       `json:"distance"`
	TargetFov float64       `json:"targetFov"`
	Duration  time.Duration `json:"duration"`
}
