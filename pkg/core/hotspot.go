// pkg/core/hotspot.go
package core

// HotspotPlacement positions a neighboring viewpoint's marker inside the
// current panorama. Angles are degrees in the panorama's local convention;
// Scale and Opacity carry the distance falloff. Visible reflects the
// per-frame culling decision only; the viewpoint itself stays in the
// catalog regardless.
type HotspotPlacement struct {
	Yaw      float64 `json:"yaw"`
	Pitch    float64 `json:"pitch"`
	Distance float64 `json:"distance"`
	Scale    float64 `json:"scale"`
	Opacity  float64 `json:"opacity"`
	Visible  bool    `json:"visible"`
}

// OverheadMarker positions a viewpoint's marker on the overhead model view
// in pixel coordinates. Behind is set when the target sits behind the
// overhead camera; OnScreen is false when the projection lands outside the
// viewport.
type OverheadMarker struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Size     float64 `json:"size"`
	Behind   bool    `json:"behind"`
	OnScreen bool    `json:"onScreen"`
}
