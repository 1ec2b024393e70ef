// pkg/core/pose.go
package core

import "math"

// Position3D represents a render-space coordinate (Y up).
type Position3D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Sub returns p - q.
func (p Position3D) Sub(q Position3D) Position3D {
	return Position3D{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// Dist returns the Euclidean distance between p and q.
func (p Position3D) Dist(q Position3D) float64 {
	d := p.Sub(q)
	return math.Sqrt(d.X*d.X + d.Y*d.Y + d.Z*d.Z)
}

// Quaternion is a unit rotation quaternion (x, y, z, w).
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// IdentityQuaternion returns the no-rotation quaternion.
func IdentityQuaternion() Quaternion {
	return Quaternion{W: 1}
}

// Transform4 is a row-major 4x4 pose matrix as delivered by the
// photogrammetry tool.
type Transform4 [16]float64

// IdentityTransform returns the identity pose matrix.
func IdentityTransform() Transform4 {
	return Transform4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// CameraPose is a single capture position. Immutable after catalog build.
// ID is the logical viewpoint identity parsed from the label, not the
// record's position in the source listing.
type CameraPose struct {
	ID              uint32     `json:"id"`
	Label           string     `json:"label"`
	Position        Position3D `json:"position"`
	Orientation     Quaternion `json:"orientation"`
	SourceTransform Transform4 `json:"sourceTransform"` // retained for diagnostics
	ImageRef        string     `json:"imageRef"`
}
