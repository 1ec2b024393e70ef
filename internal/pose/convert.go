// Package pose converts camera poses from the photogrammetry tool's
// coordinate frame into the render engine's frame.
//
// The source tool delivers row-major 4x4 rigid transforms in a Z-up
// convention; the render engine is Y-up. Conversion applies a fixed basis
// change and re-decomposes the result into translation and rotation.
package pose

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/num/quat"

	"github.com/scanwalk/engine/pkg/core"
)

// minDeterminant is the singularity threshold: transforms with a smaller
// absolute determinant are rejected.
const minDeterminant = 1e-10

// basisChange maps the capture tool's Z-up axes onto the renderer's Y-up
// axes: (x, y, z) -> (x, z, -y). Constant, composed once.
var basisChange = core.Transform4{
	1, 0, 0, 0,
	0, 0, 1, 0,
	0, -1, 0, 0,
	0, 0, 0, 1,
}

// Result is the outcome of converting one source transform.
// When Valid is false the pose must be dropped; Position and Orientation
// are zero values in that case.
type Result struct {
	Position    core.Position3D
	Orientation core.Quaternion
	Valid       bool
}

// Convert turns a source 4x4 pose matrix into a render-space position and
// orientation. Pure function: invalid input yields Valid=false, never a
// panic. Scale encoded in the source is read and discarded; the source
// format carries rigid transforms only.
func Convert(src core.Transform4) Result {
	for _, v := range src {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}
		}
	}

	d := mat.Det(mat.NewDense(4, 4, append([]float64(nil), src[:]...)))
	if math.Abs(d) < minDeterminant {
		return Result{}
	}

	m := mul4(basisChange, src)

	pos := core.Position3D{X: m[3], Y: m[7], Z: m[11]}

	// Strip scale from the rotation block (column norms).
	var rot [9]float64
	for c := 0; c < 3; c++ {
		s := math.Sqrt(m[c]*m[c] + m[4+c]*m[4+c] + m[8+c]*m[8+c])
		if s < minDeterminant {
			return Result{}
		}
		rot[c] = m[c] / s
		rot[3+c] = m[4+c] / s
		rot[6+c] = m[8+c] / s
	}

	q := quatFromRotation(rot)
	if math.IsNaN(q.W) || math.IsNaN(q.X) || math.IsNaN(q.Y) || math.IsNaN(q.Z) {
		return Result{}
	}

	return Result{Position: pos, Orientation: q, Valid: true}
}

// Recompose rebuilds a row-major 4x4 matrix from a converted pose. Used to
// verify that decomposition is stable under a convert/recompose round trip.
func Recompose(r Result) core.Transform4 {
	rot := rotationFromQuat(r.Orientation)
	return core.Transform4{
		rot[0], rot[1], rot[2], r.Position.X,
		rot[3], rot[4], rot[5], r.Position.Y,
		rot[6], rot[7], rot[8], r.Position.Z,
		0, 0, 0, 1,
	}
}

// mul4 returns a x b for row-major 4x4 matrices.
func mul4(a, b core.Transform4) core.Transform4 {
	var m core.Transform4
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r*4+c] = a[r*4+0]*b[0*4+c] + a[r*4+1]*b[1*4+c] +
				a[r*4+2]*b[2*4+c] + a[r*4+3]*b[3*4+c]
		}
	}
	return m
}

// quatFromRotation converts a row-major 3x3 rotation matrix to a unit
// quaternion using the trace method, branching on the dominant diagonal
// element for numerical stability.
func quatFromRotation(m [9]float64) core.Quaternion {
	var q core.Quaternion
	trace := m[0] + m[4] + m[8]

	switch {
	case trace > 0:
		s := 0.5 / math.Sqrt(trace+1)
		q.W = 0.25 / s
		q.X = (m[7] - m[5]) * s
		q.Y = (m[2] - m[6]) * s
		q.Z = (m[3] - m[1]) * s
	case m[0] > m[4] && m[0] > m[8]:
		s := 2 * math.Sqrt(1+m[0]-m[4]-m[8])
		q.W = (m[7] - m[5]) / s
		q.X = 0.25 * s
		q.Y = (m[1] + m[3]) / s
		q.Z = (m[2] + m[6]) / s
	case m[4] > m[8]:
		s := 2 * math.Sqrt(1+m[4]-m[0]-m[8])
		q.W = (m[2] - m[6]) / s
		q.X = (m[1] + m[3]) / s
		q.Y = 0.25 * s
		q.Z = (m[5] + m[7]) / s
	default:
		s := 2 * math.Sqrt(1+m[8]-m[0]-m[4])
		q.W = (m[3] - m[1]) / s
		q.X = (m[2] + m[6]) / s
		q.Y = (m[5] + m[7]) / s
		q.Z = 0.25 * s
	}

	n := math.Sqrt(q.X*q.X + q.Y*q.Y + q.Z*q.Z + q.W*q.W)
	q.X /= n
	q.Y /= n
	q.Z /= n
	q.W /= n
	return q
}

// rotationFromQuat builds the row-major 3x3 rotation matrix whose columns
// are the quaternion-rotated basis vectors.
func rotationFromQuat(o core.Quaternion) [9]float64 {
	q := quat.Number{Real: o.W, Imag: o.X, Jmag: o.Y, Kmag: o.Z}
	conj := quat.Conj(q)

	var m [9]float64
	basis := []quat.Number{
		{Imag: 1},
		{Jmag: 1},
		{Kmag: 1},
	}
	for c, e := range basis {
		v := quat.Mul(quat.Mul(q, e), conj)
		m[c] = v.Imag
		m[3+c] = v.Jmag
		m[6+c] = v.Kmag
	}
	return m
}
