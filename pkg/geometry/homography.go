package geometry

import "math"

// Homography is a 3x3 planar projective transform in row-major order.
//
//	[h00 h01 h02]   [x]
//	[h10 h11 h12] * [y]
//	[h20 h21 h22]   [1]
type Homography [3][3]float64

// Apply maps p through the homography. The second result is false when the
// point maps to infinity (projective denominator of zero).
func (h Homography) Apply(p Point2D) (Point2D, bool) {
	w := h[2][0]*p.X + h[2][1]*p.Y + h[2][2]
	if math.Abs(w) < 1e-12 {
		return Point2D{}, false
	}
	return Point2D{
		X: (h[0][0]*p.X + h[0][1]*p.Y + h[0][2]) / w,
		Y: (h[1][0]*p.X + h[1][1]*p.Y + h[1][2]) / w,
	}, true
}

// Determinant returns the determinant of the matrix.
func (h Homography) Determinant() float64 {
	return h[0][0]*(h[1][1]*h[2][2]-h[1][2]*h[2][1]) -
		h[0][1]*(h[1][0]*h[2][2]-h[1][2]*h[2][0]) +
		h[0][2]*(h[1][0]*h[2][1]-h[1][1]*h[2][0])
}

// adjoint returns the transpose of the cofactor matrix.
func (h Homography) adjoint() Homography {
	return Homography{
		{
			h[1][1]*h[2][2] - h[1][2]*h[2][1],
			h[0][2]*h[2][1] - h[0][1]*h[2][2],
			h[0][1]*h[1][2] - h[0][2]*h[1][1],
		},
		{
			h[1][2]*h[2][0] - h[1][0]*h[2][2],
			h[0][0]*h[2][2] - h[0][2]*h[2][0],
			h[0][2]*h[1][0] - h[0][0]*h[1][2],
		},
		{
			h[1][0]*h[2][1] - h[1][1]*h[2][0],
			h[0][1]*h[2][0] - h[0][0]*h[2][1],
			h[0][0]*h[1][1] - h[0][1]*h[1][0],
		},
	}
}

// Inverse returns the inverse homography normalized so that h22 = 1 when
// possible. The second result is false for a singular matrix.
func (h Homography) Inverse() (Homography, bool) {
	det := h.Determinant()
	if math.Abs(det) < 1e-12 || math.IsNaN(det) {
		return Homography{}, false
	}
	inv := h.adjoint()
	s := 1 / det
	if math.Abs(inv[2][2]*s) > 1e-12 {
		s = 1 / inv[2][2]
	}
	for i := range inv {
		for j := range inv[i] {
			inv[i][j] *= s
		}
	}
	return inv, true
}

// IsFinite reports whether every coefficient is a finite number.
func (h Homography) IsFinite() bool {
	for i := range h {
		for j := range h[i] {
			if math.IsNaN(h[i][j]) || math.IsInf(h[i][j], 0) {
				return false
			}
		}
	}
	return true
}
