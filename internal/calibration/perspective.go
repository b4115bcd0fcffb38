package calibration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"rr-labeler/internal/manifest"
	"rr-labeler/pkg/geometry"

	"gonum.org/v1/gonum/mat"
)

var (
	// ErrDegenerate is returned when the source quadrilateral cannot define a
	// perspective transform: three corners on a line, coincident corners, a
	// singular system, or a non-finite solution.
	ErrDegenerate = errors.New("degenerate calibration rectangle")

	// ErrIncomplete is returned when fewer than four corners are present.
	ErrIncomplete = errors.New("calibration rectangle incomplete")

	// ErrNoLayoutSize is returned when the layout width or height is unset.
	ErrNoLayoutSize = errors.New("layout size not set")
)

// Perspective maps image pixels onto the layout plane in millimeters.
type Perspective struct {
	h      geometry.Homography
	inv    geometry.Homography
	width  float64
	height float64
}

// SolvePerspective computes the homography that takes src[0..3] to
// (0,0), (width,0), (width,height), (0,height) respectively.
func SolvePerspective(src [4]geometry.Point2D, width, height float64) (*Perspective, error) {
	if !(width > 0) || !(height > 0) || math.IsInf(width, 0) || math.IsInf(height, 0) {
		return nil, fmt.Errorf("%w: target size %gx%g", ErrDegenerate, width, height)
	}
	for i, p := range src {
		if !p.IsFinite() {
			return nil, fmt.Errorf("%w: corner %d is not finite", ErrDegenerate, i)
		}
	}
	if geometry.AnyCollinear(src[:]) {
		return nil, fmt.Errorf("%w: three corners are collinear or coincide", ErrDegenerate)
	}

	dst := [4]geometry.Point2D{
		{X: 0, Y: 0},
		{X: width, Y: 0},
		{X: width, Y: height},
		{X: 0, Y: height},
	}

	// Fixing h22 = 1 leaves eight unknowns, two equations per correspondence:
	// u = (h00 x + h01 y + h02) / (h20 x + h21 y + 1)
	// v = (h10 x + h11 y + h12) / (h20 x + h21 y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)

	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		u, v := dst[i].X, dst[i].Y

		A.Set(i*2, 0, x)
		A.Set(i*2, 1, y)
		A.Set(i*2, 2, 1)
		A.Set(i*2, 6, -x*u)
		A.Set(i*2, 7, -y*u)
		B.SetVec(i*2, u)

		A.Set(i*2+1, 3, x)
		A.Set(i*2+1, 4, y)
		A.Set(i*2+1, 5, 1)
		A.Set(i*2+1, 6, -x*v)
		A.Set(i*2+1, 7, -y*v)
		B.SetVec(i*2+1, v)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDegenerate, err)
	}

	h := geometry.Homography{
		{params.AtVec(0), params.AtVec(1), params.AtVec(2)},
		{params.AtVec(3), params.AtVec(4), params.AtVec(5)},
		{params.AtVec(6), params.AtVec(7), 1},
	}
	if !h.IsFinite() {
		return nil, fmt.Errorf("%w: solution is not finite", ErrDegenerate)
	}
	inv, ok := h.Inverse()
	if !ok || !inv.IsFinite() {
		return nil, fmt.Errorf("%w: transform is not invertible", ErrDegenerate)
	}

	return &Perspective{h: h, inv: inv, width: width, height: height}, nil
}

// Corners returns the calibration corners of doc clockwise from the top
// left: rect-0, rect-2, rect-3, rect-1.
func Corners(doc manifest.Document) ([4]geometry.Point2D, error) {
	order := [4]string{
		manifest.CornerTopLeft,
		manifest.CornerTopRight,
		manifest.CornerBottomRight,
		manifest.CornerBottomLeft,
	}
	var src [4]geometry.Point2D
	for i, id := range order {
		p, ok := doc.Corner(id)
		if !ok {
			return src, fmt.Errorf("%w: missing %s", ErrIncomplete, id)
		}
		src[i] = p.ToFloat()
	}
	return src, nil
}

// Convex reports whether the calibration corners form a convex
// quadrilateral. A crossed or dented quad still solves, but maps part of the
// photo inside out.
func Convex(doc manifest.Document) bool {
	src, err := Corners(doc)
	if err != nil {
		return false
	}
	return geometry.IsConvex(src[:])
}

// Inside reports whether an image pixel lies within the calibration
// quadrilateral. It is false when the rectangle is incomplete.
func Inside(doc manifest.Document, p geometry.Point2D) bool {
	src, err := Corners(doc)
	if err != nil {
		return false
	}
	return geometry.PointInPolygon(p, src[:])
}

// FromDocument builds the pixel-to-millimeter transform of doc. The corners
// are taken in Corners order and mapped onto the layout rectangle.
func FromDocument(doc manifest.Document) (*Perspective, error) {
	src, err := Corners(doc)
	if err != nil {
		return nil, err
	}

	size := doc.Layout.Size
	if size.Width == nil || size.Height == nil {
		return nil, ErrNoLayoutSize
	}
	return SolvePerspective(src, *size.Width, *size.Height)
}

// Size returns the layout rectangle the transform maps onto, in millimeters.
func (p *Perspective) Size() geometry.Size {
	return geometry.NewSize(p.width, p.height)
}

// Apply maps an image pixel to layout millimeters. The second result is false
// for points on the horizon line, which have no image on the layout plane.
func (p *Perspective) Apply(pt geometry.Point2D) (geometry.Point2D, bool) {
	return p.h.Apply(pt)
}

// Invert maps layout millimeters back to image pixels.
func (p *Perspective) Invert(pt geometry.Point2D) (geometry.Point2D, bool) {
	return p.inv.Apply(pt)
}

// Matrix returns the row-major 3x3 homography.
func (p *Perspective) Matrix() geometry.Homography {
	return p.h
}

// Distance returns the distance in millimeters between two image pixels.
func (p *Perspective) Distance(a, b geometry.Point2D) (float64, error) {
	ma, ok := p.Apply(a)
	if !ok {
		return 0, fmt.Errorf("point (%g, %g) maps to infinity", a.X, a.Y)
	}
	mb, ok := p.Apply(b)
	if !ok {
		return 0, fmt.Errorf("point (%g, %g) maps to infinity", b.X, b.Y)
	}
	return ma.Distance(mb), nil
}

// ImageBounds returns the millimeter-space bounding box of an image of the
// given pixel size. Corners that map to infinity are skipped; ok is false when
// none remain.
func (p *Perspective) ImageBounds(width, height int) (geometry.Rect, bool) {
	corners := []geometry.Point2D{
		{X: 0, Y: 0},
		{X: float64(width), Y: 0},
		{X: float64(width), Y: float64(height)},
		{X: 0, Y: float64(height)},
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	found := false
	for _, c := range corners {
		m, ok := p.Apply(c)
		if !ok {
			continue
		}
		found = true
		minX = math.Min(minX, m.X)
		minY = math.Min(minY, m.Y)
		maxX = math.Max(maxX, m.X)
		maxY = math.Max(maxY, m.Y)
	}
	if !found {
		return geometry.Rect{}, false
	}
	return geometry.Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}, true
}

// CSSMatrix3D renders the homography as a CSS matrix3d() value. CSS expects
// a 4x4 column-major matrix; the projective row becomes the fourth column.
func (p *Perspective) CSSMatrix3D() string {
	h := p.h
	vals := []float64{
		h[0][0], h[1][0], 0, h[2][0],
		h[0][1], h[1][1], 0, h[2][1],
		0, 0, 1, 0,
		h[0][2], h[1][2], 0, 1,
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "matrix3d(" + strings.Join(parts, ", ") + ")"
}
