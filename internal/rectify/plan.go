// Package rectify renders a calibrated photo as a top-down view of the layout
// plane, at a fixed number of output pixels per millimeter.
package rectify

import (
	"errors"
	"fmt"
	"math"

	"rr-labeler/internal/calibration"
	"rr-labeler/pkg/geometry"
)

// MaxDimension bounds each side of a rectified image.
const MaxDimension = 12000

// ErrTooLarge is returned when the output would exceed MaxDimension.
var ErrTooLarge = errors.New("rectified image too large")

// Mode selects the area of the layout plane that is rendered.
type Mode int

const (
	// Crop renders only the calibration rectangle.
	Crop Mode = iota
	// Full renders the whole photo as projected onto the layout plane.
	Full
)

func (m Mode) String() string {
	if m == Full {
		return "full"
	}
	return "crop"
}

// ParseMode parses "crop" or "full".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "crop", "":
		return Crop, nil
	case "full":
		return Full, nil
	}
	return Crop, fmt.Errorf("unknown rectify mode %q", s)
}

// Plan is a resolved warp: the image-to-output homography and output size.
// Origin is the layout position, in millimeters, of output pixel (0,0).
type Plan struct {
	Matrix  geometry.Homography
	Width   int
	Height  int
	Origin  geometry.Point2D
	PxPerMM float64
}

// NewPlan resolves the warp of an imgW x imgH photo through p.
func NewPlan(p *calibration.Perspective, imgW, imgH int, pxPerMM float64, mode Mode) (Plan, error) {
	if !(pxPerMM > 0) || math.IsInf(pxPerMM, 0) {
		return Plan{}, fmt.Errorf("pixels per millimeter must be positive, got %g", pxPerMM)
	}

	area := geometry.Rect{Width: p.Size().Width, Height: p.Size().Height}
	if mode == Full {
		bounds, ok := p.ImageBounds(imgW, imgH)
		if !ok {
			return Plan{}, fmt.Errorf("%w: photo does not project onto the layout plane", calibration.ErrDegenerate)
		}
		area = bounds
	}

	w := math.Round(area.Width * pxPerMM)
	h := math.Round(area.Height * pxPerMM)
	if w > MaxDimension || h > MaxDimension {
		return Plan{}, fmt.Errorf("%w: %.0fx%.0f exceeds %d", ErrTooLarge, w, h, MaxDimension)
	}
	if w < 1 || h < 1 {
		return Plan{}, fmt.Errorf("rectified image is empty: %.0fx%.0f", w, h)
	}

	// Output = Scale(px) * Translate(-origin) * H.
	H := p.Matrix()
	ox, oy := area.X, area.Y
	var m geometry.Homography
	for c := 0; c < 3; c++ {
		m[0][c] = pxPerMM * (H[0][c] - ox*H[2][c])
		m[1][c] = pxPerMM * (H[1][c] - oy*H[2][c])
		m[2][c] = H[2][c]
	}

	return Plan{
		Matrix:  m,
		Width:   int(w),
		Height:  int(h),
		Origin:  geometry.Point2D{X: ox, Y: oy},
		PxPerMM: pxPerMM,
	}, nil
}

// ToOutput maps an image pixel to an output pixel.
func (pl Plan) ToOutput(pt geometry.Point2D) (geometry.Point2D, bool) {
	return pl.Matrix.Apply(pt)
}
