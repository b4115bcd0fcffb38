// Package calibration converts between image pixels and layout millimeters
// using the four-corner calibration rectangle of a manifest document.
package calibration

import (
	"math"

	"rr-labeler/internal/manifest"
)

// DotsPerTrack returns how many image pixels span one modeled track gauge,
// or -1 when it cannot be computed: no layout size, a missing top corner,
// a zero width, or an unknown scale.
//
// Only the top edge (rect-0 to rect-2) is measured, so the value is accurate
// for photographs taken roughly square to the layout and drifts with
// perspective foreshortening elsewhere.
func DotsPerTrack(doc manifest.Document) int {
	size := doc.Layout.Size
	if size.Width == nil && size.Height == nil {
		return -1
	}
	if size.Width == nil || *size.Width == 0 {
		return -1
	}
	tl, ok := doc.Corner(manifest.CornerTopLeft)
	if !ok {
		return -1
	}
	tr, ok := doc.Corner(manifest.CornerTopRight)
	if !ok {
		return -1
	}
	gauge := doc.Layout.TrackGaugeMM()
	if gauge <= 0 {
		return -1
	}

	pixelsPerMM := tl.ToFloat().Distance(tr.ToFloat()) / *size.Width
	v := math.Round(pixelsPerMM * gauge)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return -1
	}
	return int(v)
}
