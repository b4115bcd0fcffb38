package overlay

import (
	"image"
	"math"
	"sort"

	"rr-labeler/internal/manifest"
	"rr-labeler/internal/symbols"
	"rr-labeler/pkg/colorutil"
	"rr-labeler/pkg/geometry"
)

// Options controls what Annotate draws. HandleRadius is in document units.
type Options struct {
	Footprint       symbols.Footprint
	HandleRadius    float64
	ShowCalibration bool
	ShowLabels      bool
	// Highlight is drawn with a white ring, typically the dragged marker.
	Highlight string
}

// DefaultOptions draws everything with 8-unit handles.
func DefaultOptions(fp symbols.Footprint) Options {
	return Options{Footprint: fp, HandleRadius: 8, ShowCalibration: true, ShowLabels: true}
}

var (
	quadFill    = colorutil.WithAlpha(colorutil.Calibration, 40)
	unknownMark = colorutil.MustParseHex("#888888")
)

// cornerTags label the calibration handles.
var cornerTags = map[string]string{
	manifest.CornerTopLeft:     "TL",
	manifest.CornerTopRight:    "TR",
	manifest.CornerBottomRight: "BR",
	manifest.CornerBottomLeft:  "BL",
}

// Annotate draws the calibration rectangle and the labels of image imageIndex
// onto dst. t maps document coordinates to dst pixels. The quad goes under the
// labels and the corner handles over them.
func Annotate(dst *image.RGBA, doc manifest.Document, imageIndex int, t geometry.AffineTransform, opts Options) {
	if opts.ShowCalibration && doc.CalibrationComplete() {
		quad := make([]geometry.Point2D, 0, len(cornerOrder))
		for _, id := range cornerOrder {
			p, _ := doc.Corner(id)
			quad = append(quad, t.Apply(p.ToFloat()))
		}
		FillPolygon(dst, quad, quadFill)
		StrokePolygon(dst, quad, colorutil.Calibration, 2)
	}

	if opts.ShowLabels && imageIndex >= 0 && imageIndex < len(doc.Images) {
		labels := doc.Images[imageIndex].Labels
		ids := make([]string, 0, len(labels))
		for id := range labels {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			m := labels[id]
			box := viewRect(t, opts.Footprint.Box(m.ToFloat()))
			g, ok := symbols.GlyphFor(m.Type)
			if !ok {
				g = symbols.Glyph{Type: m.Type, Shape: symbols.ShapeCross, Color: unknownMark, Stroke: 0.08}
			}
			if id == opts.Highlight {
				Circle(dst, box.Center(), math.Max(box.Width, box.Height)*0.75, 2, colorutil.White)
			}
			Glyph(dst, g, box)
		}
	}

	if opts.ShowCalibration {
		drawHandles(dst, doc, t, opts)
	}
}

// cornerOrder walks the rectangle clockwise from the top left.
var cornerOrder = []string{
	manifest.CornerTopLeft,
	manifest.CornerTopRight,
	manifest.CornerBottomRight,
	manifest.CornerBottomLeft,
}

func drawHandles(dst *image.RGBA, doc manifest.Document, t geometry.AffineTransform, opts Options) {
	r := opts.HandleRadius * math.Abs(t.A)
	for _, id := range cornerOrder {
		p, ok := doc.Corner(id)
		if !ok {
			continue
		}
		c := t.Apply(p.ToFloat())
		Circle(dst, c, r, 0, colorutil.HandleFill)
		ring := colorutil.HandleRing
		if id == opts.Highlight {
			ring = colorutil.Calibration
		}
		Circle(dst, c, r, 2, ring)
		Text(dst, geometry.Point2D{X: c.X, Y: c.Y - r - 8}, cornerTags[id], colorutil.Calibration)
	}
}

// viewRect maps an axis-aligned document rectangle through t. Only scale and
// translation are expected.
func viewRect(t geometry.AffineTransform, r geometry.Rect) geometry.Rect {
	a := t.Apply(geometry.Point2D{X: r.X, Y: r.Y})
	b := t.Apply(geometry.Point2D{X: r.X + r.Width, Y: r.Y + r.Height})
	return geometry.Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}

// Glyph draws one marker symbol inside box.
func Glyph(dst *image.RGBA, g symbols.Glyph, box geometry.Rect) {
	size := math.Min(box.Width, box.Height)
	if !(size > 0) {
		return
	}
	thick := max(1, int(math.Round(g.Stroke*size)))
	c := box.Center()
	h := size / 2
	// Keep the stroke inside the box.
	in := h - float64(thick)/2

	switch g.Shape {
	case symbols.ShapeCross:
		Line(dst, pt(c.X-in, c.Y-in), pt(c.X+in, c.Y+in), g.Color, thick)
		Line(dst, pt(c.X-in, c.Y+in), pt(c.X+in, c.Y-in), g.Color, thick)
	case symbols.ShapePlus:
		Line(dst, pt(c.X-in, c.Y), pt(c.X+in, c.Y), g.Color, thick)
		Line(dst, pt(c.X, c.Y-in), pt(c.X, c.Y+in), g.Color, thick)
	case symbols.ShapeSquare:
		shape(dst, g, thick, pt(c.X-in, c.Y-in), pt(c.X+in, c.Y-in), pt(c.X+in, c.Y+in), pt(c.X-in, c.Y+in))
	case symbols.ShapeTriangle:
		shape(dst, g, thick, pt(c.X, c.Y-in), pt(c.X+in, c.Y+in), pt(c.X-in, c.Y+in))
	case symbols.ShapeDiamond:
		shape(dst, g, thick, pt(c.X, c.Y-in), pt(c.X+in, c.Y), pt(c.X, c.Y+in), pt(c.X-in, c.Y))
	}
}

func shape(dst *image.RGBA, g symbols.Glyph, thick int, pts ...geometry.Point2D) {
	if g.Filled {
		FillPolygon(dst, pts, colorutil.WithAlpha(g.Color, 0x99))
	}
	StrokePolygon(dst, pts, g.Color, thick)
}

func pt(x, y float64) geometry.Point2D { return geometry.Point2D{X: x, Y: y} }
