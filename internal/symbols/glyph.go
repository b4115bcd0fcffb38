package symbols

import (
	"image/color"

	"rr-labeler/pkg/colorutil"
)

// Shape is the outline drawn for a marker type.
type Shape int

const (
	ShapeCross Shape = iota
	ShapePlus
	ShapeSquare
	ShapeTriangle
	ShapeDiamond
)

func (s Shape) String() string {
	switch s {
	case ShapeCross:
		return "cross"
	case ShapePlus:
		return "plus"
	case ShapeSquare:
		return "square"
	case ShapeTriangle:
		return "triangle"
	case ShapeDiamond:
		return "diamond"
	}
	return "unknown"
}

// Glyph describes how one marker type is drawn. Stroke is the line width as a
// fraction of the glyph size.
type Glyph struct {
	Type   string
	Shape  Shape
	Color  color.RGBA
	Filled bool
	Stroke float64
}

var glyphs = []Glyph{
	{Type: "detector", Shape: ShapeCross, Color: colorutil.MustParseHex("#ff6b6b"), Stroke: 0.14},
	{Type: "track", Shape: ShapePlus, Color: colorutil.MustParseHex("#4ecdc4"), Stroke: 0.04},
	{Type: "train", Shape: ShapeSquare, Color: colorutil.MustParseHex("#45b7d1"), Filled: true, Stroke: 0.08},
	{Type: "train-end", Shape: ShapeTriangle, Color: colorutil.MustParseHex("#96ceb4"), Stroke: 0.04},
	{Type: "coupling", Shape: ShapeDiamond, Color: colorutil.MustParseHex("#feca57"), Stroke: 0.04},
}

// Glyphs returns the catalogue in toolbar order.
func Glyphs() []Glyph {
	out := make([]Glyph, len(glyphs))
	copy(out, glyphs)
	return out
}

// GlyphFor returns the glyph of a marker type. Older documents call the
// detector marker "predict".
func GlyphFor(markerType string) (Glyph, bool) {
	if markerType == "predict" {
		markerType = "detector"
	}
	for _, g := range glyphs {
		if g.Type == markerType {
			return g, true
		}
	}
	return Glyph{}, false
}
