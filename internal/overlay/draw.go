// Package overlay rasterizes calibration and marker annotations on top of a
// rendered photo view.
package overlay

import (
	"image"
	"image/color"
	"math"
	"sort"

	"rr-labeler/pkg/geometry"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

func set(dst *image.RGBA, x, y int, col color.RGBA) {
	if !(image.Point{X: x, Y: y}).In(dst.Bounds()) {
		return
	}
	if col.A == 0xff {
		dst.SetRGBA(x, y, col)
		return
	}
	// Source-over blend of a non-premultiplied color.
	cur := dst.RGBAAt(x, y)
	a := uint32(col.A)
	blend := func(s, d uint8) uint8 {
		return uint8((uint32(s)*a + uint32(d)*(255-a)) / 255)
	}
	dst.SetRGBA(x, y, color.RGBA{
		R: blend(col.R, cur.R),
		G: blend(col.G, cur.G),
		B: blend(col.B, cur.B),
		A: uint8(a + uint32(cur.A)*(255-a)/255),
	})
}

// Line draws a line between two points using Bresenham's algorithm, stamping
// a square pen of the given thickness.
func Line(dst *image.RGBA, a, b geometry.Point2D, col color.RGBA, thickness int) {
	if thickness < 1 {
		thickness = 1
	}
	x1, y1 := int(math.Round(a.X)), int(math.Round(a.Y))
	x2, y2 := int(math.Round(b.X)), int(math.Round(b.Y))

	dx := abs(x2 - x1)
	dy := abs(y2 - y1)
	sx := 1
	if x1 > x2 {
		sx = -1
	}
	sy := 1
	if y1 > y2 {
		sy = -1
	}
	err := dx - dy
	lo := -(thickness - 1) / 2
	hi := thickness / 2

	for {
		for t := lo; t <= hi; t++ {
			for s := lo; s <= hi; s++ {
				set(dst, x1+s, y1+t, col)
			}
		}
		if x1 == x2 && y1 == y2 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x1 += sx
		}
		if e2 < dx {
			err += dx
			y1 += sy
		}
	}
}

// Circle draws a filled disc, or a ring of the given width when width > 0.
func Circle(dst *image.RGBA, c geometry.Point2D, r float64, width float64, col color.RGBA) {
	if !(r > 0) {
		return
	}
	minX, maxX := int(math.Floor(c.X-r-1)), int(math.Ceil(c.X+r+1))
	minY, maxY := int(math.Floor(c.Y-r-1)), int(math.Ceil(c.Y+r+1))

	r2 := r * r
	inner := -1.0
	if width > 0 && width < r {
		inner = (r - width) * (r - width)
	}
	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - c.X
			dy := float64(y) + 0.5 - c.Y
			d2 := dx*dx + dy*dy
			if d2 <= r2 && d2 >= inner {
				set(dst, x, y, col)
			}
		}
	}
}

// FillPolygon fills a polygon with the even-odd scanline rule.
func FillPolygon(dst *image.RGBA, pts []geometry.Point2D, col color.RGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	var xs []float64
	n := len(pts)
	for y := int(math.Floor(minY)); y <= int(math.Ceil(maxY)); y++ {
		fy := float64(y) + 0.5
		xs = xs[:0]
		for i := 0; i < n; i++ {
			p1, p2 := pts[i], pts[(i+1)%n]
			if (p1.Y <= fy && p2.Y > fy) || (p2.Y <= fy && p1.Y > fy) {
				t := (fy - p1.Y) / (p2.Y - p1.Y)
				xs = append(xs, p1.X+t*(p2.X-p1.X))
			}
		}
		sort.Float64s(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			for x := int(math.Ceil(xs[i] - 0.5)); x < int(math.Ceil(xs[i+1]-0.5)); x++ {
				set(dst, x, y, col)
			}
		}
	}
}

// StrokePolygon outlines a closed polygon.
func StrokePolygon(dst *image.RGBA, pts []geometry.Point2D, col color.RGBA, thickness int) {
	n := len(pts)
	if n < 2 {
		return
	}
	for i := 0; i < n; i++ {
		Line(dst, pts[i], pts[(i+1)%n], col, thickness)
	}
}

// Text draws s centered on p with the fixed 7x13 face.
func Text(dst *image.RGBA, p geometry.Point2D, s string, col color.RGBA) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	ascent := face.Metrics().Ascent.Ceil()
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(col),
		Face: face,
		Dot: fixed.Point26_6{
			X: fixed.I(int(math.Round(p.X)) - width/2),
			Y: fixed.I(int(math.Round(p.Y)) + ascent/2),
		},
	}
	d.DrawString(s)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
