package image

import (
	"image"
	"image/color"
	"image/draw"

	"rr-labeler/pkg/geometry"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Background is the color shown around a letterboxed photo.
var Background = color.RGBA{R: 40, G: 40, B: 40, A: 255}

// RenderView draws src into a new w x h image through t, which maps source
// pixels to output pixels. Areas src does not cover are filled with back.
func RenderView(src image.Image, t geometry.AffineTransform, w, h int, back color.Color) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(back), image.Point{}, draw.Src)
	if src == nil || w <= 0 || h <= 0 {
		return dst
	}

	s2d := f64.Aff3{t.A, t.B, t.TX, t.C, t.D, t.TY}
	xdraw.ApproxBiLinear.Transform(dst, s2d, src, src.Bounds(), xdraw.Over, nil)
	return dst
}

// Thumbnail scales img to fit within maxW x maxH, preserving aspect ratio.
// Images already small enough are copied unscaled.
func Thumbnail(img image.Image, maxW, maxH int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w > maxW || h > maxH {
		sx := float64(maxW) / float64(w)
		sy := float64(maxH) / float64(h)
		s := sx
		if sy < s {
			s = sy
		}
		w = max(1, int(float64(w)*s))
		h = max(1, int(float64(h)*s))
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

// ToRGBA returns img as a tightly packed *image.RGBA at the origin, copying
// only when needed.
func ToRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok && rgba.Bounds().Min == (image.Point{}) && rgba.Stride == 4*rgba.Bounds().Dx() {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}
