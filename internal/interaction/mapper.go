// Package interaction turns pointer input on a rendered image into marker
// mutations on a manifest store.
package interaction

import (
	"errors"

	"rr-labeler/pkg/geometry"
)

var (
	// ErrTransformUnavailable is returned when the surface cannot report its
	// screen transform, typically because it is not laid out yet.
	ErrTransformUnavailable = errors.New("screen transform unavailable")

	// ErrTransformSingular is returned when the screen transform has no
	// inverse (a zero-sized surface).
	ErrTransformSingular = errors.New("screen transform not invertible")
)

// ScreenTransformer reports the current local-to-screen transform of a
// rendering surface. ok is false when the surface is not displayed.
type ScreenTransformer interface {
	ScreenTransform() (t geometry.AffineTransform, ok bool)
}

// TransformFunc adapts a function to ScreenTransformer.
type TransformFunc func() (geometry.AffineTransform, bool)

// ScreenTransform calls f.
func (f TransformFunc) ScreenTransform() (geometry.AffineTransform, bool) {
	return f()
}

// MapToLocal converts a screen position into the surface's local (document)
// coordinates by inverting its current screen transform. It never guesses: a
// missing or singular transform is an error.
func MapToLocal(src ScreenTransformer, screen geometry.Point2D) (geometry.Point2D, error) {
	if src == nil {
		return geometry.Point2D{}, ErrTransformUnavailable
	}
	ctm, ok := src.ScreenTransform()
	if !ok {
		return geometry.Point2D{}, ErrTransformUnavailable
	}
	inv, ok := ctm.Inverse()
	if !ok {
		return geometry.Point2D{}, ErrTransformSingular
	}
	return inv.Apply(screen), nil
}

// Letterbox returns the local-to-container transform that fits intrinsic
// inside container preserving aspect ratio, centered on both axes
// (SVG "xMidYMid meet"). ok is false when either size is not positive.
func Letterbox(intrinsic, container geometry.Size) (t geometry.AffineTransform, ok bool) {
	if !intrinsic.IsPositive() || !container.IsPositive() {
		return geometry.AffineTransform{}, false
	}
	s := container.Width / intrinsic.Width
	if sy := container.Height / intrinsic.Height; sy < s {
		s = sy
	}
	ox := (container.Width - intrinsic.Width*s) / 2
	oy := (container.Height - intrinsic.Height*s) / 2
	return geometry.Translation(ox, oy).Compose(geometry.Scale(s, s)), true
}
