// Package symbols sizes marker glyphs so they keep a fixed physical size on
// screen regardless of how the image is scaled.
package symbols

import (
	"sync"

	"rr-labeler/pkg/geometry"
)

// MMPerInch converts between millimeters and inches.
const MMPerInch = 25.4

// Surface reports the two sizes of a rendered image: its on-screen size in
// device-independent pixels and its intrinsic size in document units.
type Surface interface {
	RenderedSize() geometry.Size
	IntrinsicSize() geometry.Size
}

// Scheduler runs fn at some later point, typically on the UI thread after
// pending layout work. Resize bursts between two runs collapse into one.
type Scheduler func(fn func())

// Immediate runs fn synchronously.
func Immediate(fn func()) { fn() }

// Footprint is the size of one glyph in document units.
type Footprint struct {
	Width  float64
	Height float64
}

// Box returns the glyph rectangle centered on center.
func (f Footprint) Box(center geometry.Point2D) geometry.Rect {
	return geometry.CenteredRect(center, f.Width, f.Height)
}

// Compute returns the footprint of a sizeMM glyph on a screen with the given
// pixel density. Each axis is divided by its own render scale, so the glyph
// stays square on screen under non-uniform scaling. ok is false when any
// input size or the density is not positive.
func Compute(sizeMM, ppi float64, rendered, intrinsic geometry.Size) (fp Footprint, ok bool) {
	if ppi <= 0 || sizeMM <= 0 || !rendered.IsPositive() || !intrinsic.IsPositive() {
		return Footprint{}, false
	}
	sizePx := sizeMM / MMPerInch * ppi
	scaleX := rendered.Width / intrinsic.Width
	scaleY := rendered.Height / intrinsic.Height
	return Footprint{Width: sizePx / scaleX, Height: sizePx / scaleY}, true
}

// Adapter keeps a Footprint current for one surface.
type Adapter struct {
	surface  Surface
	schedule Scheduler

	mu        sync.Mutex
	sizeMM    float64
	ppi       float64
	pending   bool
	footprint Footprint
	valid     bool
	listeners []func(Footprint)
}

// NewAdapter creates an adapter for surface. A nil schedule runs recomputes
// synchronously.
func NewAdapter(surface Surface, sizeMM, ppi float64, schedule Scheduler) *Adapter {
	if schedule == nil {
		schedule = Immediate
	}
	return &Adapter{surface: surface, schedule: schedule, sizeMM: sizeMM, ppi: ppi}
}

// Subscribe registers fn to receive every new footprint.
func (a *Adapter) Subscribe(fn func(Footprint)) {
	a.mu.Lock()
	a.listeners = append(a.listeners, fn)
	a.mu.Unlock()
}

// Footprint returns the last computed footprint. ok is false until the
// surface has reported positive sizes once.
func (a *Adapter) Footprint() (fp Footprint, ok bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.footprint, a.valid
}

// SetPPI changes the screen density and requests a recompute.
func (a *Adapter) SetPPI(ppi float64) {
	a.mu.Lock()
	a.ppi = ppi
	a.mu.Unlock()
	a.Resize()
}

// SetSizeMM changes the physical glyph size and requests a recompute.
func (a *Adapter) SetSizeMM(mm float64) {
	a.mu.Lock()
	a.sizeMM = mm
	a.mu.Unlock()
	a.Resize()
}

// Resize requests a recompute. Requests made while one is already scheduled
// are absorbed by it.
func (a *Adapter) Resize() {
	a.mu.Lock()
	if a.pending {
		a.mu.Unlock()
		return
	}
	a.pending = true
	a.mu.Unlock()

	a.schedule(a.run)
}

func (a *Adapter) run() {
	a.mu.Lock()
	a.pending = false
	a.mu.Unlock()

	a.Recompute()
}

// Recompute reads the surface now and publishes the new footprint if it
// changed. Zero sizes leave the previous footprint in place.
func (a *Adapter) Recompute() (Footprint, bool) {
	a.mu.Lock()
	sizeMM, ppi := a.sizeMM, a.ppi
	a.mu.Unlock()

	fp, ok := Compute(sizeMM, ppi, a.surface.RenderedSize(), a.surface.IntrinsicSize())
	if !ok {
		return Footprint{}, false
	}

	a.mu.Lock()
	if a.valid && a.footprint == fp {
		a.mu.Unlock()
		return fp, true
	}
	a.footprint = fp
	a.valid = true
	listeners := a.listeners
	a.mu.Unlock()

	for _, fn := range listeners {
		fn(fp)
	}
	return fp, true
}
