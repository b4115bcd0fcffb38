// Package canvas provides the fyne widget that shows a photo with its
// calibration rectangle and labels, and turns pointer input into edits.
package canvas

import (
	"image"
	"sync"

	"rr-labeler/internal/app"
	photo "rr-labeler/internal/image"
	"rr-labeler/internal/interaction"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/internal/overlay"
	"rr-labeler/internal/symbols"
	"rr-labeler/pkg/geometry"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
)

const (
	minZoom  = 0.1
	maxZoom  = 10.0
	zoomStep = 1.25
)

// LabelCanvas renders one photo of a session letterboxed into its bounds.
// Wheel zooms about the pointer; everything else goes to the interaction
// controller.
type LabelCanvas struct {
	widget.BaseWidget

	session    *app.Session
	controller *interaction.Controller
	symbols    *symbols.Adapter
	raster     *fynecanvas.Raster

	// mu guards the fields read by draw, which may run off the event
	// goroutine.
	mu              sync.Mutex
	imageIndex      int
	user            geometry.AffineTransform // zoom/pan applied after the letterbox fit
	showCalibration bool
	highlight       string

	lastPos geometry.Point2D

	unsubscribe func()

	onError func(err error)
	onHover func(local geometry.Point2D, inside bool)
	onLabel func(id string)
}

var (
	_ fyne.Tappable                 = (*LabelCanvas)(nil)
	_ fyne.Draggable                = (*LabelCanvas)(nil)
	_ fyne.Scrollable               = (*LabelCanvas)(nil)
	_ desktop.Mouseable             = (*LabelCanvas)(nil)
	_ desktop.Hoverable             = (*LabelCanvas)(nil)
	_ interaction.ScreenTransformer = (*LabelCanvas)(nil)
	_ symbols.Surface               = (*LabelCanvas)(nil)
)

// NewLabelCanvas creates a canvas editing photo imageIndex of session.
func NewLabelCanvas(session *app.Session, imageIndex int) *LabelCanvas {
	lc := &LabelCanvas{
		session:         session,
		imageIndex:      imageIndex,
		user:            geometry.Identity(),
		showCalibration: true,
	}
	lc.controller = session.NewController(lc, imageIndex)
	lc.symbols = session.NewSymbolAdapter(lc, func(fn func()) { go fn() })
	lc.symbols.Subscribe(func(symbols.Footprint) { lc.Refresh() })

	lc.raster = fynecanvas.NewRaster(lc.draw)
	lc.raster.ScaleMode = fynecanvas.ImageScalePixels
	lc.raster.SetMinSize(fyne.NewSize(400, 300))

	lc.unsubscribe = session.Store().Subscribe(func(doc manifest.Document) {
		lc.controller.SyncHandles(doc)
		lc.Refresh()
	})

	lc.ExtendBaseWidget(lc)
	return lc
}

// Close detaches the canvas from the session.
func (lc *LabelCanvas) Close() {
	lc.unsubscribe()
}

// Controller returns the interaction controller behind the canvas.
func (lc *LabelCanvas) Controller() *interaction.Controller { return lc.controller }

// SetTool changes the active tool.
func (lc *LabelCanvas) SetTool(t interaction.Tool) { lc.controller.SetTool(t) }

// Tool returns the active tool.
func (lc *LabelCanvas) Tool() interaction.Tool { return lc.controller.Tool() }

// SetImageIndex switches to another photo of the session and resets the view.
func (lc *LabelCanvas) SetImageIndex(i int) {
	lc.mu.Lock()
	lc.imageIndex = i
	lc.highlight = ""
	lc.mu.Unlock()
	lc.controller.SetImageIndex(i)
	lc.FitToWindow()
}

// SetShowCalibration toggles the calibration overlay.
func (lc *LabelCanvas) SetShowCalibration(show bool) {
	lc.mu.Lock()
	lc.showCalibration = show
	lc.mu.Unlock()
	lc.Refresh()
}

// SetScreenPPI updates the density used to size glyphs.
func (lc *LabelCanvas) SetScreenPPI(ppi float64) {
	lc.symbols.SetPPI(ppi)
}

// OnError sets the callback for failed edits.
func (lc *LabelCanvas) OnError(fn func(err error)) { lc.onError = fn }

// OnHover sets the callback reporting the pointer in image pixels.
func (lc *LabelCanvas) OnHover(fn func(local geometry.Point2D, inside bool)) { lc.onHover = fn }

// OnLabelCreated sets the callback run after a click adds a label.
func (lc *LabelCanvas) OnLabelCreated(fn func(id string)) { lc.onLabel = fn }

func (lc *LabelCanvas) index() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.imageIndex
}

func (lc *LabelCanvas) photo() *photo.Photo {
	p, _ := lc.session.Photo(lc.index())
	return p
}

func (lc *LabelCanvas) setHighlight(id string) {
	lc.mu.Lock()
	lc.highlight = id
	lc.mu.Unlock()
}

// IntrinsicSize returns the photo size in pixels.
func (lc *LabelCanvas) IntrinsicSize() geometry.Size {
	p := lc.photo()
	if p == nil {
		return geometry.Size{}
	}
	return p.Size()
}

// RenderedSize returns the on-screen size of the photo.
func (lc *LabelCanvas) RenderedSize() geometry.Size {
	t, ok := lc.ScreenTransform()
	if !ok {
		return geometry.Size{}
	}
	in := lc.IntrinsicSize()
	return geometry.NewSize(in.Width*t.A, in.Height*t.D)
}

// ScreenTransform maps photo pixels to widget positions.
func (lc *LabelCanvas) ScreenTransform() (geometry.AffineTransform, bool) {
	size := lc.Size()
	fit, ok := interaction.Letterbox(lc.IntrinsicSize(), geometry.NewSize(float64(size.Width), float64(size.Height)))
	if !ok {
		return geometry.AffineTransform{}, false
	}
	lc.mu.Lock()
	user := lc.user
	lc.mu.Unlock()
	return user.Compose(fit), true
}

// Zoom returns the zoom relative to the fitted view.
func (lc *LabelCanvas) Zoom() float64 {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.user.A
}

// ZoomAt scales the view by factor about a widget position.
func (lc *LabelCanvas) ZoomAt(factor float64, at geometry.Point2D) {
	lc.mu.Lock()
	z := lc.user.A * factor
	if z < minZoom || z > maxZoom {
		lc.mu.Unlock()
		return
	}
	about := geometry.Translation(at.X, at.Y).
		Compose(geometry.Scale(factor, factor)).
		Compose(geometry.Translation(-at.X, -at.Y))
	lc.user = about.Compose(lc.user)
	lc.mu.Unlock()

	lc.symbols.Resize()
	lc.Refresh()
}

func (lc *LabelCanvas) center() geometry.Point2D {
	s := lc.Size()
	return geometry.Point2D{X: float64(s.Width) / 2, Y: float64(s.Height) / 2}
}

// ZoomIn zooms in about the center.
func (lc *LabelCanvas) ZoomIn() { lc.ZoomAt(zoomStep, lc.center()) }

// ZoomOut zooms out about the center.
func (lc *LabelCanvas) ZoomOut() { lc.ZoomAt(1/zoomStep, lc.center()) }

// FitToWindow resets zoom and pan.
func (lc *LabelCanvas) FitToWindow() {
	lc.mu.Lock()
	lc.user = geometry.Identity()
	lc.mu.Unlock()
	lc.symbols.Resize()
	lc.Refresh()
}

// Resize lays out the widget and recomputes glyph sizes.
func (lc *LabelCanvas) Resize(size fyne.Size) {
	lc.BaseWidget.Resize(size)
	lc.symbols.Resize()
}

func toPoint(p fyne.Position) geometry.Point2D {
	return geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
}

// handleAt returns the key of the handle under a widget position, binding
// it to its marker, or "" for empty canvas.
func (lc *LabelCanvas) handleAt(pos geometry.Point2D) string {
	local, err := interaction.MapToLocal(lc, pos)
	if err != nil {
		return ""
	}
	radius := lc.session.Config().GetHandleInteractionRadius()
	ref, ok := interaction.HandleAt(lc.session.Document(), lc.index(), local, radius)
	if !ok {
		return ""
	}
	key := interaction.HandleKey(ref)
	lc.controller.BindHandle(key, ref)
	return key
}

func (lc *LabelCanvas) report(err error) {
	if err == nil {
		return
	}
	monitoring.Logf("canvas: %v", err)
	if lc.onError != nil {
		lc.onError(err)
	}
}

// MouseDown starts a gesture with the primary button.
func (lc *LabelCanvas) MouseDown(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	pos := toPoint(ev.Position)
	lc.lastPos = pos
	lc.controller.PointerDown(lc.handleAt(pos), pos)
}

// MouseUp ends a gesture.
func (lc *LabelCanvas) MouseUp(ev *desktop.MouseEvent) {
	if ev.Button != desktop.MouseButtonPrimary {
		return
	}
	lc.controller.PointerUp(toPoint(ev.Position))
	lc.setHighlight("")
	lc.Refresh()
}

// Dragged moves the marker being dragged.
func (lc *LabelCanvas) Dragged(ev *fyne.DragEvent) {
	pos := toPoint(ev.Position)
	lc.lastPos = pos
	lc.report(lc.controller.PointerMove(pos))
	if ref, dragging := lc.controller.Target(); dragging {
		lc.setHighlight(ref.ID)
	}
}

// DragEnd ends a drag.
func (lc *LabelCanvas) DragEnd() {
	lc.controller.PointerUp(lc.lastPos)
	lc.setHighlight("")
	lc.Refresh()
}

// Tapped resolves a click.
func (lc *LabelCanvas) Tapped(ev *fyne.PointEvent) {
	pos := toPoint(ev.Position)
	id, err := lc.controller.Click(lc.handleAt(pos), pos)
	lc.report(err)
	if id != "" && lc.onLabel != nil {
		lc.onLabel(id)
	}
}

// Scrolled zooms about the pointer.
func (lc *LabelCanvas) Scrolled(ev *fyne.ScrollEvent) {
	at := toPoint(ev.Position)
	if ev.Scrolled.DY > 0 {
		lc.ZoomAt(zoomStep, at)
	} else if ev.Scrolled.DY < 0 {
		lc.ZoomAt(1/zoomStep, at)
	}
}

// MouseIn reports the pointer entering the canvas.
func (lc *LabelCanvas) MouseIn(ev *desktop.MouseEvent) { lc.MouseMoved(ev) }

// MouseMoved reports the pointer position in image pixels.
func (lc *LabelCanvas) MouseMoved(ev *desktop.MouseEvent) {
	if lc.onHover == nil {
		return
	}
	local, err := interaction.MapToLocal(lc, toPoint(ev.Position))
	if err != nil {
		lc.onHover(geometry.Point2D{}, false)
		return
	}
	in := lc.IntrinsicSize()
	lc.onHover(local, geometry.Rect{Width: in.Width, Height: in.Height}.Contains(local))
}

// MouseOut reports the pointer leaving the canvas.
func (lc *LabelCanvas) MouseOut() {
	if lc.onHover != nil {
		lc.onHover(geometry.Point2D{}, false)
	}
}

// Refresh redraws the raster.
func (lc *LabelCanvas) Refresh() {
	if lc.raster != nil {
		lc.raster.Refresh()
	}
}

// draw renders w x h device pixels. The raster may be larger than the widget
// on high density screens, so the screen transform is scaled to match.
func (lc *LabelCanvas) draw(w, h int) image.Image {
	p := lc.photo()
	t, ok := lc.ScreenTransform()
	size := lc.Size()
	if p == nil || !ok || size.Width <= 0 {
		return photo.RenderView(nil, geometry.Identity(), w, h, photo.Background)
	}
	px := float64(w) / float64(size.Width)
	t = geometry.Scale(px, px).Compose(t)

	view := photo.RenderView(p.Image, t, w, h, photo.Background)

	fp, _ := lc.symbols.Footprint()
	opts := overlay.DefaultOptions(fp)
	opts.HandleRadius = lc.session.Config().GetHandleVisualRadius()
	lc.mu.Lock()
	opts.ShowCalibration = lc.showCalibration
	opts.Highlight = lc.highlight
	index := lc.imageIndex
	lc.mu.Unlock()

	overlay.Annotate(view, lc.session.Document(), index, t, opts)
	return view
}

// CreateRenderer implements fyne.Widget.
func (lc *LabelCanvas) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(lc.raster)
}
