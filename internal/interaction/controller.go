package interaction

import (
	"time"

	"rr-labeler/internal/manifest"
	"rr-labeler/pkg/geometry"

	"github.com/google/uuid"
)

// DefaultClickThreshold is the longest press that still counts as a click.
const DefaultClickThreshold = 100 * time.Millisecond

// Store is the part of the manifest store the controller mutates.
type Store interface {
	Document() manifest.Document
	SetMarker(category manifest.Category, id string, x, y float64, typ string, imageIndex int)
	DeleteMarker(category manifest.Category, id string, imageIndex int)
}

// State is the gesture state of a controller.
type State int

const (
	Idle State = iota
	Dragging
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	}
	return "unknown"
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator replaces the UUID generator used for new labels.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// WithClickThreshold sets the longest press that still counts as a click.
func WithClickThreshold(d time.Duration) Option {
	return func(c *Controller) { c.clickThreshold = d }
}

// WithDeletePolicy sets which categories the delete tool may remove.
func WithDeletePolicy(p DeletePolicy) Option {
	return func(c *Controller) {
		if p != nil {
			c.canDelete = p
		}
	}
}

// Controller resolves pointer input on one image view into marker mutations.
// It is driven from the UI event loop and is not safe for concurrent use.
type Controller struct {
	store      Store
	surface    ScreenTransformer
	imageIndex int

	tool           Tool
	canDelete      DeletePolicy
	clickThreshold time.Duration
	now            func() time.Time
	newID          func() string

	handles handleTable

	state         State
	target        MarkerRef
	pressed       bool
	pressedAt     time.Time
	pressPos      geometry.Point2D
	moved         bool
	suppressClick bool
}

// NewController creates a controller for image imageIndex of store, rendered
// on surface.
func NewController(store Store, surface ScreenTransformer, imageIndex int, opts ...Option) *Controller {
	c := &Controller{
		store:          store,
		surface:        surface,
		imageIndex:     imageIndex,
		canDelete:      LabelsOnly,
		clickThreshold: DefaultClickThreshold,
		now:            time.Now,
		newID:          uuid.NewString,
		handles:        newHandleTable(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ImageIndex returns the image this controller edits.
func (c *Controller) ImageIndex() int { return c.imageIndex }

// SetImageIndex retargets the controller and abandons any gesture.
func (c *Controller) SetImageIndex(i int) {
	c.imageIndex = i
	c.Cancel()
}

// Tool returns the active tool.
func (c *Controller) Tool() Tool { return c.tool }

// SetTool changes the active tool. A drag in progress continues.
func (c *Controller) SetTool(t Tool) { c.tool = t }

// State returns the gesture state.
func (c *Controller) State() State { return c.state }

// Target returns the marker being dragged.
func (c *Controller) Target() (MarkerRef, bool) {
	return c.target, c.state == Dragging
}

// BindHandle associates a renderer handle key with a marker.
func (c *Controller) BindHandle(key string, ref MarkerRef) {
	c.handles.bind(key, ref)
}

// UnbindMarker forgets every handle key of ref.
func (c *Controller) UnbindMarker(ref MarkerRef) {
	c.handles.unbind(ref)
}

// Marker returns the marker bound to a handle key.
func (c *Controller) Marker(key string) (MarkerRef, bool) {
	return c.handles.lookup(key)
}

// SyncHandles drops handle bindings of markers that no longer exist in doc.
// A drag whose target disappeared is abandoned.
func (c *Controller) SyncHandles(doc manifest.Document) {
	for _, ref := range c.handles.refs() {
		if !c.exists(doc, ref) {
			c.handles.unbind(ref)
		}
	}
	if c.state == Dragging && !c.exists(doc, c.target) {
		c.state = Idle
		c.target = MarkerRef{}
	}
}

func (c *Controller) exists(doc manifest.Document, ref MarkerRef) bool {
	switch ref.Category {
	case manifest.CategoryCalibration:
		_, ok := doc.Corner(ref.ID)
		return ok
	case manifest.CategoryLabel:
		_, ok := doc.Label(c.imageIndex, ref.ID)
		return ok
	}
	return false
}

// PointerDown starts a gesture. handleKey is the renderer key under the
// pointer, or "" for empty canvas. With the delete tool a press on a
// deletable marker removes it immediately; any other press on a handle
// starts dragging that marker.
func (c *Controller) PointerDown(handleKey string, screen geometry.Point2D) {
	c.pressed = true
	c.pressedAt = c.now()
	c.pressPos = screen
	c.moved = false
	c.suppressClick = false

	ref, ok := c.handles.lookup(handleKey)
	if !ok {
		return
	}
	if c.tool == ToolDelete && c.canDelete(ref.Category) {
		c.handles.unbind(ref)
		c.suppressClick = true
		c.store.DeleteMarker(ref.Category, ref.ID, c.imageIndex)
		return
	}
	c.state = Dragging
	c.target = ref
}

// PointerMove updates the dragged marker to the mapped pointer position.
// Moves without a press are ignored. A mapping failure is returned and the
// store is left untouched.
func (c *Controller) PointerMove(screen geometry.Point2D) error {
	if !c.pressed {
		return nil
	}
	if screen != c.pressPos {
		c.moved = true
	}
	if c.state != Dragging {
		return nil
	}

	local, err := MapToLocal(c.surface, screen)
	if err != nil {
		return err
	}

	var typ string
	if c.target.Category == manifest.CategoryLabel {
		m, ok := c.store.Document().Label(c.imageIndex, c.target.ID)
		if !ok {
			c.state = Idle
			c.target = MarkerRef{}
			return nil
		}
		typ = m.Type
	}
	c.store.SetMarker(c.target.Category, c.target.ID, local.X, local.Y, typ, c.imageIndex)
	return nil
}

// PointerUp ends the gesture. Ending a drag arms suppression of the click
// that follows the release.
func (c *Controller) PointerUp(screen geometry.Point2D) {
	c.pressed = false
	if screen != c.pressPos {
		c.moved = true
	}
	if c.state == Dragging {
		c.state = Idle
		c.target = MarkerRef{}
		c.suppressClick = true
	}
}

// Cancel abandons the current gesture without touching the store.
func (c *Controller) Cancel() {
	c.state = Idle
	c.target = MarkerRef{}
	c.pressed = false
	c.pressedAt = time.Time{}
	c.moved = false
	c.suppressClick = false
}

// Click resolves a click. It is consumed without effect when it ends a drag,
// when the pointer moved since the press, when the press lasted at least the
// click threshold, or when no press preceded it. A genuine click on empty
// canvas with a creating tool adds a label of the tool's type under a fresh
// id, which is returned.
func (c *Controller) Click(handleKey string, screen geometry.Point2D) (string, error) {
	pressedAt := c.pressedAt
	suppressed := c.suppressClick || c.moved || pressedAt.IsZero() ||
		c.now().Sub(pressedAt) >= c.clickThreshold
	c.pressedAt = time.Time{}
	c.suppressClick = false
	c.moved = false
	if suppressed {
		return "", nil
	}

	if _, onHandle := c.handles.lookup(handleKey); onHandle {
		return "", nil
	}
	if !c.tool.Creates() {
		return "", nil
	}

	local, err := MapToLocal(c.surface, screen)
	if err != nil {
		return "", err
	}
	id := c.newID()
	c.store.SetMarker(manifest.CategoryLabel, id, local.X, local.Y, c.tool.MarkerType(), c.imageIndex)
	return id, nil
}
