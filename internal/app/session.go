// Package app ties the manifest store, calibration tracker, photos and bundle
// I/O into one editing session.
package app

import (
	"context"
	"errors"
	"fmt"
	goimage "image"
	"sync"

	"rr-labeler/internal/bundle"
	"rr-labeler/internal/calibration"
	"rr-labeler/internal/config"
	"rr-labeler/internal/image"
	"rr-labeler/internal/interaction"
	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
	"rr-labeler/internal/rectify"
	"rr-labeler/internal/symbols"
	"rr-labeler/pkg/geometry"
)

var (
	// ErrNoImage is returned when an operation needs a photo and none is
	// loaded at the requested index.
	ErrNoImage = errors.New("no image loaded")

	// ErrDuplicateImage is returned when adding a photo whose filename is
	// already part of the session.
	ErrDuplicateImage = errors.New("image already in session")

	// ErrNotCalibrated is returned when a measurement needs a valid
	// calibration.
	ErrNotCalibrated = errors.New("layout is not calibrated")
)

// EventType identifies session events.
type EventType int

const (
	EventImageLoaded EventType = iota
	EventBundleLoaded
	EventBundleSaved
	EventModified
	EventCurrentImageChanged
	EventCalibrationChanged
)

// EventListener is called when an event occurs.
type EventListener func(data interface{})

// Session holds the document being edited and the photos it refers to.
type Session struct {
	mu sync.RWMutex

	BundlePath string
	Modified   bool

	cfg     *config.Config
	store   *manifest.Store
	tracker *calibration.Tracker
	photos  []*image.Photo
	current int

	loading     bool
	unsubscribe func()
	listeners   map[EventType][]EventListener
}

// NewSession creates an empty session configured by cfg. A nil cfg uses the
// built-in defaults.
func NewSession(cfg *config.Config) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	store := manifest.NewStore()
	store.SetCalibrationInset(cfg.GetCalibrationInset())

	doc := store.Document()
	doc.Layout.Scale = cfg.GetDefaultScale()
	if g := cfg.GetGaugeMM(); g != manifest.StandardGaugeMM {
		doc.Layout.GaugeMM = g
	}
	store.Replace(doc)

	s := &Session{
		cfg:       cfg,
		store:     store,
		tracker:   calibration.NewTracker(store),
		listeners: make(map[EventType][]EventListener),
	}
	s.unsubscribe = store.Subscribe(s.onDocument)
	s.tracker.OnChange(func(r calibration.Result) {
		s.Emit(EventCalibrationChanged, r)
	})
	return s
}

// Close detaches the session from its store.
func (s *Session) Close() {
	s.unsubscribe()
	s.tracker.Close()
}

func (s *Session) onDocument(manifest.Document) {
	s.mu.Lock()
	if s.loading || s.Modified {
		s.mu.Unlock()
		return
	}
	s.Modified = true
	s.mu.Unlock()
	s.Emit(EventModified, true)
}

// On registers an event listener for the specified event type.
func (s *Session) On(event EventType, listener EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], listener)
}

// Emit triggers all listeners for the specified event type.
func (s *Session) Emit(event EventType, data interface{}) {
	s.mu.RLock()
	listeners := s.listeners[event]
	s.mu.RUnlock()

	for _, listener := range listeners {
		listener(data)
	}
}

// SetModified marks the session as modified and emits an event.
func (s *Session) SetModified(modified bool) {
	s.mu.Lock()
	s.Modified = modified
	s.mu.Unlock()
	s.Emit(EventModified, modified)
}

// IsModified reports whether the document changed since it was last loaded
// or saved.
func (s *Session) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Modified
}

// Config returns the session configuration.
func (s *Session) Config() *config.Config { return s.cfg }

// Store returns the manifest store.
func (s *Session) Store() *manifest.Store { return s.store }

// Tracker returns the calibration tracker.
func (s *Session) Tracker() *calibration.Tracker { return s.tracker }

// Document returns the current document snapshot.
func (s *Session) Document() manifest.Document { return s.store.Document() }

// withLoading runs fn with modification tracking suspended.
func (s *Session) withLoading(fn func()) {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.loading = false
		s.mu.Unlock()
	}()
	fn()
}

// OpenImage starts labeling a new photograph. It replaces the image list,
// drops every label since they belong to the old photo, names the layout
// after the file and records the photo's resolution. Layout size, scale and
// a still-matching calibration are kept.
func (s *Session) OpenImage(ctx context.Context, path string) error {
	p, err := image.Load(ctx, path)
	if err != nil {
		return err
	}
	s.SetPhoto(p)
	return nil
}

// SetPhoto makes p the only photo of the session. See OpenImage.
func (s *Session) SetPhoto(p *image.Photo) {
	s.mu.Lock()
	s.photos = []*image.Photo{p}
	s.current = 0
	s.mu.Unlock()

	s.store.ClearLabels()
	s.store.SetImages([]manifest.Image{{Filename: p.Filename}})
	layout := s.store.Document().Layout
	layout.Name = manifest.String(image.LayoutName(p.Filename))
	s.store.SetLayout(layout)
	s.store.SetImageDimensions(p.Width(), p.Height())

	s.Emit(EventImageLoaded, p)
	s.Emit(EventCurrentImageChanged, 0)
}

// AddImage appends a further photograph taken with the same camera setup.
func (s *Session) AddImage(ctx context.Context, path string) (int, error) {
	p, err := image.Load(ctx, path)
	if err != nil {
		return -1, err
	}
	return s.AddPhoto(p)
}

// AddPhoto appends p and returns its index. The first photo of an empty
// session behaves like SetPhoto.
func (s *Session) AddPhoto(p *image.Photo) (int, error) {
	s.mu.RLock()
	n := len(s.photos)
	for _, existing := range s.photos {
		if existing.Filename == p.Filename {
			s.mu.RUnlock()
			return -1, fmt.Errorf("%w: %s", ErrDuplicateImage, p.Filename)
		}
	}
	s.mu.RUnlock()

	if n == 0 {
		s.SetPhoto(p)
		return 0, nil
	}

	doc := s.store.Document()
	if res := doc.Camera.Resolution; res != p.Resolution() {
		monitoring.Logf("image %s is %dx%d, calibration was made at %dx%d",
			p.Filename, p.Width(), p.Height(), res.Width, res.Height)
	}

	s.mu.Lock()
	s.photos = append(s.photos, p)
	idx := len(s.photos) - 1
	s.mu.Unlock()

	images := make([]manifest.Image, 0, len(doc.Images)+1)
	images = append(images, doc.Images...)
	images = append(images, manifest.Image{Filename: p.Filename})
	s.store.SetImages(images)
	s.Emit(EventImageLoaded, p)
	return idx, nil
}

// Photo returns the photo at index i.
func (s *Session) Photo(i int) (*image.Photo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.photos) {
		return nil, false
	}
	return s.photos[i], true
}

// PhotoCount returns the number of loaded photos.
func (s *Session) PhotoCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.photos)
}

// Current returns the index of the photo being edited.
func (s *Session) Current() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// SetCurrent switches the photo being edited.
func (s *Session) SetCurrent(i int) error {
	s.mu.Lock()
	if i < 0 || i >= len(s.photos) {
		s.mu.Unlock()
		return fmt.Errorf("%w: index %d", ErrNoImage, i)
	}
	changed := s.current != i
	s.current = i
	s.mu.Unlock()

	if changed {
		s.Emit(EventCurrentImageChanged, i)
	}
	return nil
}

// SetLayout updates the layout. When only the width is given, the height is
// estimated from the camera's aspect ratio.
func (s *Session) SetLayout(layout manifest.Layout) {
	if layout.Size.Width != nil && layout.Size.Height == nil {
		if h := manifest.EstimateHeight(*layout.Size.Width, s.store.Document().Camera.Resolution); h > 0 {
			layout.Size.Height = manifest.Float(h)
		}
	}
	s.store.SetLayout(layout)
}

// SaveBundle writes the document and every photo to a .r49 archive.
func (s *Session) SaveBundle(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.store.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}

	s.mu.RLock()
	files := make(map[string][]byte, len(s.photos))
	for _, p := range s.photos {
		files[p.Filename] = p.Data
	}
	s.mu.RUnlock()

	if err := bundle.WriteFile(path, data, files); err != nil {
		return err
	}

	s.mu.Lock()
	s.BundlePath = path
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventBundleSaved, path)
	return nil
}

// OpenBundle replaces the session with the content of a .r49 archive. On
// error the session is left unchanged.
func (s *Session) OpenBundle(ctx context.Context, path string) error {
	b, err := bundle.ReadFile(path)
	if err != nil {
		return err
	}

	photos := make([]*image.Photo, len(b.Document.Images))
	for i, img := range b.Document.Images {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, _ := b.Image(i)
		p, err := image.Decode(img.Filename, data)
		if err != nil {
			return err
		}
		photos[i] = p
	}

	s.withLoading(func() {
		s.mu.Lock()
		s.photos = photos
		s.current = 0
		s.mu.Unlock()

		s.store.Replace(b.Document)
		if len(photos) > 0 {
			s.store.SetImageDimensions(photos[0].Width(), photos[0].Height())
		}
	})

	s.mu.Lock()
	s.BundlePath = path
	s.Modified = false
	s.mu.Unlock()

	s.Emit(EventBundleLoaded, path)
	s.Emit(EventCurrentImageChanged, 0)
	return nil
}

// DefaultBundleName returns the archive name derived from the layout name.
func (s *Session) DefaultBundleName() string {
	var name string
	if n := s.store.Document().Layout.Name; n != nil {
		name = *n
	}
	return bundle.Filename(name)
}

// NewController creates an interaction controller for photo imageIndex on
// surface, using the configured click threshold and delete policy.
func (s *Session) NewController(surface interaction.ScreenTransformer, imageIndex int, opts ...interaction.Option) *interaction.Controller {
	base := []interaction.Option{
		interaction.WithClickThreshold(s.cfg.GetClickThreshold()),
		interaction.WithDeletePolicy(interaction.AllowCategories(s.cfg.GetDeletableCategories()...)),
	}
	return interaction.NewController(s.store, surface, imageIndex, append(base, opts...)...)
}

// NewSymbolAdapter creates a symbol size adapter for surface using the
// configured glyph size and screen density.
func (s *Session) NewSymbolAdapter(surface symbols.Surface, schedule symbols.Scheduler) *symbols.Adapter {
	return symbols.NewAdapter(surface, s.cfg.GetSymbolSizeMM(), s.cfg.GetScreenPPI(), schedule)
}

func (s *Session) perspective() (*calibration.Perspective, error) {
	if p := s.tracker.Perspective(); p != nil {
		return p, nil
	}
	if err := s.tracker.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotCalibrated, err)
	}
	return nil, ErrNotCalibrated
}

// Measure returns the layout distance in millimeters between two image
// pixels.
func (s *Session) Measure(a, b geometry.Point2D) (float64, error) {
	p, err := s.perspective()
	if err != nil {
		return 0, err
	}
	return p.Distance(a, b)
}

// Rectified renders photo i as a top-down view of the layout.
func (s *Session) Rectified(ctx context.Context, i int, pxPerMM float64, mode rectify.Mode) (*goimage.RGBA, error) {
	ph, ok := s.Photo(i)
	if !ok {
		return nil, fmt.Errorf("%w: index %d", ErrNoImage, i)
	}
	p, err := s.perspective()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, _, err := rectify.Rectify(ph.Image, p, pxPerMM, mode)
	return out, err
}
