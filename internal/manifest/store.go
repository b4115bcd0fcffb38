package manifest

import (
	"sync"

	"rr-labeler/pkg/geometry"
)

// Listener is called with the complete new document after every mutation.
type Listener func(doc Document)

type subscription struct {
	id int
	fn Listener
}

type publication struct {
	doc       Document
	listeners []subscription
}

// Store holds the current document snapshot. Every mutation builds a new
// Document, swaps it in, and notifies all subscribers synchronously in
// registration order before returning. A mutation issued from inside a
// listener is queued and delivered once the current round finishes, so every
// listener sees documents in mutation order and ends on the newest one.
// Snapshots already handed out are never modified.
type Store struct {
	mu        sync.RWMutex
	doc       Document
	listeners []subscription
	nextID    int
	inset     int

	pubMu      sync.Mutex
	pending    []publication
	publishing bool
}

// NewStore creates a store holding an empty document.
func NewStore() *Store {
	return NewStoreWith(NewDocument())
}

// NewStoreWith creates a store holding a copy of doc.
func NewStoreWith(doc Document) *Store {
	doc = doc.Clone()
	doc.normalize()
	return &Store{doc: doc, inset: DefaultCalibrationInset}
}

// SetCalibrationInset changes the inset used when seeding calibration corners.
func (s *Store) SetCalibrationInset(inset int) {
	s.mu.Lock()
	s.inset = inset
	s.mu.Unlock()
}

// Document returns the current snapshot.
func (s *Store) Document() Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc
}

// Subscribe registers fn for change notifications. The returned function
// removes the subscription; calling it more than once is harmless.
func (s *Store) Subscribe(fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	next := make([]subscription, len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, subscription{id: id, fn: fn})
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { s.unsubscribe(id) })
	}
}

func (s *Store) unsubscribe(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]subscription, 0, len(s.listeners))
	for _, sub := range s.listeners {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	s.listeners = next
}

// update runs build against the current document under the lock. When build
// reports a change the result is queued for publication. Listeners run after
// the lock is released so they may read the store or issue further
// mutations.
func (s *Store) update(build func(cur Document, inset int) (Document, bool)) {
	s.mu.Lock()
	next, changed := build(s.doc, s.inset)
	if !changed {
		s.mu.Unlock()
		return
	}
	s.doc = next
	// Queued while still holding mu so queue order is mutation order.
	s.pubMu.Lock()
	s.pending = append(s.pending, publication{doc: next, listeners: s.listeners})
	s.pubMu.Unlock()
	s.mu.Unlock()

	s.drain()
}

// drain delivers queued documents. Only the outermost caller delivers; a
// nested call returns at once and its document is sent after the current one
// has reached every listener.
func (s *Store) drain() {
	s.pubMu.Lock()
	if s.publishing {
		s.pubMu.Unlock()
		return
	}
	s.publishing = true
	for len(s.pending) > 0 {
		pub := s.pending[0]
		s.pending = s.pending[1:]
		s.pubMu.Unlock()
		s.deliver(pub)
		s.pubMu.Lock()
	}
	s.publishing = false
	s.pubMu.Unlock()
}

// deliver runs the listeners of one publication. A panicking listener drops
// the queue so later mutations publish again.
func (s *Store) deliver(pub publication) {
	done := false
	defer func() {
		if !done {
			s.pubMu.Lock()
			s.publishing = false
			s.pending = nil
			s.pubMu.Unlock()
		}
	}()
	for _, sub := range pub.listeners {
		sub.fn(pub.doc)
	}
	done = true
}

// Replace publishes doc as the new current document.
func (s *Store) Replace(doc Document) {
	doc = doc.Clone()
	doc.normalize()
	s.update(func(Document, int) (Document, bool) {
		return doc, true
	})
}

// SetLayout replaces the layout. The scale is not validated and the
// calibration rectangle is left untouched.
func (s *Store) SetLayout(layout Layout) {
	layout = cloneLayout(layout)
	s.update(func(cur Document, _ int) (Document, bool) {
		next := cur
		next.Layout = layout
		return next, true
	})
}

// SetImageDimensions records the camera resolution. When the resolution
// changes, or fewer than four calibration corners exist, all four corners are
// re-seeded inset from the new bounds. Otherwise nothing happens.
func (s *Store) SetImageDimensions(width, height int) {
	s.update(func(cur Document, inset int) (Document, bool) {
		res := cur.Camera.Resolution
		if res.Width == width && res.Height == height && len(cur.Calibration) >= 4 {
			return cur, false
		}
		next := cur
		next.Camera.Resolution = Resolution{Width: width, Height: height}
		next.Calibration = SeedCalibration(width, height, inset)
		return next, true
	})
}

// SetMarker upserts a marker with coordinates rounded to the nearest integer.
// For labels, an empty typ stores DefaultMarkerType; an out-of-range
// imageIndex is ignored. Calibration markers ignore typ and imageIndex and
// only accept the four corner ids.
func (s *Store) SetMarker(category Category, id string, x, y float64, typ string, imageIndex int) {
	p := geometry.Point2D{X: x, Y: y}.Round()

	s.update(func(cur Document, _ int) (Document, bool) {
		next := cur
		switch category {
		case CategoryCalibration:
			if !isCornerID(id) {
				return cur, false
			}
			next.Calibration = cloneCalibration(cur.Calibration)
			next.Calibration[id] = p
			return next, true

		case CategoryLabel:
			if imageIndex < 0 || imageIndex >= len(cur.Images) {
				return cur, false
			}
			if typ == "" {
				typ = DefaultMarkerType
			}
			next.Images = make([]Image, len(cur.Images))
			copy(next.Images, cur.Images)
			img := cur.Images[imageIndex].clone()
			img.Labels[id] = Marker{PointInt: p, Type: typ}
			next.Images[imageIndex] = img
			return next, true
		}
		return cur, false
	})
}

// DeleteMarker removes a marker if present. Removing a calibration corner
// does not re-seed it.
func (s *Store) DeleteMarker(category Category, id string, imageIndex int) {
	s.update(func(cur Document, _ int) (Document, bool) {
		next := cur
		switch category {
		case CategoryCalibration:
			if _, ok := cur.Calibration[id]; !ok {
				return cur, false
			}
			next.Calibration = cloneCalibration(cur.Calibration)
			delete(next.Calibration, id)
			return next, true

		case CategoryLabel:
			if _, ok := cur.Label(imageIndex, id); !ok {
				return cur, false
			}
			next.Images = make([]Image, len(cur.Images))
			copy(next.Images, cur.Images)
			img := cur.Images[imageIndex].clone()
			delete(img.Labels, id)
			next.Images[imageIndex] = img
			return next, true
		}
		return cur, false
	})
}

// SetImages replaces the image list.
func (s *Store) SetImages(images []Image) {
	images = cloneImages(images)
	for i := range images {
		if images[i].Labels == nil {
			images[i].Labels = map[string]Marker{}
		}
	}
	s.update(func(cur Document, _ int) (Document, bool) {
		next := cur
		next.Images = images
		return next, true
	})
}

// ClearLabels removes every label from every image, keeping the image list.
func (s *Store) ClearLabels() {
	s.update(func(cur Document, _ int) (Document, bool) {
		empty := true
		for _, img := range cur.Images {
			if len(img.Labels) > 0 {
				empty = false
				break
			}
		}
		if empty {
			return cur, false
		}
		next := cur
		next.Images = make([]Image, len(cur.Images))
		for i, img := range cur.Images {
			next.Images[i] = Image{Filename: img.Filename, Labels: map[string]Marker{}}
		}
		return next, true
	})
}

// ToJSON serializes the current document.
func (s *Store) ToJSON() ([]byte, error) {
	return ToJSON(s.Document())
}

// LoadJSON decodes data and, on success, publishes it as the current
// document. On failure the store is left unchanged.
func (s *Store) LoadJSON(data []byte) error {
	doc, err := FromJSON(data)
	if err != nil {
		return err
	}
	s.Replace(doc)
	return nil
}
