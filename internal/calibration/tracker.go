package calibration

import (
	"errors"
	"sync"

	"rr-labeler/internal/manifest"
	"rr-labeler/internal/monitoring"
)

// Result is the derived calibration state of one document.
type Result struct {
	DotsPerTrack int
	Perspective  *Perspective
	Err          error
	// Convex is false when the corners are incomplete or the quad crosses
	// or dents.
	Convex bool
}

// Tracker keeps a Result current by watching a manifest store. The result is
// recomputed from scratch whenever the layout, the calibration corners or the
// camera resolution change; label edits are ignored.
type Tracker struct {
	mu       sync.RWMutex
	result   Result
	last     manifest.Document
	seen     bool
	onChange []func(Result)
	stop     func()
}

// NewTracker computes the initial result from store and subscribes to it.
func NewTracker(store *manifest.Store) *Tracker {
	t := &Tracker{}
	t.observe(store.Document())
	t.stop = store.Subscribe(t.observe)
	return t
}

// Close stops watching the store.
func (t *Tracker) Close() {
	if t.stop != nil {
		t.stop()
	}
}

// OnChange registers fn to be called after every recompute.
func (t *Tracker) OnChange(fn func(Result)) {
	t.mu.Lock()
	t.onChange = append(t.onChange, fn)
	t.mu.Unlock()
}

// Result returns the latest derived state.
func (t *Tracker) Result() Result {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.result
}

// DotsPerTrack returns the latest dots-per-track value, -1 when unknown.
func (t *Tracker) DotsPerTrack() int {
	return t.Result().DotsPerTrack
}

// Perspective returns the latest transform, nil when unavailable.
func (t *Tracker) Perspective() *Perspective {
	return t.Result().Perspective
}

// Err returns why the latest transform is unavailable.
func (t *Tracker) Err() error {
	return t.Result().Err
}

func (t *Tracker) observe(doc manifest.Document) {
	t.mu.Lock()
	if t.seen && !calibrationChanged(t.last, doc) {
		t.last = doc
		t.mu.Unlock()
		return
	}
	t.last = doc
	t.seen = true

	r := Result{DotsPerTrack: DotsPerTrack(doc), Convex: Convex(doc)}
	r.Perspective, r.Err = FromDocument(doc)
	if errors.Is(r.Err, ErrDegenerate) {
		monitoring.Logf("calibration: %v", r.Err)
	} else if r.Err == nil && !r.Convex {
		monitoring.Logf("calibration: rectangle corners cross or dent")
	}
	t.result = r
	listeners := t.onChange
	t.mu.Unlock()

	for _, fn := range listeners {
		fn(r)
	}
}

func calibrationChanged(a, b manifest.Document) bool {
	if !a.Layout.Equal(b.Layout) || a.Camera.Resolution != b.Camera.Resolution {
		return true
	}
	if len(a.Calibration) != len(b.Calibration) {
		return true
	}
	for id, p := range a.Calibration {
		if q, ok := b.Calibration[id]; !ok || p != q {
			return true
		}
	}
	return false
}
