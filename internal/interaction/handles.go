package interaction

import "rr-labeler/internal/manifest"

// MarkerRef identifies a marker within one view.
type MarkerRef struct {
	Category manifest.Category
	ID       string
}

// handleTable maps renderer handle keys to the markers they move. A marker
// may own several keys (a visible dot and a larger hit area).
type handleTable struct {
	byKey    map[string]MarkerRef
	byMarker map[MarkerRef][]string
}

func newHandleTable() handleTable {
	return handleTable{
		byKey:    make(map[string]MarkerRef),
		byMarker: make(map[MarkerRef][]string),
	}
}

func (t *handleTable) bind(key string, ref MarkerRef) {
	if old, ok := t.byKey[key]; ok {
		if old == ref {
			return
		}
		t.removeKey(old, key)
	}
	t.byKey[key] = ref
	t.byMarker[ref] = append(t.byMarker[ref], key)
}

func (t *handleTable) removeKey(ref MarkerRef, key string) {
	keys := t.byMarker[ref]
	for i, k := range keys {
		if k == key {
			keys = append(keys[:i:i], keys[i+1:]...)
			break
		}
	}
	if len(keys) == 0 {
		delete(t.byMarker, ref)
	} else {
		t.byMarker[ref] = keys
	}
}

func (t *handleTable) unbind(ref MarkerRef) {
	for _, k := range t.byMarker[ref] {
		delete(t.byKey, k)
	}
	delete(t.byMarker, ref)
}

func (t *handleTable) lookup(key string) (MarkerRef, bool) {
	if key == "" {
		return MarkerRef{}, false
	}
	ref, ok := t.byKey[key]
	return ref, ok
}

func (t *handleTable) refs() []MarkerRef {
	out := make([]MarkerRef, 0, len(t.byMarker))
	for ref := range t.byMarker {
		out = append(out, ref)
	}
	return out
}
