package interaction

import (
	"sort"

	"rr-labeler/internal/manifest"
	"rr-labeler/pkg/geometry"
)

// HandleKey returns the renderer key used for ref's handle.
func HandleKey(ref MarkerRef) string {
	return string(ref.Category) + ":" + ref.ID
}

// HandleAt returns the marker whose handle is nearest to p, considering only
// handles within radius document units. Labels of image imageIndex and the
// calibration corners are both candidates; on equal distance the lower key
// wins.
func HandleAt(doc manifest.Document, imageIndex int, p geometry.Point2D, radius float64) (MarkerRef, bool) {
	type candidate struct {
		ref  MarkerRef
		dist float64
	}
	var hits []candidate

	consider := func(ref MarkerRef, at geometry.PointInt) {
		if d := p.Distance(at.ToFloat()); d <= radius {
			hits = append(hits, candidate{ref: ref, dist: d})
		}
	}
	for id, pt := range doc.Calibration {
		consider(MarkerRef{Category: manifest.CategoryCalibration, ID: id}, pt)
	}
	if imageIndex >= 0 && imageIndex < len(doc.Images) {
		for id, m := range doc.Images[imageIndex].Labels {
			consider(MarkerRef{Category: manifest.CategoryLabel, ID: id}, m.PointInt)
		}
	}
	if len(hits) == 0 {
		return MarkerRef{}, false
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return HandleKey(hits[i].ref) < HandleKey(hits[j].ref)
	})
	return hits[0].ref, true
}
