// Package manifest holds the versioned layout document: layout and camera
// description, the calibration rectangle, and the per-image label markers.
package manifest

import (
	"math"

	"rr-labeler/pkg/geometry"
)

// SupportedVersion is the only document schema this package reads or writes.
const SupportedVersion = 2

// StandardGaugeMM is the real-world standard gauge in millimeters.
const StandardGaugeMM = 1435.0

// DefaultMarkerType is used when a label is stored without an explicit type.
const DefaultMarkerType = "track"

// DefaultCalibrationInset is the distance of seeded calibration corners from
// the image edges, in pixels.
const DefaultCalibrationInset = 50

// Calibration corner ids. rect-0/rect-2 are the top corners; rect-1 and
// rect-3 lie below them respectively.
const (
	CornerTopLeft     = "rect-0"
	CornerBottomLeft  = "rect-1"
	CornerTopRight    = "rect-2"
	CornerBottomRight = "rect-3"
)

// CornerIDs lists the calibration corner ids in id order.
var CornerIDs = [4]string{CornerTopLeft, CornerBottomLeft, CornerTopRight, CornerBottomRight}

// Category identifies which marker collection an id belongs to.
type Category string

const (
	CategoryCalibration Category = "calibration"
	CategoryLabel       Category = "label"
)

// Scale is a named model-railroad scale.
type Scale string

const (
	ScaleG  Scale = "G"
	ScaleO  Scale = "O"
	ScaleS  Scale = "S"
	ScaleHO Scale = "HO"
	ScaleT  Scale = "T"
	ScaleN  Scale = "N"
	ScaleZ  Scale = "Z"
)

var scaleRatios = map[Scale]int{
	ScaleG:  25,
	ScaleO:  48,
	ScaleS:  64,
	ScaleHO: 87,
	ScaleT:  72,
	ScaleN:  160,
	ScaleZ:  96,
}

// Scales returns the known scales, largest model first.
func Scales() []Scale {
	return []Scale{ScaleG, ScaleO, ScaleS, ScaleHO, ScaleT, ScaleZ, ScaleN}
}

// Ratio returns the reduction ratio of the named scale (87 for HO, i.e. 1:87).
func (s Scale) Ratio() (int, bool) {
	r, ok := scaleRatios[s]
	return r, ok
}

// LayoutSize is the physical size of the calibration rectangle in millimeters.
// Either dimension may be unset.
type LayoutSize struct {
	Width  *float64 `json:"width,omitempty"`
	Height *float64 `json:"height,omitempty"`
}

// Layout describes the photographed layout.
type Layout struct {
	Name        *string    `json:"name,omitempty"`
	Scale       Scale      `json:"scale"`
	Size        LayoutSize `json:"size"`
	Description string     `json:"description,omitempty"`
	Contact     string     `json:"contact,omitempty"`

	// Optional overrides; zero means "derive from Scale / standard gauge".
	GaugeMM    float64 `json:"gauge_mm,omitempty"`
	ScaleRatio int     `json:"scale_ratio,omitempty"`
}

// Gauge returns the real-world track gauge in millimeters.
func (l Layout) Gauge() float64 {
	if l.GaugeMM > 0 {
		return l.GaugeMM
	}
	return StandardGaugeMM
}

// Ratio returns the scale reduction ratio, or 0 if neither an explicit ratio
// nor a known named scale is set.
func (l Layout) Ratio() int {
	if l.ScaleRatio > 0 {
		return l.ScaleRatio
	}
	r, _ := l.Scale.Ratio()
	return r
}

// TrackGaugeMM returns the modeled track spacing in millimeters.
func (l Layout) TrackGaugeMM() float64 {
	r := l.Ratio()
	if r <= 0 {
		return 0
	}
	return l.Gauge() / float64(r)
}

// HasSize reports whether both physical dimensions are set and positive.
func (l Layout) HasSize() bool {
	return l.Size.Width != nil && l.Size.Height != nil &&
		*l.Size.Width > 0 && *l.Size.Height > 0
}

// Equal reports whether two layouts carry the same values.
func (l Layout) Equal(o Layout) bool {
	return optStringEqual(l.Name, o.Name) &&
		l.Scale == o.Scale &&
		optFloatEqual(l.Size.Width, o.Size.Width) &&
		optFloatEqual(l.Size.Height, o.Size.Height) &&
		l.Description == o.Description &&
		l.Contact == o.Contact &&
		l.GaugeMM == o.GaugeMM &&
		l.ScaleRatio == o.ScaleRatio
}

func optStringEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func optFloatEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Resolution is the camera image size in pixels.
type Resolution struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Camera describes the camera that produced the images.
type Camera struct {
	Resolution Resolution `json:"resolution"`
	Model      string     `json:"model,omitempty"`
}

// Marker is a typed point on an image.
type Marker struct {
	geometry.PointInt
	Type string `json:"type"`
}

// Image is one photograph of the layout and its label markers.
type Image struct {
	Filename string            `json:"filename"`
	Labels   map[string]Marker `json:"labels"`
}

func (img Image) clone() Image {
	labels := make(map[string]Marker, len(img.Labels))
	for id, m := range img.Labels {
		labels[id] = m
	}
	return Image{Filename: img.Filename, Labels: labels}
}

// Document is the persisted unit. Values handed out by Store are shared
// snapshots and must be treated as read-only; use Clone before modifying.
type Document struct {
	Version     int                          `json:"version"`
	Layout      Layout                       `json:"layout"`
	Camera      Camera                       `json:"camera"`
	Calibration map[string]geometry.PointInt `json:"calibration"`
	Images      []Image                      `json:"images"`
}

// NewDocument returns an empty document with default layout and camera.
func NewDocument() Document {
	return Document{
		Version:     SupportedVersion,
		Layout:      Layout{Scale: ScaleHO},
		Calibration: map[string]geometry.PointInt{},
		Images:      []Image{},
	}
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	out := d
	out.Layout = cloneLayout(d.Layout)
	out.Calibration = cloneCalibration(d.Calibration)
	out.Images = cloneImages(d.Images)
	return out
}

// Corner returns the calibration corner with the given id.
func (d Document) Corner(id string) (geometry.PointInt, bool) {
	p, ok := d.Calibration[id]
	return p, ok
}

// CalibrationComplete reports whether all four corners are present.
func (d Document) CalibrationComplete() bool {
	for _, id := range CornerIDs {
		if _, ok := d.Calibration[id]; !ok {
			return false
		}
	}
	return true
}

// Label returns the marker with the given id on image imageIndex.
func (d Document) Label(imageIndex int, id string) (Marker, bool) {
	if imageIndex < 0 || imageIndex >= len(d.Images) {
		return Marker{}, false
	}
	m, ok := d.Images[imageIndex].Labels[id]
	return m, ok
}

// SeedCalibration returns the starting-guess calibration rectangle inset from
// the image bounds.
func SeedCalibration(width, height, inset int) map[string]geometry.PointInt {
	return map[string]geometry.PointInt{
		CornerTopLeft:     {X: inset, Y: inset},
		CornerBottomLeft:  {X: inset, Y: height - inset},
		CornerTopRight:    {X: width - inset, Y: inset},
		CornerBottomRight: {X: width - inset, Y: height - inset},
	}
}

// EstimateHeight derives a layout height in millimeters from a width and the
// camera aspect ratio. It returns 0 when the resolution is unknown.
func EstimateHeight(widthMM float64, res Resolution) float64 {
	if res.Width <= 0 || res.Height <= 0 {
		return 0
	}
	return math.Round(widthMM * float64(res.Height) / float64(res.Width))
}

// normalize replaces nil collections with empty ones so decoded and
// constructed documents compare and encode identically.
func (d *Document) normalize() {
	if d.Calibration == nil {
		d.Calibration = map[string]geometry.PointInt{}
	}
	if d.Images == nil {
		d.Images = []Image{}
	}
	for i := range d.Images {
		if d.Images[i].Labels == nil {
			d.Images[i].Labels = map[string]Marker{}
		}
	}
}

func cloneLayout(l Layout) Layout {
	out := l
	if l.Name != nil {
		name := *l.Name
		out.Name = &name
	}
	if l.Size.Width != nil {
		w := *l.Size.Width
		out.Size.Width = &w
	}
	if l.Size.Height != nil {
		h := *l.Size.Height
		out.Size.Height = &h
	}
	return out
}

func cloneCalibration(c map[string]geometry.PointInt) map[string]geometry.PointInt {
	out := make(map[string]geometry.PointInt, len(c))
	for id, p := range c {
		out[id] = p
	}
	return out
}

func cloneImages(images []Image) []Image {
	out := make([]Image, len(images))
	for i, img := range images {
		out[i] = img.clone()
	}
	return out
}

// Float returns a pointer to v, for populating optional layout fields.
func Float(v float64) *float64 { return &v }

// String returns a pointer to v, for populating optional layout fields.
func String(v string) *string { return &v }
