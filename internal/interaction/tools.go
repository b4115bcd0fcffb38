package interaction

import "rr-labeler/internal/manifest"

// Tool is the active tool tag selected by the user.
type Tool string

const (
	// ToolNone leaves handles draggable and creates nothing on click.
	ToolNone Tool = ""

	// ToolDelete turns a press on a deletable handle into a deletion.
	ToolDelete Tool = "delete"

	// ToolCalibrate allows dragging calibration corners and never creates
	// markers.
	ToolCalibrate Tool = "calibrate"
)

// Marker-creating tools. The tag becomes the stored marker type.
const (
	ToolDetector Tool = "detector"
	ToolTrack    Tool = "track"
	ToolTrain    Tool = "train"
	ToolTrainEnd Tool = "train-end"
	ToolCoupling Tool = "coupling"
)

// LabelTools returns the marker-creating tools in toolbar order.
func LabelTools() []Tool {
	return []Tool{ToolDetector, ToolTrack, ToolTrain, ToolTrainEnd, ToolCoupling}
}

// Creates reports whether a click on empty canvas with this tool places a new
// label.
func (t Tool) Creates() bool {
	return t != ToolNone && t != ToolDelete && t != ToolCalibrate
}

// MarkerType returns the type stored for labels created with this tool.
func (t Tool) MarkerType() string {
	return string(t)
}

// DeletePolicy decides which marker categories the delete tool may remove.
type DeletePolicy func(category manifest.Category) bool

// LabelsOnly is the default policy: labels are deletable, calibration corners
// are not.
func LabelsOnly(category manifest.Category) bool {
	return category == manifest.CategoryLabel
}

// AllowCategories returns a policy permitting exactly the listed categories.
func AllowCategories(categories ...manifest.Category) DeletePolicy {
	allowed := make(map[manifest.Category]bool, len(categories))
	for _, c := range categories {
		allowed[c] = true
	}
	return func(category manifest.Category) bool {
		return allowed[category]
	}
}
