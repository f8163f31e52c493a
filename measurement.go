package carousel

import "math"

// Export resolution. Every document renders at a fixed 4:5 aspect ratio.
const (
	ExportWidth  = 1080
	ExportHeight = 1350
)

// Layout constants in export pixels.
const (
	// safeMargin is the distance kept between the content box and the slide edge.
	safeMargin = 72
	// blockGap separates the primary and secondary text blocks.
	blockGap = 28
	// sideBoxRatio is the maximum share of the inner width a left/right anchored box may use.
	sideBoxRatio = 0.72
)

// PreviewScale returns the factor applied to the export tree when it is shown in a
// container of the given width. It only ever scales down: a container wider than
// the export width yields 1.0. Non-positive widths yield 0.
func PreviewScale(containerWidth float64) float64 {
	if containerWidth <= 0 || math.IsNaN(containerWidth) {
		return 0
	}
	return math.Min(containerWidth/ExportWidth, 1.0)
}

// previewSize returns the pixel size of a preview painted at scale.
func previewSize(scale float64) (int, int) {
	w := int(math.Round(ExportWidth * scale))
	h := int(math.Round(ExportHeight * scale))
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
