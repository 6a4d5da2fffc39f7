package detector

import (
	"image"

	"gocv.io/x/gocv"
)

// FullFrameDetector reports the whole frame as one plate region with full
// confidence, leaving plate finding to the recognition passes. It is used
// when no object detector is configured.
type FullFrameDetector struct{}

// NewFullFrameDetector creates a FullFrameDetector.
func NewFullFrameDetector() *FullFrameDetector {
	return &FullFrameDetector{}
}

// Detect implements Detector.
func (FullFrameDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}
	return []Detection{PlateDetection(image.Rect(0, 0, frame.Cols(), frame.Rows()), 1.0)}, nil
}

// Close implements Detector.
func (FullFrameDetector) Close() error { return nil }
