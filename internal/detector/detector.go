// Package detector finds license plate regions of interest in video frames.
package detector

import (
	"errors"

	"gocv.io/x/gocv"
)

// Detector defines the interface for plate detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns candidate plate regions.
	// Returns an empty slice if nothing is found.
	Detect(frame *gocv.Mat) ([]Detection, error)

	// Close releases any resources held by the detector.
	Close() error
}

// ErrModelNotLoaded is returned when the network weights cannot be read.
var ErrModelNotLoaded = errors.New("detector: model not loaded")

// Config holds configuration options for plate detection.
type Config struct {
	// MinConfidence drops detections at or below this score (0.0-1.0).
	MinConfidence float64

	// InputSize is the square network input in pixels.
	InputSize int

	// ModelPath and ConfigPath locate darknet weights and cfg for DNNDetector.
	ModelPath  string
	ConfigPath string

	// ScriptPath is the detection service started by ServiceDetector.
	ScriptPath string
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.3,
		InputSize:     416,
		ModelPath:     "models/plate.weights",
		ConfigPath:    "models/plate.cfg",
		ScriptPath:    "scripts/plate_detector.py",
	}
}
