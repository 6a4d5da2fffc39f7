package detector

import (
	"image"
	"sort"
)

// LabelPlate is the label given to license plate detections.
const LabelPlate = "plate"

// Detection is one region of interest reported by a detector, in frame
// pixel coordinates.
type Detection struct {
	Rect       image.Rectangle `json:"rect"`
	Confidence float64         `json:"confidence"`
	Label      string          `json:"label"`
}

// Above returns the detections whose confidence is strictly greater than
// min, most confident first.
func Above(dets []Detection, min float64) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, d := range dets {
		if d.Confidence > min {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// Best returns the most confident detection above min.
func Best(dets []Detection, min float64) (Detection, bool) {
	above := Above(dets, min)
	if len(above) == 0 {
		return Detection{}, false
	}
	return above[0], true
}

// Clip restricts the detection box to a cols x rows frame.
// The result may be empty when the box lies outside the frame.
func (d Detection) Clip(cols, rows int) image.Rectangle {
	return d.Rect.Canon().Intersect(image.Rect(0, 0, cols, rows))
}
