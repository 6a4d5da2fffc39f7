package ocr

import (
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"

	"github.com/ayusman/platewatch/internal/plate"
)

// PlateScale is the upscale applied to a plate before its characters are
// located.
const PlateScale = 1.6

// Reader turns extracted plate images into strings.
type Reader struct {
	classifier Classifier
}

// NewReader creates a reader backed by c.
func NewReader(c Classifier) *Reader {
	return &Reader{classifier: c}
}

// ReadPlate reads the characters of one levelled plate image.
//
// The plate is binarized again, enlarged by PlateScale and re-thresholded
// with Otsu. Character candidates are clustered and the largest cluster,
// ordered left to right, is classified glyph by glyph. A plate without a
// cluster reads as "".
func (r *Reader) ReadPlate(img gocv.Mat) (string, error) {
	if img.Empty() {
		return "", nil
	}

	gray, thresh := plate.Binarize(img)
	gray.Close()
	defer thresh.Close()

	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(thresh, &scaled, image.Point{}, PlateScale, PlateScale, gocv.InterpolationCubic)

	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(scaled, &binary, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)

	groups := plate.FindGroups(plate.FindCandidates(binary))
	longest := plate.Longest(groups)
	if longest < 0 {
		return "", nil
	}

	var sb strings.Builder
	for _, c := range groups[longest] {
		glyph := binary.Region(c.Rect())
		ch, err := r.classifier.Classify(glyph)
		glyph.Close()

		if errors.Is(err, ErrUnreadable) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("classify glyph at %v: %w", c.Rect(), err)
		}
		sb.WriteRune(ch)
	}

	return sb.String(), nil
}

// Read reads every plate and returns one string per plate, in order.
func (r *Reader) Read(plates []*plate.Extracted) ([]string, error) {
	out := make([]string, 0, len(plates))
	for _, p := range plates {
		s, err := r.ReadPlate(p.Image)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
