// Package ocr reads the characters of an extracted plate image.
package ocr

import (
	"errors"
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Glyph size expected by the classifiers.
const (
	GlyphWidth  = 20
	GlyphHeight = 30
	// GlyphFeatures is the length of a flattened glyph.
	GlyphFeatures = GlyphWidth * GlyphHeight
)

// ErrEmptyGlyph is returned when a classifier is handed an empty image.
var ErrEmptyGlyph = errors.New("ocr: empty glyph image")

// ErrUnreadable is returned when a classifier cannot name the character.
var ErrUnreadable = errors.New("ocr: unreadable glyph")

// Classifier names the single character shown in a binary glyph image.
type Classifier interface {
	Classify(glyph gocv.Mat) (rune, error)
	Close() error
}

// Flatten resizes a glyph to GlyphWidth x GlyphHeight and returns its pixel
// intensities row by row.
func Flatten(glyph gocv.Mat) ([]float64, error) {
	if glyph.Empty() {
		return nil, ErrEmptyGlyph
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if glyph.Channels() > 1 {
		gocv.CvtColor(glyph, &gray, gocv.ColorBGRToGray)
	} else {
		glyph.CopyTo(&gray)
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(gray, &resized, image.Point{X: GlyphWidth, Y: GlyphHeight}, 0, 0, gocv.InterpolationLinear)

	pixels := resized.ToBytes()
	if len(pixels) != GlyphFeatures {
		return nil, fmt.Errorf("ocr: flattened glyph has %d values, want %d", len(pixels), GlyphFeatures)
	}

	out := make([]float64, GlyphFeatures)
	for i, p := range pixels {
		out[i] = float64(p)
	}
	return out, nil
}
