// Package testdata builds synthetic video frames for pipeline tests.
package testdata

import (
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// Glyph block size drawn by PlateScene. The blocks pass the character
// shape filter: taller than 40 pixels with a width/height ratio of 0.42.
const (
	GlyphWidth   = 20
	GlyphHeight  = 48
	GlyphSpacing = 28
)

// PlateScene returns a cols x rows gray frame with a white plate holding
// glyphs dark character blocks in a horizontal row, and the plate's
// rectangle. The caller must Close the frame.
func PlateScene(cols, rows, glyphs int) (gocv.Mat, image.Rectangle) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(90, 90, 90, 0), rows, cols, gocv.MatTypeCV8UC3)

	width := glyphs*GlyphSpacing + GlyphSpacing
	height := GlyphHeight + 24
	origin := image.Pt((cols-width)/2, (rows-height)/2)
	plate := image.Rectangle{Min: origin, Max: origin.Add(image.Pt(width, height))}
	gocv.Rectangle(&frame, plate, color.RGBA{R: 255, G: 255, B: 255, A: 0}, -1)

	for i := 0; i < glyphs; i++ {
		x := plate.Min.X + GlyphSpacing/2 + i*GlyphSpacing
		y := plate.Min.Y + 12
		glyph := image.Rect(x, y, x+GlyphWidth, y+GlyphHeight)
		gocv.Rectangle(&frame, glyph, color.RGBA{A: 0}, -1)
	}

	return frame, plate
}

// Sequence returns n copies of frame for a MockCamera. The caller must
// Close every returned Mat.
func Sequence(frame gocv.Mat, n int) []*gocv.Mat {
	frames := make([]*gocv.Mat, n)
	for i := range frames {
		m := frame.Clone()
		frames[i] = &m
	}
	return frames
}
