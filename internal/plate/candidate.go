// Package plate locates license plates in an image by clustering
// character-shaped contours and extracting a levelled plate region per cluster.
package plate

import (
	"image"
	"math"
)

// Single-box shape limits. A contour's bounding box must exceed every
// minimum and its aspect ratio must fall strictly inside the open interval.
const (
	MinPixelWidth  = 5
	MinPixelHeight = 40
	MinAspectRatio = 0.25
	MaxAspectRatio = 1.0
	MinPixelArea   = 120
)

// Candidate is a character-shaped bounding box with derived geometry.
// Candidates are immutable once built.
type Candidate struct {
	X, Y          int
	Width, Height int

	Area        int
	CenterX     float64
	CenterY     float64
	Diagonal    float64
	AspectRatio float64
}

// NewCandidate builds a Candidate from a bounding box.
// The caller must ensure width and height are positive.
func NewCandidate(x, y, width, height int) Candidate {
	return Candidate{
		X:           x,
		Y:           y,
		Width:       width,
		Height:      height,
		Area:        width * height,
		CenterX:     float64(x) + float64(width)/2.0,
		CenterY:     float64(y) + float64(height)/2.0,
		Diagonal:    math.Sqrt(float64(width*width + height*height)),
		AspectRatio: float64(width) / float64(height),
	}
}

// FromRect builds a Candidate from an image.Rectangle.
func FromRect(r image.Rectangle) Candidate {
	return NewCandidate(r.Min.X, r.Min.Y, r.Dx(), r.Dy())
}

// Rect returns the candidate's bounding box.
func (c Candidate) Rect() image.Rectangle {
	return image.Rect(c.X, c.Y, c.X+c.Width, c.Y+c.Height)
}

// IsPossibleCharacter applies the single-box shape filter. It does not
// compare the candidate against any other candidate.
func IsPossibleCharacter(c Candidate) bool {
	if c.Width <= 0 || c.Height <= 0 {
		return false
	}
	return c.Area > MinPixelArea &&
		c.Width > MinPixelWidth &&
		c.Height > MinPixelHeight &&
		MinAspectRatio < c.AspectRatio &&
		c.AspectRatio < MaxAspectRatio
}

// FilterCharacters keeps the rectangles that pass IsPossibleCharacter,
// preserving input order.
func FilterCharacters(rects []image.Rectangle) []Candidate {
	var out []Candidate
	for _, r := range rects {
		c := FromRect(r)
		if IsPossibleCharacter(c) {
			out = append(out, c)
		}
	}
	return out
}
