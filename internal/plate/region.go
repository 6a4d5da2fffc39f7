package plate

import (
	"errors"
	"image"
	"math"

	"gocv.io/x/gocv"
)

// Padding applied around the raw character span. The height factor is the
// effective default of the 1.45-1.5 range seen in practice.
const (
	WidthPaddingFactor  = 1.3
	HeightPaddingFactor = 1.45
)

// ErrEmptyGroup is returned when a plate region is requested for a group
// with no members. FindGroups never produces one.
var ErrEmptyGroup = errors.New("plate: empty candidate group")

// Point is a sub-pixel image coordinate.
type Point struct {
	X, Y float64
}

// Region is an oriented plate rectangle in source-image coordinates.
type Region struct {
	Center Point
	Width  int
	Height int
	// Angle is the tilt of the character line in degrees, positive when the
	// line descends to the right in image coordinates.
	Angle float64
	Group Group
}

// Geometry computes the plate rectangle for a group already sorted left to right.
func Geometry(g Group) (Region, error) {
	if len(g) == 0 {
		return Region{}, ErrEmptyGroup
	}

	first := g[0]
	last := g[len(g)-1]

	center := Point{
		X: (first.CenterX + last.CenterX) / 2.0,
		Y: (first.CenterY + last.CenterY) / 2.0,
	}

	width := int(float64(last.X+last.Width-first.X) * WidthPaddingFactor)

	totalHeight := 0
	for _, c := range g {
		totalHeight += c.Height
	}
	avgHeight := float64(totalHeight) / float64(len(g))
	height := int(avgHeight * HeightPaddingFactor)

	angle := math.Atan2(last.CenterY-first.CenterY, last.CenterX-first.CenterX) * 180.0 / math.Pi

	return Region{
		Center: center,
		Width:  max(width, 1),
		Height: max(height, 1),
		Angle:  angle,
		Group:  g,
	}, nil
}

// Extracted is a levelled plate image together with its region.
// The caller owns Image and must Close it.
type Extracted struct {
	Region
	Image gocv.Mat
}

// Close releases the plate image.
func (e *Extracted) Close() error {
	return e.Image.Close()
}

// Extract levels the plate described by g and crops it out of src.
// The whole image is rotated about the plate center so the character line
// becomes horizontal, then a Width x Height window centered on the plate
// is taken from the rotated image.
func Extract(src gocv.Mat, g Group) (*Extracted, error) {
	region, err := Geometry(g)
	if err != nil {
		return nil, err
	}

	center := image.Point{
		X: int(math.Round(region.Center.X)),
		Y: int(math.Round(region.Center.Y)),
	}

	// OpenCV treats positive angles as counter-clockwise with the origin at
	// the top left, which undoes a line that descends to the right.
	rotMat := gocv.GetRotationMatrix2D(center, region.Angle, 1.0)
	defer rotMat.Close()

	rotated := gocv.NewMat()
	defer rotated.Close()
	gocv.WarpAffine(src, &rotated, rotMat, image.Point{X: src.Cols(), Y: src.Rows()})

	cropped := gocv.NewMat()
	gocv.GetRectSubPix(rotated, image.Point{X: region.Width, Y: region.Height}, center, &cropped)

	return &Extracted{Region: region, Image: cropped}, nil
}
