package plate

import "math"

// Pairwise limits used to decide whether two candidates belong to the same plate.
const (
	MinDiagSizeMultipleAway = 0.3
	MaxDiagSizeMultipleAway = 5.0
	MaxChangeInArea         = 0.5
	MaxChangeInWidth        = 0.8
	MaxChangeInHeight       = 0.2
	MaxAngleBetweenChars    = 12.0
)

// Distance returns the Euclidean distance between the centers of a and b.
func Distance(a, b Candidate) float64 {
	return math.Hypot(a.CenterX-b.CenterX, a.CenterY-b.CenterY)
}

// Angle returns the angle in degrees of the line joining the centers of a
// and b, folded into the first quadrant.
func Angle(a, b Candidate) float64 {
	dx := math.Abs(a.CenterX - b.CenterX)
	dy := math.Abs(a.CenterY - b.CenterY)
	return math.Atan2(dy, dx) * 180.0 / math.Pi
}

// Compatible reports whether b plausibly sits on the same plate as a.
//
// The test is directional: a's diagonal, area, width and height are the
// reference for every ratio, so Compatible(a, b) and Compatible(b, a) can
// disagree near the thresholds. Callers must not symmetrize it.
func Compatible(a, b Candidate) bool {
	distance := Distance(a, b)
	angle := Angle(a, b)

	areaChange := math.Abs(float64(b.Area-a.Area)) / float64(a.Area)
	widthChange := math.Abs(float64(b.Width-a.Width)) / float64(a.Width)
	heightChange := math.Abs(float64(b.Height-a.Height)) / float64(a.Height)

	return distance < a.Diagonal*MaxDiagSizeMultipleAway &&
		angle < MaxAngleBetweenChars &&
		areaChange < MaxChangeInArea &&
		widthChange < MaxChangeInWidth &&
		heightChange < MaxChangeInHeight
}
