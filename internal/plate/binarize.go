package plate

import (
	"image"

	"gocv.io/x/gocv"
)

// Binarization constants.
const (
	// BlurSize is the Gaussian kernel applied before thresholding.
	BlurSize = 5
	// ThresholdBlockSize is the neighbourhood of the adaptive threshold.
	ThresholdBlockSize = 19
	// ThresholdWeight is subtracted from the weighted neighbourhood mean.
	ThresholdWeight = 9
)

// Binarize returns the grayscale image and an inverted binary image in which
// glyph strokes are white. The caller must Close both.
//
// Steps:
// 1. Convert to grayscale (single-channel input is copied)
// 2. Boost contrast with top-hat minus black-hat (3x3 rect)
// 3. Gaussian blur 5x5
// 4. Adaptive Gaussian threshold, inverted, block 19, C 9
func Binarize(src gocv.Mat) (gray gocv.Mat, thresh gocv.Mat) {
	gray = gocv.NewMat()
	if src.Channels() > 1 {
		gocv.CvtColor(src, &gray, gocv.ColorBGRToGray)
	} else {
		src.CopyTo(&gray)
	}

	contrast := increaseContrast(gray)
	defer contrast.Close()

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.GaussianBlur(contrast, &blurred, image.Point{X: BlurSize, Y: BlurSize}, 0, 0, gocv.BorderDefault)

	thresh = gocv.NewMat()
	gocv.AdaptiveThreshold(blurred, &thresh, 255.0, gocv.AdaptiveThresholdGaussian,
		gocv.ThresholdBinaryInv, ThresholdBlockSize, ThresholdWeight)

	return gray, thresh
}

func increaseContrast(gray gocv.Mat) gocv.Mat {
	kernel := gocv.GetStructuringElement(gocv.MorphRect, image.Point{X: 3, Y: 3})
	defer kernel.Close()

	tophat := gocv.NewMat()
	defer tophat.Close()
	gocv.MorphologyEx(gray, &tophat, gocv.MorphTophat, kernel)

	blackhat := gocv.NewMat()
	defer blackhat.Close()
	gocv.MorphologyEx(gray, &blackhat, gocv.MorphBlackhat, kernel)

	plusTophat := gocv.NewMat()
	defer plusTophat.Close()
	gocv.Add(gray, tophat, &plusTophat)

	out := gocv.NewMat()
	gocv.Subtract(plusTophat, blackhat, &out)
	return out
}

// FindCandidates returns the character-shaped contours of a binary image,
// in contour discovery order.
func FindCandidates(thresh gocv.Mat) []Candidate {
	contours := gocv.FindContours(thresh, gocv.RetrievalList, gocv.ChainApproxSimple)
	defer contours.Close()

	rects := make([]image.Rectangle, 0, contours.Size())
	for i := 0; i < contours.Size(); i++ {
		rects = append(rects, gocv.BoundingRect(contours.At(i)))
	}

	return FilterCharacters(rects)
}
