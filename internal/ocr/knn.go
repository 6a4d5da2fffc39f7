package ocr

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/floats"
)

// ErrNoTrainingData is returned when the KNN training artifacts are missing
// or malformed.
var ErrNoTrainingData = errors.New("ocr: no usable training data")

// KNNClassifier labels a glyph with the class of its nearest training sample.
type KNNClassifier struct {
	samples [][]float64
	labels  []rune
}

// NewKNNClassifier builds a classifier from flattened samples and their labels.
func NewKNNClassifier(samples [][]float64, labels []rune) (*KNNClassifier, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no samples", ErrNoTrainingData)
	}
	if len(samples) != len(labels) {
		return nil, fmt.Errorf("%w: %d samples but %d labels", ErrNoTrainingData, len(samples), len(labels))
	}
	for i, s := range samples {
		if len(s) != GlyphFeatures {
			return nil, fmt.Errorf("%w: sample %d has %d values, want %d", ErrNoTrainingData, i, len(s), GlyphFeatures)
		}
	}
	return &KNNClassifier{samples: samples, labels: labels}, nil
}

// LoadKNNClassifier reads the classifications file (one character code per
// line) and the flattened images file (one sample per line).
func LoadKNNClassifier(classificationsPath, flattenedImagesPath string) (*KNNClassifier, error) {
	cf, err := os.Open(classificationsPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTrainingData, err)
	}
	defer cf.Close()

	ff, err := os.Open(flattenedImagesPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoTrainingData, err)
	}
	defer ff.Close()

	return ParseKNNTrainingData(cf, ff)
}

// ParseKNNTrainingData parses whitespace separated float text as written by
// numpy.savetxt.
func ParseKNNTrainingData(classifications, flattenedImages io.Reader) (*KNNClassifier, error) {
	codes, err := readFloatRows(classifications)
	if err != nil {
		return nil, fmt.Errorf("%w: classifications: %v", ErrNoTrainingData, err)
	}

	var labels []rune
	for _, row := range codes {
		for _, v := range row {
			if v < 0 || v > math.MaxInt32 || v != math.Trunc(v) {
				return nil, fmt.Errorf("%w: invalid character code %v", ErrNoTrainingData, v)
			}
			labels = append(labels, rune(int32(v)))
		}
	}

	samples, err := readFloatRows(flattenedImages)
	if err != nil {
		return nil, fmt.Errorf("%w: flattened images: %v", ErrNoTrainingData, err)
	}

	return NewKNNClassifier(samples, labels)
}

func readFloatRows(r io.Reader) ([][]float64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var rows [][]float64
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		row := make([]float64, len(fields))
		for i, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errors.New("empty file")
	}
	return rows, nil
}

// Nearest returns the label of the training sample closest to features in
// Euclidean distance. Ties go to the earlier sample.
func (k *KNNClassifier) Nearest(features []float64) (rune, error) {
	if len(features) != GlyphFeatures {
		return 0, fmt.Errorf("ocr: got %d features, want %d", len(features), GlyphFeatures)
	}

	best := 0
	bestDist := math.Inf(1)
	for i, s := range k.samples {
		if d := floats.Distance(features, s, 2); d < bestDist {
			best, bestDist = i, d
		}
	}
	return k.labels[best], nil
}

// Classify implements Classifier.
func (k *KNNClassifier) Classify(glyph gocv.Mat) (rune, error) {
	features, err := Flatten(glyph)
	if err != nil {
		return 0, err
	}
	return k.Nearest(features)
}

// Close implements Classifier.
func (k *KNNClassifier) Close() error { return nil }

// Len returns the number of training samples.
func (k *KNNClassifier) Len() int { return len(k.samples) }
