package ocr

import (
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// PlateChars is the character set that can appear on a plate.
const PlateChars = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// TesseractClassifier reads glyphs with Tesseract in single character mode.
// A gosseract client is not safe for concurrent use, so calls are serialized.
type TesseractClassifier struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewTesseractClassifier creates a Tesseract backed classifier.
func NewTesseractClassifier() (*TesseractClassifier, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_CHAR); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := client.SetWhitelist(PlateChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	// Plates are not dictionary words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	return &TesseractClassifier{client: client}, nil
}

// Classify implements Classifier.
func (t *TesseractClassifier) Classify(glyph gocv.Mat) (rune, error) {
	if glyph.Empty() {
		return 0, ErrEmptyGlyph
	}

	// Tesseract expects dark text on a light background.
	inverted := gocv.NewMat()
	defer inverted.Close()
	gocv.BitwiseNot(glyph, &inverted)

	buf, err := gocv.IMEncode(gocv.PNGFileExt, inverted)
	if err != nil {
		return 0, fmt.Errorf("failed to encode glyph: %w", err)
	}
	defer buf.Close()

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return 0, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := t.client.Text()
	if err != nil {
		return 0, fmt.Errorf("OCR failed: %w", err)
	}

	for _, r := range strings.ToUpper(text) {
		if !unicode.IsSpace(r) {
			return r, nil
		}
	}
	return 0, ErrUnreadable
}

// Close releases the Tesseract client.
func (t *TesseractClassifier) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}
