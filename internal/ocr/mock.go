package ocr

import (
	"sync"

	"gocv.io/x/gocv"
)

// MockClassifier returns characters from a fixed script, cycling when it
// runs out. Useful for tests.
type MockClassifier struct {
	mu     sync.Mutex
	script []rune
	calls  int
}

// NewMockClassifier creates a mock that answers with the runes of script.
func NewMockClassifier(script string) *MockClassifier {
	return &MockClassifier{script: []rune(script)}
}

// Classify implements Classifier.
func (m *MockClassifier) Classify(glyph gocv.Mat) (rune, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if glyph.Empty() {
		return 0, ErrEmptyGlyph
	}
	if len(m.script) == 0 {
		return 0, ErrUnreadable
	}

	r := m.script[m.calls%len(m.script)]
	m.calls++
	return r, nil
}

// Calls returns how many glyphs were classified.
func (m *MockClassifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Close implements Classifier.
func (m *MockClassifier) Close() error { return nil }
