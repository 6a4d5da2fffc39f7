package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Polling rates used by the recognition loop.
const (
	IdleFPS   = 5
	ActiveFPS = 15

	// ActiveHold keeps the loop at ActiveFPS after the last moving frame so a
	// car that stops at the barrier is still polled quickly.
	ActiveHold = 3 * time.Second
)

const (
	blurSize      = 21
	diffThreshold = 25
)

// MotionDetector compares consecutive frames and reports the share of
// pixels that changed. The first frame after construction or Reset only sets
// the baseline.
type MotionDetector struct {
	mu         sync.Mutex
	threshold  float64
	prev       gocv.Mat
	hasPrev    bool
	lastMotion time.Time
	now        func() time.Time
}

// NewMotionDetector creates a detector that reports motion when more than
// threshold percent of the pixels changed.
func NewMotionDetector(threshold float64) *MotionDetector {
	return &MotionDetector{
		threshold: threshold,
		prev:      gocv.NewMat(),
		now:       time.Now,
	}
}

// Detect returns whether frame differs from the previous one and the
// percentage of changed pixels.
func (m *MotionDetector) Detect(frame *gocv.Mat) (bool, float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if frame == nil || frame.Empty() {
		return false, 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}
	gocv.GaussianBlur(gray, &gray, image.Point{X: blurSize, Y: blurSize}, 0, 0, gocv.BorderDefault)

	if !m.hasPrev || m.prev.Rows() != gray.Rows() || m.prev.Cols() != gray.Cols() {
		gray.CopyTo(&m.prev)
		m.hasPrev = true
		return false, 0
	}

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(gray, m.prev, &diff)
	gocv.Threshold(diff, &diff, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(diff)) / float64(diff.Rows()*diff.Cols()) * 100
	gray.CopyTo(&m.prev)

	moving := changed > m.threshold
	if moving {
		m.lastMotion = m.now()
	}
	return moving, changed
}

// Active reports whether motion was seen within ActiveHold.
func (m *MotionDetector) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.lastMotion.IsZero() && m.now().Sub(m.lastMotion) < ActiveHold
}

// PollFPS is the rate the loop should poll at given recent motion.
func (m *MotionDetector) PollFPS() int {
	if m.Active() {
		return ActiveFPS
	}
	return IdleFPS
}

// SetThreshold changes the change percentage that counts as motion.
// Non-positive values are ignored.
func (m *MotionDetector) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	m.mu.Lock()
	m.threshold = threshold
	m.mu.Unlock()
}

// Reset drops the baseline frame and the motion history.
func (m *MotionDetector) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

// Close releases the baseline frame. The detector stays usable.
func (m *MotionDetector) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.release()
}

func (m *MotionDetector) release() {
	m.prev.Close()
	m.prev = gocv.NewMat()
	m.hasPrev = false
	m.lastMotion = time.Time{}
}
