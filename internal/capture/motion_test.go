package capture

import (
	"testing"
	"time"

	"gocv.io/x/gocv"
)

func solidFrame(t *testing.T, value float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(value, value, value, 0), 240, 320, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestMotionDetector(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	tests := []struct {
		name       string
		threshold  float64
		second     float64
		wantMoving bool
	}{
		{name: "identical frames", threshold: 1, second: 0, wantMoving: false},
		{name: "black to white", threshold: 1, second: 255, wantMoving: true},
		{name: "small change under diff threshold", threshold: 1, second: 10, wantMoving: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			md := NewMotionDetector(tt.threshold)
			defer md.Close()

			first := solidFrame(t, 0)
			second := solidFrame(t, tt.second)

			if moving, pct := md.Detect(&first); moving || pct != 0 {
				t.Fatalf("baseline frame Detect() = %v, %f, want false, 0", moving, pct)
			}
			moving, pct := md.Detect(&second)
			if moving != tt.wantMoving {
				t.Errorf("Detect() = %v (%.2f%%), want %v", moving, pct, tt.wantMoving)
			}
		})
	}
}

func TestMotionDetector_SizeChangeResetsBaseline(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	md := NewMotionDetector(1)
	defer md.Close()

	small := gocv.NewMatWithSize(120, 160, gocv.MatTypeCV8UC3)
	defer small.Close()
	large := solidFrame(t, 255)

	md.Detect(&small)
	if moving, _ := md.Detect(&large); moving {
		t.Error("a frame of a new size should only set the baseline")
	}
}

func TestMotionDetector_PollFPS(t *testing.T) {
	md := NewMotionDetector(1)
	defer md.Close()

	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	md.now = func() time.Time { return now }

	if got := md.PollFPS(); got != IdleFPS {
		t.Fatalf("PollFPS() without motion = %d, want %d", got, IdleFPS)
	}

	md.lastMotion = now
	if got := md.PollFPS(); got != ActiveFPS {
		t.Errorf("PollFPS() right after motion = %d, want %d", got, ActiveFPS)
	}

	now = now.Add(ActiveHold)
	if got := md.PollFPS(); got != IdleFPS {
		t.Errorf("PollFPS() after hold = %d, want %d", got, IdleFPS)
	}

	md.lastMotion = now
	md.Reset()
	if md.Active() {
		t.Error("Reset() should clear motion history")
	}
}

func TestMotionDetector_SetThreshold(t *testing.T) {
	md := NewMotionDetector(1)
	defer md.Close()

	for _, v := range []float64{5, 0, -1} {
		md.SetThreshold(v)
	}
	if md.threshold != 5 {
		t.Errorf("threshold = %f, want 5 (non-positive values ignored)", md.threshold)
	}

	md.Close()
	md.Close()
}
