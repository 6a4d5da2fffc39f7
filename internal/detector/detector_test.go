package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"testing"

	"gocv.io/x/gocv"
)

func TestMockDetector(t *testing.T) {
	t.Run("returns empty detections by default", func(t *testing.T) {
		mock := NewMockDetector()

		dets, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if dets != nil {
			t.Errorf("expected nil detections, got %v", dets)
		}
	})

	t.Run("returns configured detections", func(t *testing.T) {
		mock := NewMockDetector()
		mock.SetDetections([]Detection{
			PlateDetection(image.Rect(10, 10, 110, 50), 0.9),
			PlateDetection(image.Rect(200, 10, 300, 50), 0.4),
		})

		dets, err := mock.Detect(nil)

		if err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if len(dets) != 2 {
			t.Errorf("expected 2 detections, got %d", len(dets))
		}
		if mock.Calls() != 1 {
			t.Errorf("expected 1 call, got %d", mock.Calls())
		}
	})

	t.Run("returns configured error", func(t *testing.T) {
		mock := NewMockDetector()

		expectedErr := errors.New("detection failed")
		mock.SetError(expectedErr)

		dets, err := mock.Detect(nil)

		if err != expectedErr {
			t.Errorf("expected error %v, got %v", expectedErr, err)
		}
		if dets != nil {
			t.Errorf("expected nil detections when error is set, got %v", dets)
		}
	})

	t.Run("implements Detector interface", func(t *testing.T) {
		var _ Detector = (*MockDetector)(nil)
		var _ Detector = (*ServiceDetector)(nil)
		var _ Detector = (*DNNDetector)(nil)
	})
}

func TestAboveAndBest(t *testing.T) {
	dets := []Detection{
		PlateDetection(image.Rect(0, 0, 10, 10), 0.3),
		PlateDetection(image.Rect(0, 0, 20, 20), 0.5),
		PlateDetection(image.Rect(0, 0, 30, 30), 0.9),
		PlateDetection(image.Rect(0, 0, 40, 40), 0.1),
	}

	above := Above(dets, 0.3)
	if len(above) != 2 {
		t.Fatalf("Above() returned %d detections, want 2 (threshold is exclusive)", len(above))
	}
	if above[0].Confidence != 0.9 || above[1].Confidence != 0.5 {
		t.Errorf("Above() order = %v, want most confident first", above)
	}

	best, ok := Best(dets, 0.3)
	if !ok || best.Confidence != 0.9 {
		t.Errorf("Best() = %v, %v, want 0.9 detection", best, ok)
	}

	if _, ok := Best(dets, 0.95); ok {
		t.Error("Best() above 0.95 should find nothing")
	}
}

func TestDetection_Clip(t *testing.T) {
	tests := []struct {
		name string
		rect image.Rectangle
		want image.Rectangle
	}{
		{name: "inside", rect: image.Rect(10, 10, 50, 30), want: image.Rect(10, 10, 50, 30)},
		{name: "overlaps right edge", rect: image.Rect(600, 10, 700, 30), want: image.Rect(600, 10, 640, 30)},
		{name: "negative origin", rect: image.Rect(-20, -5, 30, 30), want: image.Rect(0, 0, 30, 30)},
		{name: "outside", rect: image.Rect(700, 500, 800, 600), want: image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlateDetection(tt.rect, 1).Clip(640, 480)
			if got != tt.want {
				t.Errorf("Clip() = %v, want %v", got, tt.want)
			}
		})
	}
}

// TestHelperProcess is not a real test. It is started as a child process by
// the service detector tests and speaks the detection service protocol.
func TestHelperProcess(t *testing.T) {
	if os.Getenv("PLATEWATCH_HELPER_PROCESS") != "1" {
		return
	}

	length := make([]byte, 4)
	for {
		if _, err := io.ReadFull(os.Stdin, length); err != nil {
			os.Exit(0)
		}
		frame := make([]byte, binary.BigEndian.Uint32(length))
		if _, err := io.ReadFull(os.Stdin, frame); err != nil {
			os.Exit(1)
		}

		switch string(frame) {
		case "fail":
			fmt.Println(`{"error":"model exploded"}`)
		default:
			fmt.Println(`{"detections":[` +
				`{"x":10,"y":20,"width":120,"height":40,"confidence":0.9},` +
				`{"x":300,"y":20,"width":100,"height":30,"confidence":0.2,"label":"plate"}]}`)
		}
	}
}

func newHelperDetector(t *testing.T) *ServiceDetector {
	t.Helper()
	t.Setenv("PLATEWATCH_HELPER_PROCESS", "1")

	d := NewServiceDetectorCommand(DefaultConfig(), os.Args[0], "-test.run=TestHelperProcess", "--")
	t.Cleanup(func() { d.Close() })
	return d
}

func TestServiceDetector_Exchange(t *testing.T) {
	d := newHelperDetector(t)

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		t.Fatalf("ensureStarted() error = %v", err)
	}

	dets, err := d.exchange([]byte("jpeg"))
	if err != nil {
		t.Fatalf("exchange() error = %v", err)
	}

	if len(dets) != 1 {
		t.Fatalf("got %d detections, want 1 (low confidence dropped)", len(dets))
	}
	if dets[0].Rect != image.Rect(10, 20, 130, 60) {
		t.Errorf("Rect = %v, want (10,20)-(130,60)", dets[0].Rect)
	}
	if dets[0].Label != LabelPlate {
		t.Errorf("Label = %q, want default %q", dets[0].Label, LabelPlate)
	}

	if _, err := d.exchange([]byte("fail")); err == nil {
		t.Error("exchange() expected service error")
	}
}

func TestServiceDetector_Restart(t *testing.T) {
	d := newHelperDetector(t)

	d.mu.Lock()
	defer d.mu.Unlock()

	for i := 0; i < 2; i++ {
		if err := d.ensureStarted(); err != nil {
			t.Fatalf("ensureStarted() #%d error = %v", i, err)
		}
		if _, err := d.exchange([]byte("jpeg")); err != nil {
			t.Fatalf("exchange() #%d error = %v", i, err)
		}
		if err := d.shutdown(); err != nil {
			t.Fatalf("shutdown() #%d error = %v", i, err)
		}
	}
}

func TestNewServiceDetector_MissingScript(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ScriptPath = "does/not/exist.py"

	if _, err := NewServiceDetector(cfg); err == nil {
		t.Error("NewServiceDetector() expected error for missing script")
	}
}

func TestParseYOLO(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping gocv test in short mode")
	}

	out := gocv.NewMatWithSize(2, 6, gocv.MatTypeCV32F)
	defer out.Close()

	// Row 0: centered box, confident.
	for c, v := range []float32{0.5, 0.5, 0.25, 0.1, 0.95, 0.8} {
		out.SetFloatAt(0, c, v)
	}
	// Row 1: below threshold.
	for c, v := range []float32{0.2, 0.2, 0.1, 0.1, 0.5, 0.1} {
		out.SetFloatAt(1, c, v)
	}

	dets := parseYOLO(out, 640, 480, 0.3)
	if len(dets) != 1 {
		t.Fatalf("parseYOLO() returned %d detections, want 1", len(dets))
	}

	want := image.Rect(240, 216, 400, 264)
	if dets[0].Rect != want {
		t.Errorf("Rect = %v, want %v", dets[0].Rect, want)
	}
	if dets[0].Confidence < 0.79 || dets[0].Confidence > 0.81 {
		t.Errorf("Confidence = %v, want 0.8", dets[0].Confidence)
	}
}

func TestNewDNNDetector_MissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "does/not/exist.weights"
	cfg.ConfigPath = "does/not/exist.cfg"

	if _, err := NewDNNDetector(cfg); !errors.Is(err, ErrModelNotLoaded) {
		t.Errorf("NewDNNDetector() error = %v, want ErrModelNotLoaded", err)
	}
}

func TestFullFrameDetector(t *testing.T) {
	d := NewFullFrameDetector()
	defer d.Close()

	dets, err := d.Detect(nil)
	if err != nil || dets != nil {
		t.Fatalf("Detect(nil) = %v, %v; want nil, nil", dets, err)
	}

	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	dets, err = d.Detect(&frame)
	if err != nil {
		t.Fatalf("Detect() error = %v", err)
	}
	if len(dets) != 1 {
		t.Fatalf("len(dets) = %d, want 1", len(dets))
	}
	if dets[0].Rect != image.Rect(0, 0, 320, 240) || dets[0].Confidence != 1.0 || dets[0].Label != LabelPlate {
		t.Errorf("detection = %+v", dets[0])
	}
}
