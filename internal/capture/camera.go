// Package capture reads gate video from a camera device or a video file or
// network stream using GoCV (OpenCV).
package capture

import (
	"errors"
	"fmt"
	"sync"

	"gocv.io/x/gocv"
)

// Capture settings for camera devices. Files and streams keep their own
// geometry.
const (
	DefaultFPS    = 5
	DefaultWidth  = 640
	DefaultHeight = 480
)

var (
	// ErrCameraNotOpen is returned by ReadFrame before Open.
	ErrCameraNotOpen = errors.New("camera is not open")
	// ErrEndOfStream is returned once a video file has no frames left.
	ErrEndOfStream = errors.New("end of video stream")
)

// Camera is a source of BGR frames. ReadFrame hands ownership of the Mat
// to the caller.
type Camera interface {
	Open() error
	Close() error
	ReadFrame() (*gocv.Mat, error)
	SetFPS(fps int)
	FPS() int
	IsOpen() bool
}

// source is a Camera backed by gocv.VideoCapture. A device source retries
// nothing; a read failure is reported and the caller decides.
type source struct {
	device int
	path   string

	mu  sync.Mutex
	vc  *gocv.VideoCapture
	fps int
}

// NewCamera returns the camera with the given device index.
func NewCamera(deviceID int) Camera {
	return &source{device: deviceID, fps: DefaultFPS}
}

// NewFileSource returns a source playing the video file or stream URL at
// path. Reading past the last frame returns ErrEndOfStream.
func NewFileSource(path string) Camera {
	return &source{path: path, fps: DefaultFPS}
}

func (s *source) isFile() bool { return s.path != "" }

func (s *source) String() string {
	if s.isFile() {
		return s.path
	}
	return fmt.Sprintf("camera %d", s.device)
}

// Open starts capturing. Opening an open source is a no-op.
func (s *source) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc != nil {
		return nil
	}

	var (
		vc  *gocv.VideoCapture
		err error
	)
	if s.isFile() {
		vc, err = gocv.VideoCaptureFile(s.path)
	} else {
		vc, err = gocv.VideoCaptureDevice(s.device)
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", s, err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return fmt.Errorf("open %s: source not available", s)
	}

	if !s.isFile() {
		vc.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
		vc.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)
		vc.Set(gocv.VideoCaptureFPS, float64(s.fps))
	}
	s.vc = vc
	return nil
}

// Close releases the capture. Closing a closed source returns nil.
func (s *source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil
	}
	err := s.vc.Close()
	s.vc = nil
	return err
}

// ReadFrame grabs the next frame. A file reports a failed or empty read as
// ErrEndOfStream.
func (s *source) ReadFrame() (*gocv.Mat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.vc == nil {
		return nil, ErrCameraNotOpen
	}

	mat := gocv.NewMat()
	if ok := s.vc.Read(&mat); !ok || mat.Empty() {
		mat.Close()
		if s.isFile() {
			return nil, ErrEndOfStream
		}
		return nil, fmt.Errorf("read %s: empty frame", s)
	}
	return &mat, nil
}

// SetFPS changes the capture rate. Non-positive values are ignored. A file
// plays at whatever rate it is polled, so only devices are retuned.
func (s *source) SetFPS(fps int) {
	if fps <= 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.fps = fps
	if s.vc != nil && !s.isFile() {
		s.vc.Set(gocv.VideoCaptureFPS, float64(fps))
	}
}

func (s *source) FPS() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fps
}

func (s *source) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vc != nil
}
