package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"github.com/ayusman/platewatch/internal/capture"
	"github.com/ayusman/platewatch/internal/consensus"
	"github.com/ayusman/platewatch/internal/detector"
	"github.com/ayusman/platewatch/internal/grammar"
	"github.com/ayusman/platewatch/internal/plate"
)

// Image scales applied before recognition and to the driver photo.
const (
	ROIScale         = 0.5
	DriverPhotoScale = 0.25
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	bestColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}
)

// capture is the main loop. It polls the video source at the rate chosen by
// the motion detector and runs the detector on every frame.
//
// Each tick:
//  1. read a frame; the end of a file source stops the loop
//  2. update motion and retune the poll rate
//  3. detect plates and submit the best one above the confidence threshold
//  4. draw the detections and publish the frame to the MJPEG stream
func (a *App) capture(ctx context.Context) error {
	cam := a.config.Camera
	if err := cam.Open(); err != nil {
		return fmt.Errorf("open video source: %w", err)
	}
	defer func() {
		if err := cam.Close(); err != nil {
			a.log.WithError(err).Warn("closing video source")
		}
	}()

	fps := a.motion.PollFPS()
	cam.SetFPS(fps)
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		frame, err := cam.ReadFrame()
		if errors.Is(err, capture.ErrEndOfStream) {
			a.log.WithField("frames", a.frames.Load()).Info("video source ended")
			return nil
		}
		if err != nil {
			a.log.WithError(err).Warn("reading frame")
			continue
		}
		a.frames.Add(1)

		a.motion.Detect(frame)
		if next := a.motion.PollFPS(); next != fps {
			fps = next
			cam.SetFPS(fps)
			ticker.Reset(time.Second / time.Duration(fps))
			a.log.WithField("fps", fps).Debug("poll rate changed")
		}

		a.processFrame(frame)
		frame.Close()
	}
}

func (a *App) processFrame(frame *gocv.Mat) {
	var dets []detector.Detection
	if a.Enabled() {
		var err error
		dets, err = a.config.Detector.Detect(frame)
		if err != nil {
			a.log.WithError(err).Warn("detecting plates")
		}
	}

	best, found := detector.Best(dets, a.config.Confidence)
	if found {
		a.submit(frame, best)
	}

	if a.config.Frames != nil {
		drawDetections(frame, dets, best, found)
		jpeg, err := encodeJPEG(*frame)
		if err != nil {
			a.log.WithError(err).Debug("encoding stream frame")
			return
		}
		a.config.Frames.Store(jpeg)
	}
}

// submit hands the detection to the dispatcher. The region is cropped out
// of the frame only when the dispatcher is free to take it.
func (a *App) submit(frame *gocv.Mat, det detector.Detection) {
	rect := det.Clip(frame.Cols(), frame.Rows())
	if rect.Empty() {
		return
	}

	accepted, err := a.dispatcher.Offer(func() (consensus.Task, error) {
		task, err := newROITask(*frame, rect, a.recognize)
		if err != nil {
			return nil, err
		}
		return task, nil
	})
	switch {
	case errors.Is(err, consensus.ErrDispatcherClosed):
		a.log.WithError(err).Debug("submitting recognition job")
		return
	case err != nil:
		a.log.WithError(err).Warn("preparing region of interest")
		return
	}
	if accepted {
		a.log.WithFields(logrus.Fields{
			"confidence": det.Confidence,
			"rect":       rect.String(),
		}).Debug("recognition job submitted")
	}
}

// roiTask is a recognition job over one detected region. It owns image.
type roiTask struct {
	image     gocv.Mat
	rect      image.Rectangle
	recognize recognizeFunc
}

// newROITask copies rect out of frame, scaled by ROIScale.
func newROITask(frame gocv.Mat, rect image.Rectangle, recognize recognizeFunc) (*roiTask, error) {
	region := frame.Region(rect)
	defer region.Close()

	scaled := gocv.NewMat()
	gocv.Resize(region, &scaled, image.Point{}, ROIScale, ROIScale, gocv.InterpolationArea)
	if scaled.Empty() {
		scaled.Close()
		return nil, fmt.Errorf("region %v is too small", rect)
	}

	return &roiTask{image: scaled, rect: rect, recognize: recognize}, nil
}

// Run implements consensus.Task.
func (t *roiTask) Run(lastAccepted string) (grammar.Guess, bool, error) {
	return t.recognize(t, lastAccepted)
}

// Close implements consensus.Task.
func (t *roiTask) Close() error {
	return t.image.Close()
}

// readPlate runs the two reading passes over a region: plates are located
// and levelled, each plate is read, and the strings are aggregated into one
// plate number.
func (a *App) readPlate(t *roiTask, lastAccepted string) (grammar.Guess, bool, error) {
	plates, err := plate.Locate(t.image)
	if err != nil {
		return grammar.Guess{}, false, fmt.Errorf("locate plates: %w", err)
	}
	defer func() {
		for _, p := range plates {
			p.Close()
		}
	}()

	if len(plates) == 0 {
		return grammar.Guess{}, false, nil
	}

	strs, err := a.reader.Read(plates)
	if err != nil {
		return grammar.Guess{}, false, fmt.Errorf("read plates: %w", err)
	}

	guess, ok := grammar.Aggregate(strs, lastAccepted)
	return guess, ok, nil
}

// drawDetections outlines every detection, the submitted one in red.
func drawDetections(frame *gocv.Mat, dets []detector.Detection, best detector.Detection, found bool) {
	for _, d := range dets {
		c := boxColor
		if found && d == best {
			c = bestColor
		}
		rect := d.Clip(frame.Cols(), frame.Rows())
		if rect.Empty() {
			continue
		}
		gocv.Rectangle(frame, rect, c, 2)

		label := fmt.Sprintf("%s %.2f", d.Label, d.Confidence)
		org := image.Pt(rect.Min.X, max(rect.Min.Y-6, 12))
		gocv.PutText(frame, label, org, gocv.FontHersheySimplex, 0.5, c, 1)
	}
}

func encodeJPEG(img gocv.Mat) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		return nil, err
	}
	defer buf.Close()
	return bytes.Clone(buf.GetBytes()), nil
}

func encodeScaledJPEG(img gocv.Mat, scale float64) ([]byte, error) {
	if img.Empty() {
		return nil, errors.New("empty image")
	}
	scaled := gocv.NewMat()
	defer scaled.Close()
	gocv.Resize(img, &scaled, image.Point{}, scale, scale, gocv.InterpolationArea)
	return encodeJPEG(scaled)
}
