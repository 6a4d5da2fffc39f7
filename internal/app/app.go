// Package app wires the platewatch pipeline together: video source, motion
// polling, plate detection, the recognition dispatcher, the plate log and
// the notification sinks.
package app

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/platewatch/internal/capture"
	"github.com/ayusman/platewatch/internal/consensus"
	"github.com/ayusman/platewatch/internal/detector"
	"github.com/ayusman/platewatch/internal/grammar"
	"github.com/ayusman/platewatch/internal/notify"
	"github.com/ayusman/platewatch/internal/ocr"
	"github.com/ayusman/platewatch/internal/server"
	"github.com/ayusman/platewatch/internal/store"
)

// acceptQueueSize bounds the accepted plates waiting to be recorded.
const acceptQueueSize = 8

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("app: already run")

// Config holds everything the pipeline needs. Camera, Detector, Classifier
// and Store are required.
type Config struct {
	Mode            string
	Confidence      float64
	ConsensusCount  int
	Workers         int
	MotionThreshold float64

	Camera capture.Camera
	// DriverCamera, when set and Mode is "in", supplies the driver photo.
	DriverCamera capture.Camera
	Detector     detector.Detector
	Classifier   ocr.Classifier
	Store        *store.Store
	Sinks        []notify.Sink

	// Hub and Frames are optional.
	Hub    *server.Hub
	Frames *server.FrameBuffer

	Logger logrus.FieldLogger
}

// recognizeFunc reads a plate number from a region of interest.
type recognizeFunc func(roi *roiTask, lastAccepted string) (grammar.Guess, bool, error)

// App is the running plate recognition system.
type App struct {
	config     Config
	log        logrus.FieldLogger
	motion     *capture.MotionDetector
	reader     *ocr.Reader
	dispatcher *consensus.Dispatcher
	fanout     *notify.Fanout
	recognize  recognizeFunc

	enabled  atomic.Bool
	frames   atomic.Uint64
	accepted chan acceptedPlate
	ran      atomic.Bool

	mu        sync.RWMutex
	lastPlate *store.Plate
	onPlate   func(*store.Plate)
}

// acceptedPlate is an acceptance with its plate photo already encoded, so
// the dispatcher's ROI can be released.
type acceptedPlate struct {
	consensus.Acceptance
	photo []byte
}

// New creates the application. Recognition starts enabled unless the store
// says otherwise.
func New(config Config) (*App, error) {
	switch {
	case config.Camera == nil:
		return nil, errors.New("app: no video source")
	case config.Detector == nil:
		return nil, errors.New("app: no detector")
	case config.Classifier == nil:
		return nil, errors.New("app: no classifier")
	case config.Store == nil:
		return nil, errors.New("app: no store")
	}
	if config.Confidence <= 0 {
		config.Confidence = detector.DefaultConfig().MinConfidence
	}
	if config.MotionThreshold <= 0 {
		config.MotionThreshold = 1.0
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	a := &App{
		config:   config,
		log:      config.Logger.WithField("component", "app"),
		motion:   capture.NewMotionDetector(config.MotionThreshold),
		reader:   ocr.NewReader(config.Classifier),
		accepted: make(chan acceptedPlate, acceptQueueSize),
	}
	a.recognize = a.readPlate
	a.enabled.Store(config.Store.Settings().Bool(store.SettingRecognitionEnabled, true))

	a.dispatcher = consensus.NewDispatcher(consensus.Config{
		Workers:   config.Workers,
		Threshold: config.ConsensusCount,
		OnAccept:  a.handleAcceptance,
		Logger:    config.Logger,
	})

	for _, sink := range config.Sinks {
		if s3, ok := sink.(*notify.S3Sink); ok {
			s3.OnUpload(a.recordSnapshotURL)
		}
	}
	a.fanout = notify.NewFanout(config.Sinks, notify.FanoutConfig{
		Logger:   config.Logger.WithField("component", "notify"),
		OnResult: a.recordDelivery,
	})

	return a, nil
}

// Enabled reports whether detections are being recognized.
func (a *App) Enabled() bool {
	return a.enabled.Load()
}

// SetEnabled turns recognition on or off, persists the choice and tells
// connected clients.
func (a *App) SetEnabled(enabled bool) {
	if a.enabled.Swap(enabled) == enabled {
		return
	}
	if err := a.config.Store.Settings().SetBool(store.SettingRecognitionEnabled, enabled); err != nil {
		a.log.WithError(err).Warn("persisting recognition switch")
	}
	a.log.WithField("enabled", enabled).Info("recognition toggled")
	if a.config.Hub != nil {
		a.config.Hub.Broadcast(server.EventRecognition, map[string]bool{"enabled": enabled})
	}
}

// OnPlate registers fn to be called with every recorded plate.
func (a *App) OnPlate(fn func(*store.Plate)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onPlate = fn
}

// LastPlate returns the plate recorded most recently by this process.
func (a *App) LastPlate() *store.Plate {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.lastPlate
}

// Status is the body of GET /api/status.
type Status struct {
	Enabled       bool             `json:"enabled"`
	Mode          string           `json:"mode"`
	MotionActive  bool             `json:"motion_active"`
	PollFPS       int              `json:"poll_fps"`
	Frames        uint64           `json:"frames"`
	Recognition   consensus.Status `json:"recognition"`
	Sinks         []string         `json:"sinks"`
	NotifyDropped uint64           `json:"notify_dropped"`
}

// Status returns a snapshot of the pipeline.
func (a *App) Status() Status {
	return Status{
		Enabled:       a.Enabled(),
		Mode:          a.config.Mode,
		MotionActive:  a.motion.Active(),
		PollFPS:       a.motion.PollFPS(),
		Frames:        a.frames.Load(),
		Recognition:   a.dispatcher.Status(),
		Sinks:         a.fanout.Sinks(),
		NotifyDropped: a.fanout.Dropped(),
	}
}

// Run starts the pipeline and blocks until ctx is done, the video source
// ends or a component fails. Jobs in flight are finished and their plates
// recorded and delivered before Run returns.
func (a *App) Run(ctx context.Context) error {
	if !a.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	defer a.release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The fanout outlives the recorder so that late plates still go out.
	fanoutCtx, stopFanout := context.WithCancel(context.Background())
	defer stopFanout()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.fanout.Run(fanoutCtx)
	})
	g.Go(func() error {
		err := a.dispatcher.Run(gctx)
		close(a.accepted)
		return err
	})
	g.Go(func() error {
		defer stopFanout()
		for p := range a.accepted {
			a.record(p)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return a.capture(gctx)
	})

	a.log.WithFields(logrus.Fields{
		"mode":       a.config.Mode,
		"confidence": a.config.Confidence,
		"sinks":      a.fanout.Sinks(),
	}).Info("pipeline started")

	err := g.Wait()
	a.log.Info("pipeline stopped")
	return err
}

func (a *App) release() {
	a.closeDriverCamera()
	a.motion.Close()
	if err := a.config.Detector.Close(); err != nil {
		a.log.WithError(err).Warn("closing detector")
	}
	if err := a.config.Classifier.Close(); err != nil {
		a.log.WithError(err).Warn("closing classifier")
	}
}

// handleAcceptance runs on the dispatcher's completion goroutine, so it only
// encodes the plate photo and queues the rest.
func (a *App) handleAcceptance(acc consensus.Acceptance) {
	p := acceptedPlate{Acceptance: acc}
	if roi, ok := acc.Task.(*roiTask); ok {
		photo, err := encodeJPEG(roi.image)
		if err != nil {
			a.log.WithError(err).Warn("encoding plate photo")
		}
		p.photo = photo
	}

	select {
	case a.accepted <- p:
	default:
		a.log.WithField("number", acc.Number).Warn("accepted plate queue full, dropping plate")
	}
}

// record stores an accepted plate, tells clients and hands it to the sinks.
func (a *App) record(p acceptedPlate) {
	log := a.log.WithFields(logrus.Fields{
		"job_id": p.JobID,
		"number": p.Number,
	})

	plate := &store.Plate{
		Number:    p.Number,
		Mode:      a.config.Mode,
		Regions:   p.Guess.Regions,
		Snapshot:  p.photo,
		CreatedAt: p.AcceptedAt.UTC(),
	}
	if err := a.config.Store.Plates().Create(plate); err != nil {
		log.WithError(err).Error("recording plate")
		return
	}
	log.WithField("plate_id", plate.ID).Info("plate recorded")

	a.mu.Lock()
	a.lastPlate = plate
	onPlate := a.onPlate
	a.mu.Unlock()
	if onPlate != nil {
		onPlate(plate)
	}

	if a.config.Hub != nil {
		a.config.Hub.Broadcast(server.EventPlateAccepted, plate)
	}

	a.fanout.Publish(notify.Event{
		PlateID:     plate.ID,
		Number:      plate.Number,
		Mode:        plate.Mode,
		Regions:     plate.Regions,
		AcceptedAt:  plate.CreatedAt,
		PlatePhoto:  plate.Snapshot,
		DriverPhoto: a.driverPhoto(),
	})
}

func (a *App) recordDelivery(r notify.Result) {
	d := &store.Delivery{
		PlateID: r.Event.PlateID,
		Sink:    r.Sink,
		OK:      r.Err == nil,
	}
	if r.Err != nil {
		d.Error = r.Err.Error()
	}
	if err := a.config.Store.Deliveries().Record(d); err != nil {
		a.log.WithError(err).WithField("plate_id", r.Event.PlateID).Warn("recording delivery")
	}
}

func (a *App) recordSnapshotURL(ev notify.Event, location string) {
	if err := a.config.Store.Plates().SetSnapshotURL(ev.PlateID, location); err != nil {
		a.log.WithError(err).WithField("plate_id", ev.PlateID).Warn("recording snapshot url")
	}
}

// driverPhoto grabs one frame from the driver camera, a quarter of its size.
// It returns nil in "out" mode or when no driver camera is configured.
func (a *App) driverPhoto() []byte {
	cam := a.config.DriverCamera
	if cam == nil || a.config.Mode != "in" {
		return nil
	}

	if !cam.IsOpen() {
		if err := cam.Open(); err != nil {
			a.log.WithError(err).Warn("opening driver camera")
			return nil
		}
	}

	frame, err := cam.ReadFrame()
	if err != nil {
		a.log.WithError(err).Warn("reading driver camera")
		return nil
	}
	defer frame.Close()

	photo, err := encodeScaledJPEG(*frame, DriverPhotoScale)
	if err != nil {
		a.log.WithError(err).Warn("encoding driver photo")
		return nil
	}
	return photo
}

// Dispatcher exposes the recognition dispatcher.
func (a *App) Dispatcher() *consensus.Dispatcher {
	return a.dispatcher
}

// closeDriverCamera releases the driver camera if it was opened.
func (a *App) closeDriverCamera() {
	if cam := a.config.DriverCamera; cam != nil && cam.IsOpen() {
		if err := cam.Close(); err != nil {
			a.log.WithError(err).Warn("closing driver camera")
		}
	}
}
