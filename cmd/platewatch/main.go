// Command platewatch watches a parking gate camera, reads license plates and
// reports every accepted plate to the configured sinks.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/platewatch/internal/app"
	"github.com/ayusman/platewatch/internal/capture"
	"github.com/ayusman/platewatch/internal/config"
	"github.com/ayusman/platewatch/internal/detector"
	"github.com/ayusman/platewatch/internal/logging"
	"github.com/ayusman/platewatch/internal/notify"
	"github.com/ayusman/platewatch/internal/ocr"
	"github.com/ayusman/platewatch/internal/plugin"
	"github.com/ayusman/platewatch/internal/server"
	"github.com/ayusman/platewatch/internal/store"
	"github.com/ayusman/platewatch/internal/tray"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log := logging.New(logging.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		Env:   cfg.AppEnv,
	})
	log.WithFields(logrus.Fields{
		"mode":       cfg.Mode,
		"detector":   cfg.Detector,
		"classifier": cfg.Classifier,
	}).Info("starting platewatch")

	classifier, err := newClassifier(cfg)
	if err != nil {
		log.WithError(err).Fatal("loading character classifier")
	}

	det, err := newDetector(cfg)
	if err != nil {
		log.WithError(err).Fatal("loading plate detector")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.WithError(err).Fatal("creating data directory")
		}
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.WithError(err).Fatal("opening plate log")
	}
	defer st.Close()

	sinks := newSinks(cfg, log)

	var source capture.Camera
	if cfg.FromFile() {
		source = capture.NewFileSource(cfg.VideoSource)
	} else {
		source = capture.NewCamera(cfg.CameraID)
	}
	var driverCam capture.Camera
	if cfg.DriverCameraID >= 0 && cfg.Mode == config.ModeIn {
		driverCam = capture.NewCamera(cfg.DriverCameraID)
	}

	hub := server.NewHub(log.WithField("component", "ws"))
	frames := &server.FrameBuffer{}

	a, err := app.New(app.Config{
		Mode:            cfg.Mode,
		Confidence:      cfg.Confidence,
		ConsensusCount:  cfg.ConsensusCount,
		Workers:         cfg.Workers,
		MotionThreshold: cfg.MotionThreshold,
		Camera:          source,
		DriverCamera:    driverCam,
		Detector:        det,
		Classifier:      classifier,
		Store:           st,
		Sinks:           sinks,
		Hub:             hub,
		Frames:          frames,
		Logger:          log,
	})
	if err != nil {
		log.WithError(err).Fatal("creating pipeline")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// The end of a file source ends the process.
		defer stop()
		return a.Run(gctx)
	})

	if cfg.HTTPAddr != "" {
		srv := server.New(server.Config{
			StaticDir: cfg.WebDir,
			Store:     st,
			Frames:    frames,
			Hub:       hub,
			Switch:    a,
			Status:    func() interface{} { return a.Status() },
			Logger:    log.WithField("component", "http"),
		})
		g.Go(func() error {
			return srv.Run(gctx, cfg.HTTPAddr)
		})
	}

	if cfg.Tray {
		runTray(gctx, stop, a, cfg, log)
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Error("platewatch stopped with error")
		os.Exit(1)
	}
	log.Info("platewatch stopped")
}

// runTray shows the tray icon on the main goroutine until ctx is done or the
// user quits.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, cfg *config.Config, log logrus.FieldLogger) {
	t := tray.New(a.Enabled())
	t.OnToggle(a.SetEnabled)
	t.OnQuit(stop)
	t.OnDashboard(func() {
		if err := tray.OpenBrowser(dashboardURL(cfg.HTTPAddr)); err != nil {
			log.WithError(err).Warn("opening dashboard")
		}
	})
	a.OnPlate(func(p *store.Plate) { t.SetLastPlate(p.Number, p.Mode) })

	go func() {
		<-ctx.Done()
		t.Quit()
	}()
	t.Run()
	stop()
}

func dashboardURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	return "http://" + addr + "/"
}

func newClassifier(cfg *config.Config) (ocr.Classifier, error) {
	if cfg.Classifier == config.ClassifierTesseract {
		return ocr.NewTesseractClassifier()
	}
	return ocr.LoadKNNClassifier(cfg.ClassificationsPath, cfg.FlattenedImagesPath)
}

func newDetector(cfg *config.Config) (detector.Detector, error) {
	dcfg := detector.DefaultConfig()
	dcfg.MinConfidence = cfg.Confidence
	dcfg.ModelPath = cfg.DetectorModel
	dcfg.ConfigPath = cfg.DetectorConfig
	dcfg.ScriptPath = cfg.DetectorScript

	switch cfg.Detector {
	case config.DetectorService:
		return detector.NewServiceDetector(dcfg)
	case config.DetectorNone:
		return detector.NewFullFrameDetector(), nil
	default:
		return detector.NewDNNDetector(dcfg)
	}
}

// newSinks builds every configured notification sink. A sink that cannot be
// set up is logged and left out.
func newSinks(cfg *config.Config, log *logrus.Logger) []notify.Sink {
	var sinks []notify.Sink

	if cfg.BackendURL != "" {
		sinks = append(sinks, notify.NewHTTPSink(cfg.BackendURL, cfg.Mode))
	}

	if cfg.S3Bucket != "" {
		s3, err := notify.NewS3Sink(cfg.S3Bucket, cfg.AWSRegion)
		if err != nil {
			log.WithError(err).Warn("s3 sink disabled")
		} else {
			sinks = append(sinks, s3)
		}
	}

	if cfg.RedisAddress != "" {
		sinks = append(sinks, notify.NewRedisSink(notify.RedisOptions{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Channel:  cfg.RedisChannel,
		}, log))
	}

	if cfg.MQTTBroker != "" {
		mq, err := notify.NewMQTTSink(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err != nil {
			log.WithError(err).Warn("mqtt sink disabled")
		} else {
			sinks = append(sinks, mq)
		}
	}

	if cfg.PluginDir != "" {
		manager := plugin.NewManager(cfg.PluginDir, log.WithField("component", "plugins"))
		if err := manager.Discover(); err != nil {
			log.WithError(err).Warn("plugin discovery failed")
		} else if n := len(manager.Subscribers(plugin.EventPlateAccepted)); n > 0 {
			log.WithField("plugins", n).Info("plugins subscribed to accepted plates")
			sinks = append(sinks, notify.NewPluginSink(manager, plugin.NewExecutor(plugin.DefaultTimeout)))
		}
	}

	if len(sinks) == 0 {
		log.Warn("no notification sinks configured; plates are only logged and stored")
	}
	return sinks
}
