// Package config loads platewatch settings from an optional .env file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Modes of the gate the camera is watching.
const (
	ModeIn  = "in"
	ModeOut = "out"
)

// Detector and classifier backends.
const (
	DetectorDNN     = "dnn"
	DetectorService = "service"
	DetectorNone    = "none"

	ClassifierKNN       = "knn"
	ClassifierTesseract = "tesseract"
)

// Config holds every runtime setting.
type Config struct {
	// Video
	VideoSource    string
	CameraID       int    `validate:"gte=0"`
	DriverCameraID int    `validate:"gte=-1"`
	Mode           string `validate:"oneof=in out"`

	// Detection
	Detector        string  `validate:"oneof=dnn service none"`
	DetectorModel   string  `validate:"required_if=Detector dnn"`
	DetectorConfig  string
	DetectorScript  string  `validate:"required_if=Detector service"`
	Confidence      float64 `validate:"gt=0,lt=1"`
	MotionThreshold float64 `validate:"gte=0"`

	// Recognition
	Classifier          string `validate:"oneof=knn tesseract"`
	ClassificationsPath string `validate:"required_if=Classifier knn"`
	FlattenedImagesPath string `validate:"required_if=Classifier knn"`
	ConsensusCount      int    `validate:"min=1"`
	Workers             int    `validate:"min=1,max=16"`

	// Storage and surfaces
	DBPath    string `validate:"required"`
	HTTPAddr  string
	WebDir    string
	PluginDir string
	Tray      bool

	// Notification sinks, each optional
	BackendURL    string `validate:"omitempty,url"`
	S3Bucket      string
	AWSRegion     string `validate:"required_with=S3Bucket"`
	RedisAddress  string
	RedisPassword string
	RedisDB       int    `validate:"gte=0"`
	RedisChannel  string
	MQTTBroker    string `validate:"omitempty,url"`
	MQTTTopic     string
	MQTTClientID  string

	// Logging
	LogLevel string
	LogFile  string
	AppEnv   string
}

// Load reads the configuration. args are the command-line arguments without
// the program name. A missing .env file is not an error.
func Load(args []string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &Config{
		VideoSource:    getEnv("VIDEO_SOURCE", ""),
		CameraID:       getEnvInt("CAMERA_ID", 0),
		DriverCameraID: getEnvInt("DRIVER_CAMERA_ID", -1),
		Mode:           getEnv("MODE", ModeIn),

		Detector:        getEnv("DETECTOR", DetectorDNN),
		DetectorModel:   getEnv("DETECTOR_MODEL", "models/plate.weights"),
		DetectorConfig:  getEnv("DETECTOR_CONFIG", "models/plate.cfg"),
		DetectorScript:  getEnv("DETECTOR_SCRIPT", "scripts/plate_detector.py"),
		Confidence:      getEnvFloat("CONFIDENCE", 0.3),
		MotionThreshold: getEnvFloat("MOTION_THRESHOLD", 1.0),

		Classifier:          getEnv("CLASSIFIER", ClassifierKNN),
		ClassificationsPath: getEnv("CLASSIFICATIONS_PATH", "classifications.txt"),
		FlattenedImagesPath: getEnv("FLATTENED_IMAGES_PATH", "flattened_images.txt"),
		ConsensusCount:      getEnvInt("CONSENSUS_COUNT", 3),
		Workers:             getEnvInt("WORKERS", 2),

		DBPath:    getEnv("DB_PATH", "platewatch.db"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		WebDir:    getEnv("WEB_DIR", ""),
		PluginDir: getEnv("PLUGIN_DIR", "plugins"),
		Tray:      getEnvBool("TRAY", false),

		BackendURL:    getEnv("BACKEND_URL", ""),
		S3Bucket:      getEnv("S3_BUCKET", ""),
		AWSRegion:     getEnv("AWS_REGION", ""),
		RedisAddress:  getEnv("REDIS_ADDRESS", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		RedisChannel:  getEnv("REDIS_CHANNEL", "platewatch:plates"),
		MQTTBroker:    getEnv("MQTT_BROKER", ""),
		MQTTTopic:     getEnv("MQTT_TOPIC", "platewatch/plates"),
		MQTTClientID:  getEnv("MQTT_CLIENT_ID", "platewatch"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
		AppEnv:   getEnv("APP_ENV", "development"),
	}

	fset := flag.NewFlagSet("platewatch", flag.ContinueOnError)
	fset.StringVar(&cfg.VideoSource, "video", cfg.VideoSource, "video file or stream URL (default: camera)")
	fset.StringVar(&cfg.Mode, "mode", cfg.Mode, "gate mode: in or out")
	fset.IntVar(&cfg.CameraID, "camera", cfg.CameraID, "camera device index")
	fset.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address, empty to disable")
	fset.BoolVar(&cfg.Tray, "tray", cfg.Tray, "show the system tray icon")
	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the struct tags.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// FromFile reports whether frames come from a video file or stream rather
// than a camera device.
func (c *Config) FromFile() bool {
	return c.VideoSource != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	v, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return fallback
	}
	return v
}
