package detector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"image"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gocv.io/x/gocv"
)

// ServiceIdleTimeout is how long the detection service may sit unused
// before it is shut down. It is restarted on the next frame.
const ServiceIdleTimeout = 30 * time.Second

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ServiceDetector implements Detector using an external detection process.
//
// Each frame is written to the process stdin as a 4-byte big-endian length
// followed by JPEG bytes. The process answers with one JSON line:
//
//	{"detections":[{"x":10,"y":20,"width":120,"height":40,"confidence":0.9,"label":"plate"}]}
type ServiceDetector struct {
	config    Config
	command   []string
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    *bufio.Reader
	mu        sync.Mutex
	started   bool
	lastUsed  time.Time
	idleTimer *time.Timer
}

// NewServiceDetector creates a detector backed by the Python script at
// config.ScriptPath. The process is started lazily on first detection.
func NewServiceDetector(config Config) (*ServiceDetector, error) {
	scriptPath := findScript(config.ScriptPath)
	if scriptPath == "" {
		return nil, fmt.Errorf("%s not found", config.ScriptPath)
	}

	// Use virtual environment Python if available
	pythonPath := findVenvPython()
	if pythonPath == "" {
		pythonPath = "python3"
	}

	return NewServiceDetectorCommand(config, pythonPath, scriptPath), nil
}

// NewServiceDetectorCommand creates a detector that runs name with args as
// the detection service.
func NewServiceDetectorCommand(config Config, name string, args ...string) *ServiceDetector {
	return &ServiceDetector{
		config:  config,
		command: append([]string{name}, args...),
	}
}

// Detect analyzes a frame and returns detected plate regions above the
// configured confidence.
func (d *ServiceDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.ensureStarted(); err != nil {
		return nil, err
	}

	// Encode frame as JPEG
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	return d.exchange(buf.GetBytes())
}

// exchange sends one encoded frame and parses the reply. d.mu must be held.
func (d *ServiceDetector) exchange(data []byte) ([]Detection, error) {
	length := make([]byte, 4)
	binary.BigEndian.PutUint32(length, uint32(len(data)))

	if _, err := d.stdin.Write(length); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write length: %w", err)
	}
	if _, err := d.stdin.Write(data); err != nil {
		d.shutdown()
		return nil, fmt.Errorf("write data: %w", err)
	}

	line, err := d.stdout.ReadString('\n')
	if err != nil {
		d.shutdown()
		return nil, fmt.Errorf("read response: %w", err)
	}

	var response struct {
		Detections []jsonDetection `json:"detections"`
		Error      string          `json:"error"`
	}
	if err := json.Unmarshal([]byte(line), &response); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if response.Error != "" {
		return nil, fmt.Errorf("detection service: %s", response.Error)
	}

	result := make([]Detection, 0, len(response.Detections))
	for _, jd := range response.Detections {
		det := jd.toDetection()
		if det.Confidence > d.config.MinConfidence && !det.Rect.Empty() {
			result = append(result, det)
		}
	}

	d.lastUsed = time.Now()
	d.resetIdleTimer()

	return result, nil
}

// Close shuts down the service process.
func (d *ServiceDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.shutdown()
}

func (d *ServiceDetector) ensureStarted() error {
	if d.started {
		return nil
	}

	d.cmd = exec.Command(d.command[0], d.command[1:]...)

	stdin, err := d.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}

	stdout, err := d.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}

	// Capture stderr for debugging
	d.cmd.Stderr = os.Stderr

	if err := d.cmd.Start(); err != nil {
		return fmt.Errorf("start detection service: %w", err)
	}

	d.stdin = stdin
	d.stdout = bufio.NewReader(stdout)
	d.started = true
	d.lastUsed = time.Now()

	return nil
}

func (d *ServiceDetector) shutdown() error {
	if !d.started {
		return nil
	}

	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}

	if d.stdin != nil {
		d.stdin.Close()
	}

	err := d.cmd.Wait()
	d.started = false
	d.cmd = nil
	d.stdin = nil
	d.stdout = nil

	return err
}

func (d *ServiceDetector) resetIdleTimer() {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.idleTimer = time.AfterFunc(ServiceIdleTimeout, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.shutdown()
	})
}

func findScript(name string) string {
	if name == "" {
		return ""
	}
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name
		}
		return ""
	}

	execPath, err := os.Executable()
	var execDir string
	if err == nil {
		execDir = filepath.Dir(execPath)
	}

	candidates := []string{
		name,
		filepath.Join("..", name),
		filepath.Join(execDir, name),
		filepath.Join(os.Getenv("HOME"), ".platewatch", name),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// findVenvPython looks for a Python interpreter in a virtual environment.
func findVenvPython() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}
	execDir := filepath.Dir(execPath)

	candidates := []string{
		"venv/bin/python",
		"../venv/bin/python",
		filepath.Join(execDir, "venv/bin/python"),
		filepath.Join(os.Getenv("HOME"), ".platewatch/venv/bin/python"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			absPath, err := filepath.Abs(path)
			if err == nil {
				return absPath
			}
			return path
		}
	}
	return ""
}

// jsonDetection represents the JSON structure from the detection service.
type jsonDetection struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
	Label      string  `json:"label"`
}

func (j jsonDetection) toDetection() Detection {
	label := j.Label
	if label == "" {
		label = LabelPlate
	}
	return Detection{
		Rect:       image.Rect(j.X, j.Y, j.X+j.Width, j.Y+j.Height),
		Confidence: j.Confidence,
		Label:      label,
	}
}
