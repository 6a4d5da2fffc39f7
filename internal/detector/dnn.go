package detector

import (
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"
)

// DNNDetector runs a single-class darknet YOLO model through OpenCV's DNN
// module.
type DNNDetector struct {
	config  Config
	net     gocv.Net
	outputs []string
	mu      sync.Mutex
}

// NewDNNDetector loads the darknet model named by config.ModelPath and
// config.ConfigPath.
func NewDNNDetector(config Config) (*DNNDetector, error) {
	if config.InputSize <= 0 {
		config.InputSize = DefaultConfig().InputSize
	}

	for _, path := range []string{config.ModelPath, config.ConfigPath} {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrModelNotLoaded, err)
		}
	}

	net := gocv.ReadNet(config.ModelPath, config.ConfigPath)
	if net.Empty() {
		net.Close()
		return nil, fmt.Errorf("%w: %s", ErrModelNotLoaded, config.ModelPath)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &DNNDetector{
		config:  config,
		net:     net,
		outputs: outputLayerNames(&net),
	}, nil
}

func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		if name := layer.GetName(); name != "_input" {
			names = append(names, name)
		}
		layer.Close()
	}
	return names
}

// Detect runs the network on frame.
func (d *DNNDetector) Detect(frame *gocv.Mat) ([]Detection, error) {
	if frame == nil || frame.Empty() {
		return nil, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Point{X: d.config.InputSize, Y: d.config.InputSize}
	blob := gocv.BlobFromImage(*frame, 1.0/255.0, size, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	outs := d.net.ForwardLayers(d.outputs)
	defer func() {
		for i := range outs {
			outs[i].Close()
		}
	}()

	var result []Detection
	for _, out := range outs {
		result = append(result, parseYOLO(out, frame.Cols(), frame.Rows(), d.config.MinConfidence)...)
	}
	return result, nil
}

// parseYOLO reads YOLO output rows of the form
// [cx, cy, w, h, objectness, class scores...] with coordinates normalized
// to the network input.
func parseYOLO(out gocv.Mat, cols, rows int, minConfidence float64) []Detection {
	var result []Detection

	for i := 0; i < out.Rows(); i++ {
		row := out.RowRange(i, i+1)
		scores := row.ColRange(5, out.Cols())
		_, maxVal, _, _ := gocv.MinMaxLoc(scores)
		scores.Close()

		confidence := float64(maxVal)
		if confidence <= minConfidence {
			row.Close()
			continue
		}

		cx := float64(row.GetFloatAt(0, 0)) * float64(cols)
		cy := float64(row.GetFloatAt(0, 1)) * float64(rows)
		w := float64(row.GetFloatAt(0, 2)) * float64(cols)
		h := float64(row.GetFloatAt(0, 3)) * float64(rows)
		row.Close()

		rect := image.Rect(int(cx-w/2), int(cy-h/2), int(cx+w/2), int(cy+h/2))
		rect = rect.Intersect(image.Rect(0, 0, cols, rows))
		if rect.Empty() {
			continue
		}

		result = append(result, Detection{
			Rect:       rect,
			Confidence: confidence,
			Label:      LabelPlate,
		})
	}

	return result
}

// Close releases the network.
func (d *DNNDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.net.Close()
}
