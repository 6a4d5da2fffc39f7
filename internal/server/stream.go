package server

import (
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// DefaultStreamFPS caps the MJPEG stream rate per client.
const DefaultStreamFPS = 15

// FrameSource supplies the latest JPEG frame and its sequence number. The
// sequence increases with every new frame.
type FrameSource interface {
	LatestJPEG() (data []byte, seq uint64)
}

// StreamHandler serves the latest annotated frame as MJPEG.
type StreamHandler struct {
	frames FrameSource
	fps    int
}

// NewStreamHandler creates a StreamHandler sending at most fps frames per
// second to each client.
func NewStreamHandler(frames FrameSource, fps int) *StreamHandler {
	if fps <= 0 {
		fps = DefaultStreamFPS
	}
	return &StreamHandler{frames: frames, fps: fps}
}

// ServeHTTP streams frames until the client disconnects. A frame is sent
// only when it differs from the last one sent.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	limiter := rate.NewLimiter(rate.Limit(h.fps), 1)
	var sent uint64

	for {
		if err := limiter.Wait(r.Context()); err != nil {
			return
		}

		data, seq := h.frames.LatestJPEG()
		if len(data) == 0 || seq == sent {
			continue
		}
		sent = seq

		if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
			return
		}
		if _, err := w.Write(data); err != nil {
			return
		}
		if _, err := fmt.Fprint(w, "\r\n"); err != nil {
			return
		}

		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
	}
}

// FrameBuffer is a FrameSource holding the most recent frame.
type FrameBuffer struct {
	mu   sync.RWMutex
	data []byte
	seq  uint64
}

// Store replaces the current frame.
func (b *FrameBuffer) Store(jpeg []byte) {
	b.mu.Lock()
	b.data = jpeg
	b.seq++
	b.mu.Unlock()
}

// LatestJPEG implements FrameSource.
func (b *FrameBuffer) LatestJPEG() ([]byte, uint64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data, b.seq
}
