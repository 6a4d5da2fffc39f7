package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/platewatch/internal/app"
	"github.com/ayusman/platewatch/internal/capture"
	"github.com/ayusman/platewatch/internal/detector"
	"github.com/ayusman/platewatch/internal/logging"
	"github.com/ayusman/platewatch/internal/ocr"
	"github.com/ayusman/platewatch/internal/server"
	"github.com/ayusman/platewatch/internal/store"
	"github.com/ayusman/platewatch/testdata"
)

type stack struct {
	store  *store.Store
	app    *app.App
	hub    *server.Hub
	server *httptest.Server
	done   chan error
	cancel context.CancelFunc
}

// startStack runs the pipeline over a looping synthetic plate video with the
// HTTP surface in front of it. With recognize false no plate is ever
// accepted by the pipeline.
func startStack(t *testing.T, recognize bool) *stack {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "platewatch.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	t.Cleanup(func() { st.Close() })

	scene, plate := testdata.PlateScene(480, 320, 7)
	frames := testdata.Sequence(scene, 3)
	scene.Close()
	t.Cleanup(func() {
		for _, f := range frames {
			f.Close()
		}
	})

	det := detector.NewMockDetector()
	det.SetDetections([]detector.Detection{
		detector.PlateDetection(plate.Inset(-20), 0.8),
	})

	log := logging.Discard()
	hub := server.NewHub(log)
	buffer := &server.FrameBuffer{}

	a, err := app.New(app.Config{
		Mode:           "in",
		ConsensusCount: 3,
		Workers:        1,
		Camera:         capture.NewMockCamera(frames, true),
		Detector:       det,
		Classifier:     ocr.NewMockClassifier("30F12345"),
		Store:          st,
		Hub:            hub,
		Frames:         buffer,
		Logger:         log,
	})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if !recognize {
		a.SetEnabled(false)
	}

	ts := httptest.NewServer(server.New(server.Config{
		Store:  st,
		Frames: buffer,
		Hub:    hub,
		Switch: a,
		Status: func() interface{} { return a.Status() },
		Logger: log,
	}))
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	s := &stack{store: st, app: a, hub: hub, server: ts, done: make(chan error, 1), cancel: cancel}
	go func() { s.done <- a.Run(ctx) }()
	return s
}

func (s *stack) stop(t *testing.T) {
	t.Helper()
	s.cancel()
	select {
	case err := <-s.done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Error("pipeline did not stop")
	}
}

func getJSON(t *testing.T, url string, v interface{}) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s error = %v", url, err)
	}
	defer resp.Body.Close()
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestE2E_PipelineStatusAndSwitch(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s := startStack(t, true)
	defer s.stop(t)

	var status struct {
		Enabled     bool   `json:"enabled"`
		Frames      uint64 `json:"frames"`
		Recognition struct {
			Submitted uint64 `json:"submitted"`
			Threshold int    `json:"threshold"`
		} `json:"recognition"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		getJSON(t, s.server.URL+"/api/status", &status)
		if status.Recognition.Submitted > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	if status.Frames == 0 {
		t.Error("no frames processed")
	}
	if status.Recognition.Submitted == 0 {
		t.Error("no recognition job submitted")
	}
	if status.Recognition.Threshold != 3 {
		t.Errorf("threshold = %d, want 3", status.Recognition.Threshold)
	}

	t.Run("stream serves frames", func(t *testing.T) {
		resp, err := http.Get(s.server.URL + "/api/stream")
		if err != nil {
			t.Fatalf("GET /api/stream error = %v", err)
		}
		defer resp.Body.Close()

		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
			t.Errorf("Content-Type = %q", ct)
		}
		head := make([]byte, 64)
		if _, err := io.ReadAtLeast(resp.Body, head, len(head)); err != nil {
			t.Fatalf("reading stream: %v", err)
		}
		if !strings.Contains(string(head), "image/jpeg") {
			t.Errorf("stream part header = %q", head)
		}
	})

	t.Run("switch off over HTTP", func(t *testing.T) {
		url := "ws" + strings.TrimPrefix(s.server.URL, "http") + "/api/events"
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("Dial() error = %v", err)
		}
		defer conn.Close()
		for wait := time.Now().Add(2 * time.Second); s.hub.Clients() == 0 && time.Now().Before(wait); {
			time.Sleep(5 * time.Millisecond)
		}

		req, _ := http.NewRequest(http.MethodPut, s.server.URL+"/api/recognition", strings.NewReader(`{"enabled": false}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("PUT /api/recognition error = %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want 200", resp.StatusCode)
		}

		if s.app.Enabled() {
			t.Error("app still enabled")
		}
		if s.store.Settings().Bool(store.SettingRecognitionEnabled, true) {
			t.Error("switch not persisted")
		}

		// Accepted plates may arrive first.
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			var msg server.Message
			if err := conn.ReadJSON(&msg); err != nil {
				t.Fatalf("no %s event: %v", server.EventRecognition, err)
			}
			if msg.Type == server.EventRecognition {
				break
			}
		}
	})
}

func TestE2E_PlateLog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping e2e test")
	}

	s := startStack(t, false)
	defer s.stop(t)

	p := &store.Plate{Number: "30F12345", Mode: "in", Regions: 2, Snapshot: []byte{0xff, 0xd8, 0xff, 0xd9}}
	if err := s.store.Plates().Create(p); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.store.Deliveries().Record(&store.Delivery{PlateID: p.ID, Sink: "http", OK: true}); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	var list struct {
		Plates []struct {
			ID     string `json:"id"`
			Number string `json:"number"`
		} `json:"plates"`
		Total int `json:"total"`
	}
	if code := getJSON(t, s.server.URL+"/api/plates", &list); code != http.StatusOK {
		t.Fatalf("GET /api/plates status = %d", code)
	}
	if list.Total != 1 || len(list.Plates) != 1 || list.Plates[0].ID != p.ID {
		t.Fatalf("list = %+v", list)
	}

	resp, err := http.Get(s.server.URL + "/api/plates/" + p.ID + "/snapshot")
	if err != nil {
		t.Fatalf("GET snapshot error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "image/jpeg" || len(body) != 4 {
		t.Errorf("snapshot: type %q, %d bytes", resp.Header.Get("Content-Type"), len(body))
	}

	var deliveries struct {
		Deliveries []store.Delivery `json:"deliveries"`
	}
	getJSON(t, s.server.URL+"/api/plates/"+p.ID+"/deliveries", &deliveries)
	if len(deliveries.Deliveries) != 1 || deliveries.Deliveries[0].Sink != "http" {
		t.Errorf("deliveries = %+v", deliveries.Deliveries)
	}

	if code := getJSON(t, s.server.URL+"/api/plates/missing", nil); code != http.StatusNotFound {
		t.Errorf("missing plate status = %d, want 404", code)
	}
}
