package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/platewatch/internal/logging"
)

func TestServer_Health(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	t.Run("returns 200 with JSON response", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

		if rec.Code != http.StatusOK {
			t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
			t.Errorf("expected Content-Type application/json, got %s", ct)
		}

		var response map[string]interface{}
		if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
			t.Fatalf("failed to decode response: %v", err)
		}
		if response["status"] != "ok" {
			t.Errorf("expected status 'ok', got %v", response["status"])
		}
		if _, exists := response["uptime"]; !exists {
			t.Error("expected 'uptime' field in response")
		}
	})

	t.Run("only allows GET method", func(t *testing.T) {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(method, "/api/health", nil))

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("method %s: expected status %d, got %d", method, http.StatusMethodNotAllowed, rec.Code)
			}
		}
	})
}

func TestServer_Status(t *testing.T) {
	s := New(Config{
		Logger: logging.Discard(),
		Status: func() interface{} {
			return map[string]interface{}{"busy": true, "last_accepted": "30F12345"}
		},
	})

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	var got map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&got)
	if got["busy"] != true || got["last_accepted"] != "30F12345" {
		t.Errorf("status body = %v", got)
	}
}

func TestServer_DisabledRoutes(t *testing.T) {
	s := New(Config{Logger: logging.Discard()})

	for _, path := range []string{"/api/status", "/api/plates", "/api/stream", "/api/events", "/api/recognition", "/"} {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s without backing component: status %d, want 404", path, rec.Code)
		}
	}
}

func TestServer_StaticFiles(t *testing.T) {
	dir := t.TempDir()
	index := "<html><body>platewatch</body></html>"
	os.WriteFile(filepath.Join(dir, "index.html"), []byte(index), 0644)

	s := New(Config{StaticDir: dir, Logger: logging.Discard()})

	tests := []struct {
		path     string
		wantCode int
		wantBody string
	}{
		{path: "/", wantCode: http.StatusOK, wantBody: index},
		{path: "/missing.js", wantCode: http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.wantCode {
			t.Errorf("GET %s status = %d, want %d", tt.path, rec.Code, tt.wantCode)
		}
		if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
			t.Errorf("GET %s body = %q", tt.path, rec.Body.String())
		}
	}
}

type toggle struct {
	mu sync.Mutex
	on bool
}

func (t *toggle) Enabled() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.on }
func (t *toggle) SetEnabled(v bool) {
	t.mu.Lock()
	t.on = v
	t.mu.Unlock()
}

func TestServer_Recognition(t *testing.T) {
	sw := &toggle{on: true}
	s := New(Config{Switch: sw, Logger: logging.Discard()})

	tests := []struct {
		name     string
		method   string
		body     string
		wantCode int
		wantOn   bool
	}{
		{name: "read", method: http.MethodGet, wantCode: http.StatusOK, wantOn: true},
		{name: "disable", method: http.MethodPut, body: `{"enabled":false}`, wantCode: http.StatusOK, wantOn: false},
		{name: "missing field", method: http.MethodPut, body: `{}`, wantCode: http.StatusBadRequest, wantOn: false},
		{name: "bad json", method: http.MethodPut, body: `{`, wantCode: http.StatusBadRequest, wantOn: false},
		{name: "enable", method: http.MethodPut, body: `{"enabled":true}`, wantCode: http.StatusOK, wantOn: true},
		{name: "post not allowed", method: http.MethodPost, wantCode: http.StatusMethodNotAllowed, wantOn: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.ServeHTTP(rec, httptest.NewRequest(tt.method, "/api/recognition", strings.NewReader(tt.body)))

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if sw.Enabled() != tt.wantOn {
				t.Errorf("enabled = %v, want %v", sw.Enabled(), tt.wantOn)
			}
		})
	}
}

func TestStreamHandler(t *testing.T) {
	buf := &FrameBuffer{}
	buf.Store([]byte("jpeg-1"))

	srv := httptest.NewServer(NewStreamHandler(buf, 50))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream error = %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q", ct)
	}

	chunk := make([]byte, 256)
	n, _ := resp.Body.Read(chunk)
	got := string(chunk[:n])
	if !strings.Contains(got, "--frame") || !strings.Contains(got, "Content-Length: 6") {
		t.Errorf("first part = %q", got)
	}
}

func TestFrameBuffer(t *testing.T) {
	var b FrameBuffer
	if data, seq := b.LatestJPEG(); data != nil || seq != 0 {
		t.Errorf("empty buffer = %v, %d", data, seq)
	}

	b.Store([]byte("a"))
	b.Store([]byte("b"))
	if data, seq := b.LatestJPEG(); string(data) != "b" || seq != 2 {
		t.Errorf("LatestJPEG() = %q, %d, want b, 2", data, seq)
	}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(logging.Discard())
	srv := httptest.NewServer(New(Config{Hub: hub, Logger: logging.Discard()}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if hub.Clients() != 1 {
		t.Fatalf("Clients() = %d, want 1", hub.Clients())
	}

	hub.Broadcast(EventPlateAccepted, map[string]string{"number": "30F12345"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type string            `json:"type"`
		Data map[string]string `json:"data"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	if msg.Type != EventPlateAccepted || msg.Data["number"] != "30F12345" {
		t.Errorf("message = %+v", msg)
	}

	hub.Close()
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("client should be disconnected after Close()")
	}
}
