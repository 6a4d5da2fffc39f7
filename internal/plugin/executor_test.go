package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes body as an executable shell script and returns a
// plugin pointing at it.
func scriptPlugin(t *testing.T, body string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "plugin.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}

	return &Plugin{
		Manifest: Manifest{
			Name:       "test-plugin",
			Version:    "1.0.0",
			Executable: "plugin.sh",
			Events:     []string{EventPlateAccepted},
			Config:     json.RawMessage(`{"file":"plates.csv"}`),
		},
		Path:       dir,
		Executable: path,
	}
}

func plateRequest() *Request {
	return &Request{
		Event: EventPlateAccepted,
		Plate: PlateInfo{
			ID:         "0b4b7f0e",
			Number:     "30F12345",
			Mode:       "in",
			Regions:    2,
			AcceptedAt: time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC),
		},
	}
}

func TestExecutor_Execute(t *testing.T) {
	tests := []struct {
		name        string
		script      string
		wantSuccess bool
		wantError   string
	}{
		{
			name:        "success",
			script:      `echo '{"success":true,"data":{"rows":1}}'`,
			wantSuccess: true,
		},
		{
			name:      "plugin refuses",
			script:    `echo '{"success":false,"error":"disk full"}'`,
			wantError: "disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scriptPlugin(t, tt.script)

			resp, err := NewExecutor(5*time.Second).Execute(context.Background(), p, plateRequest())
			if err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("Success = %v, want %v", resp.Success, tt.wantSuccess)
			}
			if resp.Error != tt.wantError {
				t.Errorf("Error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	p := scriptPlugin(t, `INPUT=$(cat)
echo "{\"success\":true,\"data\":$INPUT}"
`)

	resp, err := NewExecutor(5*time.Second).Execute(context.Background(), p, plateRequest())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	var got Request
	if err := json.Unmarshal(resp.Data, &got); err != nil {
		t.Fatalf("failed to unmarshal echoed request: %v", err)
	}
	if got.Event != EventPlateAccepted {
		t.Errorf("event = %q, want %q", got.Event, EventPlateAccepted)
	}
	if got.Plate.Number != "30F12345" || got.Plate.Mode != "in" || got.Plate.Regions != 2 {
		t.Errorf("plate = %+v", got.Plate)
	}
	if !got.Plate.AcceptedAt.Equal(plateRequest().Plate.AcceptedAt) {
		t.Errorf("accepted_at = %v", got.Plate.AcceptedAt)
	}
	if string(got.Config) != `{"file":"plates.csv"}` {
		t.Errorf("config = %s, want manifest config", got.Config)
	}
}

func TestExecutor_Timeout(t *testing.T) {
	p := scriptPlugin(t, "sleep 5\n")

	start := time.Now()
	_, err := NewExecutor(100*time.Millisecond).Execute(context.Background(), p, plateRequest())
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Execute() error = %v, want ErrTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("timeout took %v", elapsed)
	}
}

func TestExecutor_Execute_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		wantMsg string
	}{
		{name: "invalid json", script: "echo 'not json'\n", wantMsg: "failed to parse plugin response"},
		{name: "non-zero exit", script: "echo 'boom' >&2\nexit 3\n", wantMsg: "stderr: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := scriptPlugin(t, tt.script)

			_, err := NewExecutor(5*time.Second).Execute(context.Background(), p, plateRequest())
			if err == nil {
				t.Fatal("Execute() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestNewExecutor(t *testing.T) {
	if got := NewExecutor(0).Timeout(); got != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", got, DefaultTimeout)
	}
	if got := NewExecutor(time.Second).Timeout(); got != time.Second {
		t.Errorf("Timeout() = %v, want 1s", got)
	}
}
