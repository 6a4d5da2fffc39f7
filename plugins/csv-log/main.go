// Package main is a platewatch plugin that appends accepted plates to a CSV
// file. Build it next to its plugin.json:
//
//	go build -o plugins/csv-log/csv-log ./plugins/csv-log
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

// Request is the input from the plugin executor.
type Request struct {
	Event string `json:"event"`
	Plate struct {
		ID         string    `json:"id"`
		Number     string    `json:"number"`
		Mode       string    `json:"mode"`
		Regions    int       `json:"regions"`
		AcceptedAt time.Time `json:"accepted_at"`
	} `json:"plate"`
	Config json.RawMessage `json:"config"`
}

// Response is the output to the plugin executor.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

type config struct {
	File string `json:"file"`
}

func main() {
	var req Request
	if err := json.NewDecoder(os.Stdin).Decode(&req); err != nil {
		writeResponse(Response{Error: fmt.Sprintf("failed to decode request: %v", err)})
		return
	}

	if req.Event != "plate.accepted" {
		writeResponse(Response{Error: fmt.Sprintf("unsupported event: %s", req.Event)})
		return
	}

	cfg := config{File: "plates.csv"}
	if len(req.Config) > 0 {
		if err := json.Unmarshal(req.Config, &cfg); err != nil {
			writeResponse(Response{Error: fmt.Sprintf("invalid config: %v", err)})
			return
		}
	}

	if err := appendRow(cfg.File, []string{
		req.Plate.AcceptedAt.UTC().Format(time.RFC3339),
		req.Plate.Number,
		req.Plate.Mode,
		strconv.Itoa(req.Plate.Regions),
	}); err != nil {
		writeResponse(Response{Error: err.Error()})
		return
	}

	data, _ := json.Marshal(map[string]string{"file": cfg.File})
	writeResponse(Response{Success: true, Data: data})
}

func appendRow(path string, row []string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func writeResponse(resp Response) {
	json.NewEncoder(os.Stdout).Encode(resp)
}
