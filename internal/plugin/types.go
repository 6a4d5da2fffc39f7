// Package plugin discovers external executables that react to platewatch
// events and runs them with a JSON request on stdin.
package plugin

import (
	"encoding/json"
	"time"
)

// EventPlateAccepted is sent once per accepted plate number.
const EventPlateAccepted = "plate.accepted"

// Manifest is the plugin.json file of a plugin directory.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Events      []string        `json:"events"`
	Config      json.RawMessage `json:"config,omitempty"`
}

// Subscribes reports whether the manifest lists event.
func (m Manifest) Subscribes(event string) bool {
	for _, e := range m.Events {
		if e == event {
			return true
		}
	}
	return false
}

// PlateInfo describes an accepted plate to a plugin.
type PlateInfo struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	Mode       string    `json:"mode"`
	Regions    int       `json:"regions"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Request is written to the plugin's stdin.
type Request struct {
	Event  string          `json:"event"`
	Plate  PlateInfo       `json:"plate"`
	Config json.RawMessage `json:"config,omitempty"`
}

// Response is read from the plugin's stdout.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin is a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}
