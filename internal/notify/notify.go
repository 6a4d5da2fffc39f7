// Package notify hands accepted plates to the outside world: the parking
// backend, object storage, Redis, MQTT and local plugins.
package notify

import (
	"context"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Event is one accepted plate.
type Event struct {
	PlateID    string
	Number     string
	Mode       string
	Regions    int
	AcceptedAt time.Time

	// PlatePhoto and DriverPhoto are JPEG bytes; either may be empty.
	PlatePhoto  []byte
	DriverPhoto []byte
}

// Sink delivers events somewhere. Send must honor ctx.
type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
}

// Closer is implemented by sinks holding connections.
type Closer interface {
	Close() error
}

// Message is the JSON body published by the Redis and MQTT sinks.
type Message struct {
	ID         string    `json:"id"`
	Number     string    `json:"number"`
	Mode       string    `json:"mode"`
	Regions    int       `json:"regions"`
	AcceptedAt time.Time `json:"accepted_at"`
}

// Message returns the wire form of ev without photos.
func (ev Event) Message() Message {
	return Message{
		ID:         ev.PlateID,
		Number:     ev.Number,
		Mode:       ev.Mode,
		Regions:    ev.Regions,
		AcceptedAt: ev.AcceptedAt.UTC(),
	}
}

func encodeMessage(ev Event) ([]byte, error) {
	return jsonAPI.Marshal(ev.Message())
}
