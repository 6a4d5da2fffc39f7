package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/ayusman/platewatch/internal/plugin"
)

// PluginSink runs every plugin subscribed to plate.accepted.
type PluginSink struct {
	manager  *plugin.Manager
	executor *plugin.Executor
}

// NewPluginSink creates a sink over the plugins known to manager.
func NewPluginSink(manager *plugin.Manager, executor *plugin.Executor) *PluginSink {
	return &PluginSink{manager: manager, executor: executor}
}

// Name implements Sink.
func (s *PluginSink) Name() string { return "plugins" }

// Send implements Sink. Every subscriber runs even when an earlier one
// fails; the failures are joined.
func (s *PluginSink) Send(ctx context.Context, ev Event) error {
	req := &plugin.Request{
		Event: plugin.EventPlateAccepted,
		Plate: plugin.PlateInfo{
			ID:         ev.PlateID,
			Number:     ev.Number,
			Mode:       ev.Mode,
			Regions:    ev.Regions,
			AcceptedAt: ev.AcceptedAt,
		},
	}

	var errs []error
	for _, p := range s.manager.Subscribers(plugin.EventPlateAccepted) {
		r := *req
		resp, err := s.executor.Execute(ctx, p, &r)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Manifest.Name, err))
			continue
		}
		if !resp.Success {
			errs = append(errs, fmt.Errorf("%s: %s", p.Manifest.Name, resp.Error))
		}
	}
	return errors.Join(errs...)
}
