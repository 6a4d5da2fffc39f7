package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Fanout defaults.
const (
	DefaultQueueSize   = 16
	DefaultSendTimeout = 10 * time.Second
)

// Result reports the outcome of one Send.
type Result struct {
	Event Event
	Sink  string
	Err   error
}

// FanoutConfig configures a Fanout.
type FanoutConfig struct {
	QueueSize   int
	SendTimeout time.Duration
	Logger      logrus.FieldLogger
	// OnResult, if set, is called after every Send from the Fanout goroutine.
	OnResult func(Result)
}

// Fanout delivers events to every sink on its own goroutine so a slow or
// failing sink never blocks the caller. The queue is bounded; Publish drops
// events when it is full.
type Fanout struct {
	sinks    []Sink
	cfg      FanoutConfig
	queue    chan Event
	dropped  atomic.Uint64
	closed   atomic.Bool
	closeMu  sync.Once
	finished chan struct{}
}

// NewFanout creates a Fanout over sinks.
func NewFanout(sinks []Sink, cfg FanoutConfig) *Fanout {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Fanout{
		sinks:    sinks,
		cfg:      cfg,
		queue:    make(chan Event, cfg.QueueSize),
		finished: make(chan struct{}),
	}
}

// Sinks returns the names of the configured sinks.
func (f *Fanout) Sinks() []string {
	names := make([]string, len(f.sinks))
	for i, s := range f.sinks {
		names[i] = s.Name()
	}
	return names
}

// Publish queues ev without blocking. It reports false when the event was
// dropped.
func (f *Fanout) Publish(ev Event) bool {
	if f.closed.Load() {
		f.dropped.Add(1)
		return false
	}

	select {
	case f.queue <- ev:
		return true
	default:
		f.dropped.Add(1)
		f.cfg.Logger.WithFields(logrus.Fields{
			"number":     ev.Number,
			"queue_size": cap(f.queue),
		}).Warn("notification queue full, dropping plate")
		return false
	}
}

// Dropped returns how many events Publish discarded.
func (f *Fanout) Dropped() uint64 {
	return f.dropped.Load()
}

// Run delivers queued events until ctx is done, then delivers what is left
// in the queue and closes the sinks that hold connections.
func (f *Fanout) Run(ctx context.Context) error {
	defer close(f.finished)

	for {
		select {
		case ev := <-f.queue:
			f.deliver(ctx, ev)
		case <-ctx.Done():
			f.closed.Store(true)
			f.drain()
			f.closeSinks()
			return nil
		}
	}
}

// Wait blocks until Run has returned.
func (f *Fanout) Wait() {
	<-f.finished
}

func (f *Fanout) drain() {
	for {
		select {
		case ev := <-f.queue:
			f.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (f *Fanout) deliver(ctx context.Context, ev Event) {
	for _, sink := range f.sinks {
		sendCtx, cancel := context.WithTimeout(ctx, f.cfg.SendTimeout)
		start := time.Now()
		err := sink.Send(sendCtx, ev)
		cancel()

		log := f.cfg.Logger.WithFields(logrus.Fields{
			"sink":     sink.Name(),
			"number":   ev.Number,
			"plate_id": ev.PlateID,
			"took":     time.Since(start).String(),
		})
		if err != nil {
			log.WithError(err).Error("notification failed")
		} else {
			log.Debug("notification sent")
		}

		if f.cfg.OnResult != nil {
			f.cfg.OnResult(Result{Event: ev, Sink: sink.Name(), Err: err})
		}
	}
}

func (f *Fanout) closeSinks() {
	f.closeMu.Do(func() {
		for _, sink := range f.sinks {
			c, ok := sink.(Closer)
			if !ok {
				continue
			}
			if err := c.Close(); err != nil {
				f.cfg.Logger.WithError(err).WithField("sink", sink.Name()).Warn("closing sink")
			}
		}
	})
}
