package consensus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/ayusman/platewatch/internal/grammar"
)

// DefaultWorkers is the size of the recognition worker pool.
const DefaultWorkers = 2

// ErrDispatcherClosed is returned by Submit after Run has returned.
var ErrDispatcherClosed = errors.New("consensus: dispatcher closed")

// Task is one recognition job. Run reads the plate regions it carries and
// returns the frame's guess. lastAccepted is the plate accepted most
// recently, which Run should treat as no new information. Close releases
// the task's resources and is called once the outcome has been applied.
type Task interface {
	Run(lastAccepted string) (grammar.Guess, bool, error)
	Close() error
}

// TaskFunc adapts a function to a Task with nothing to release.
type TaskFunc func(lastAccepted string) (grammar.Guess, bool, error)

// Run calls f.
func (f TaskFunc) Run(lastAccepted string) (grammar.Guess, bool, error) { return f(lastAccepted) }

// Close does nothing.
func (f TaskFunc) Close() error { return nil }

// Acceptance is emitted once a guess has reached the tracker threshold.
// Task is the job whose outcome caused the acceptance. It stays valid only
// until the accept callback returns.
type Acceptance struct {
	JobID      string
	Number     string
	Guess      grammar.Guess
	Task       Task
	AcceptedAt time.Time
}

// Config configures a Dispatcher.
type Config struct {
	Workers   int
	Threshold int
	// OnAccept is called from the completion goroutine. It must not block.
	OnAccept func(Acceptance)
	Logger   logrus.FieldLogger
}

// Status is a point-in-time snapshot of the dispatcher.
type Status struct {
	Busy         bool           `json:"busy"`
	Submitted    uint64         `json:"submitted"`
	Dropped      uint64         `json:"dropped"`
	Completed    uint64         `json:"completed"`
	Failed       uint64         `json:"failed"`
	Accepted     uint64         `json:"accepted"`
	LastAccepted string         `json:"last_accepted"`
	Tally        map[string]int `json:"tally"`
	Threshold    int            `json:"threshold"`
}

type job struct {
	id   string
	task Task
}

type outcome struct {
	job      job
	guess    grammar.Guess
	ok       bool
	err      error
	duration time.Duration
}

// Dispatcher runs recognition tasks behind a Gate and feeds their guesses to
// a Tracker. Outcomes are applied by a single goroutine, one at a time, and
// the gate is released only after the outcome has been applied.
type Dispatcher struct {
	gate     *Gate
	tracker  *Tracker
	workers  int
	onAccept func(Acceptance)
	log      logrus.FieldLogger

	jobs     chan job
	outcomes chan outcome

	mu     sync.Mutex
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	accepted  atomic.Uint64
}

// NewDispatcher creates a dispatcher. Call Run to start its workers.
func NewDispatcher(cfg Config) *Dispatcher {
	workers := cfg.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &Dispatcher{
		gate:     &Gate{},
		tracker:  NewTracker(cfg.Threshold),
		workers:  workers,
		onAccept: cfg.OnAccept,
		log:      logger.WithField("component", "dispatcher"),
		// The gate admits one job at a time, so one slot never blocks Submit.
		jobs:     make(chan job, 1),
		outcomes: make(chan outcome, workers),
	}
}

// Submit hands t to the worker pool if no job is in flight. When the gate is
// busy the detection is dropped: t is closed and Submit returns false.
func (d *Dispatcher) Submit(t Task) (bool, error) {
	accepted, err := d.Offer(func() (Task, error) { return t, nil })
	if !accepted {
		t.Close()
	}
	return accepted, err
}

// Offer is Submit for a task that is costly to build. prepare is called only
// after the gate has been acquired, so a dropped detection costs nothing. A
// prepare error releases the gate and is returned as is.
func (d *Dispatcher) Offer(prepare func() (Task, error)) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return false, ErrDispatcherClosed
	}

	if !d.gate.TryAcquire() {
		return false, nil
	}

	t, err := prepare()
	if err != nil {
		d.gate.Release()
		return false, err
	}

	d.submitted.Add(1)
	d.jobs <- job{id: uuid.NewString(), task: t}
	return true, nil
}

// Run starts the workers and the completion loop and blocks until ctx is
// done. Every job Submit accepted runs to completion, even one still queued
// when ctx ends, and its outcome is applied before Run returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	var workers errgroup.Group
	for i := 0; i < d.workers; i++ {
		workers.Go(func() error {
			d.work(ctx)
			return nil
		})
	}

	var completion errgroup.Group
	completion.Go(func() error {
		for o := range d.outcomes {
			d.complete(o)
		}
		return nil
	})

	werr := workers.Wait()
	close(d.outcomes)
	cerr := completion.Wait()

	return errors.Join(werr, cerr)
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.close()
			// Submit enqueues under d.mu, so after close nothing new can
			// arrive and a queued job is either here or with another worker.
			select {
			case j := <-d.jobs:
				d.outcomes <- d.execute(j)
			default:
			}
			return
		case j := <-d.jobs:
			d.outcomes <- d.execute(j)
		}
	}
}

func (d *Dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

func (d *Dispatcher) execute(j job) (o outcome) {
	start := time.Now()
	o.job = j

	defer func() {
		if r := recover(); r != nil {
			o.ok = false
			o.err = fmt.Errorf("recognition panicked: %v", r)
		}
		o.duration = time.Since(start)
	}()

	o.guess, o.ok, o.err = j.task.Run(d.tracker.Last())
	return o
}

func (d *Dispatcher) complete(o outcome) {
	defer d.gate.Release()
	defer o.job.task.Close()

	d.completed.Add(1)
	log := d.log.WithFields(logrus.Fields{
		"job_id":   o.job.id,
		"duration": o.duration.String(),
	})

	if o.err != nil {
		d.failed.Add(1)
		log.WithError(o.err).Error("recognition job failed")
		return
	}

	if !o.ok {
		log.Debug("no plate number in frame")
		return
	}

	log = log.WithFields(logrus.Fields{
		"guess":   o.guess.Number,
		"regions": o.guess.Regions,
	})

	if !d.tracker.Observe(o.guess.Number) {
		log.Debug("plate number guess recorded")
		return
	}

	d.accepted.Add(1)
	log.Info("plate number accepted")

	if d.onAccept != nil {
		d.onAccept(Acceptance{
			JobID:      o.job.id,
			Number:     o.guess.Number,
			Guess:      o.guess,
			Task:       o.job.task,
			AcceptedAt: time.Now(),
		})
	}
}

// Status returns a snapshot of the gate, the counters and the tally.
func (d *Dispatcher) Status() Status {
	return Status{
		Busy:         d.gate.Busy(),
		Submitted:    d.submitted.Load(),
		Dropped:      d.gate.Dropped(),
		Completed:    d.completed.Load(),
		Failed:       d.failed.Load(),
		Accepted:     d.accepted.Load(),
		LastAccepted: d.tracker.Last(),
		Tally:        d.tracker.Tally(),
		Threshold:    d.tracker.Threshold(),
	}
}

// Busy reports whether a recognition job is in flight.
func (d *Dispatcher) Busy() bool {
	return d.gate.Busy()
}

// LastAccepted returns the most recently accepted plate number.
func (d *Dispatcher) LastAccepted() string {
	return d.tracker.Last()
}
