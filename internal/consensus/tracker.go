package consensus

import "sync"

// DefaultThreshold is how many times a guess must be seen before it is accepted.
const DefaultThreshold = 3

// Tracker tallies plate-number guesses since the last acceptance.
type Tracker struct {
	mu        sync.Mutex
	threshold int
	tally     map[string]int
	last      string
}

// NewTracker creates a tracker that accepts a guess on its threshold-th
// occurrence. A threshold below 1 uses DefaultThreshold.
func NewTracker(threshold int) *Tracker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		tally:     make(map[string]int),
	}
}

// Observe records one occurrence of number and reports whether this
// occurrence made it accepted. On acceptance the whole tally is cleared and
// number becomes the last accepted plate.
//
// grammar.Aggregate already discards a guess equal to the last accepted
// plate. Observe ignores one too, for tasks that never call Aggregate.
func (t *Tracker) Observe(number string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if number == "" || number == t.last {
		return false
	}

	t.tally[number]++
	if t.tally[number] < t.threshold {
		return false
	}

	clear(t.tally)
	t.last = number
	return true
}

// Last returns the most recently accepted plate number, or "" if none.
func (t *Tracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

// Tally returns a copy of the current counts.
func (t *Tracker) Tally() map[string]int {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int, len(t.tally))
	for k, v := range t.tally {
		out[k] = v
	}
	return out
}

// Threshold returns the acceptance count.
func (t *Tracker) Threshold() int {
	return t.threshold
}
