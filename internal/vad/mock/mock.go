// Package mock provides a test double for vad.Detector.
package mock

import (
	"sync"

	"github.com/KlinikX/aione/internal/vad"
)

// Detector returns Intervals (or Err) from every Detect call and records
// the number of samples it was given.
type Detector struct {
	mu sync.Mutex

	Intervals []vad.Interval
	Err       error

	// Calls holds the sample count of each Detect call in order.
	Calls []int
}

// Detect records the call and returns Intervals, Err.
func (d *Detector) Detect(samples []float32, sampleRate int) ([]vad.Interval, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, len(samples))
	if d.Err != nil {
		return nil, d.Err
	}
	out := make([]vad.Interval, len(d.Intervals))
	copy(out, d.Intervals)
	return out, nil
}

// CallCount returns the number of Detect calls. Thread-safe.
func (d *Detector) CallCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.Calls)
}

var _ vad.Detector = (*Detector)(nil)
