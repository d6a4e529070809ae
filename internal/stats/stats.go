// Package stats implements the running mean/stddev timing accumulator
// cmd/encrypt-input (per-image encryption) and cmd/server-infer
// (per-image evaluation and total batch time) attach to their slow
// operations, grounded on common.TimingStats/TimingInfo's
// sample-and-report shape.
package stats

import (
	"fmt"
	"math"
	"time"
)

// Timer accumulates duration samples for one named operation.
type Timer struct {
	Mean    time.Duration
	StdDev  time.Duration
	Samples []time.Duration
}

// Add records one sample and recomputes Mean/StdDev.
func (t *Timer) Add(d time.Duration) {
	t.Samples = append(t.Samples, d)
	t.recompute()
}

func (t *Timer) recompute() {
	var sum time.Duration
	for _, s := range t.Samples {
		sum += s
	}
	t.Mean = sum / time.Duration(len(t.Samples))

	var sumSq float64
	for _, s := range t.Samples {
		diff := float64(s - t.Mean)
		sumSq += diff * diff
	}
	t.StdDev = time.Duration(math.Sqrt(sumSq / float64(len(t.Samples))))
}

// Track times the execution of fn and records it, returning fn's error
// unchanged so callers can wrap timed steps without disturbing their own
// error handling.
func (t *Timer) Track(fn func() error) error {
	start := time.Now()
	err := fn()
	t.Add(time.Since(start))
	return err
}

func (t *Timer) String() string {
	if len(t.Samples) == 0 {
		return "no samples"
	}
	return fmt.Sprintf("mean=%s stddev=%s n=%d", t.Mean, t.StdDev, len(t.Samples))
}

// Report is the per-run collection of named timers a cmd binary prints
// alongside its output, mirroring TimingInfo's grouping of
// client/data-owner/CSP phases into one struct. No binary in this
// repository fills KeyGen or Decryption.
type Report struct {
	KeyGen     Timer
	Encryption Timer
	Evaluation Timer
	Decryption Timer
	Total      Timer
}

// Summary formats every non-empty timer in the report for CLI output.
func (r Report) Summary() string {
	lines := []struct {
		name string
		t    Timer
	}{
		{"keygen", r.KeyGen},
		{"encryption", r.Encryption},
		{"evaluation", r.Evaluation},
		{"decryption", r.Decryption},
		{"total", r.Total},
	}
	out := ""
	for _, l := range lines {
		if len(l.t.Samples) == 0 {
			continue
		}
		out += fmt.Sprintf("%-11s %s\n", l.name, l.t.String())
	}
	return out
}
