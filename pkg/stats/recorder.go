// Package stats records latency and usage distributions with HDR
// histograms for debugging and test assertions.
package stats

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Recorder collects named HDR histograms. It is safe for concurrent
// use; recording a value to an unknown name creates the histogram.
type Recorder struct {
	mu         sync.Mutex
	histograms map[string]*hdrhistogram.Histogram
	maxValue   int64
	sigFigs    int
}

// NewRecorder creates a recorder whose histograms track values in
// [1, maxValue] with the given significant figures.
func NewRecorder(maxValue int64, sigFigs int) *Recorder {
	return &Recorder{
		histograms: make(map[string]*hdrhistogram.Histogram),
		maxValue:   maxValue,
		sigFigs:    sigFigs,
	}
}

func (r *Recorder) hist(name string) *hdrhistogram.Histogram {
	h, ok := r.histograms[name]
	if !ok {
		h = hdrhistogram.New(1, r.maxValue, r.sigFigs)
		r.histograms[name] = h
	}
	return h
}

// Record adds one sample to the named histogram. Out-of-range values
// are clamped to the histogram bounds.
func (r *Recorder) Record(name string, value int64) {
	if value < 1 {
		value = 1
	}
	if value > r.maxValue {
		value = r.maxValue
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.hist(name).RecordValue(value)
}

// RecordDur adds one duration sample, in microseconds.
func (r *Recorder) RecordDur(name string, d time.Duration) {
	r.Record(name, d.Microseconds())
}

// Quantile returns the value at quantile q (in [0, 100]) of the named
// histogram, or 0 if nothing has been recorded.
func (r *Recorder) Quantile(name string, q float64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		return 0
	}
	return h.ValueAtQuantile(q)
}

// Count returns the number of samples recorded under name.
func (r *Recorder) Count(name string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.histograms[name]
	if !ok {
		return 0
	}
	return h.TotalCount()
}

// DumpSummaries writes a per-name summary line (count, p50, p90, p99,
// max) to w.
func (r *Recorder) DumpSummaries(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, h := range r.histograms {
		_, err := fmt.Fprintf(w, "%s: count=%d p50=%d p90=%d p99=%d max=%d\n",
			name, h.TotalCount(), h.ValueAtQuantile(50), h.ValueAtQuantile(90),
			h.ValueAtQuantile(99), h.Max())
		if err != nil {
			return err
		}
	}
	return nil
}
