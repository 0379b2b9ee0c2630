// Package timing records how long the stages of a measurement take.
package timing

import (
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Tracker collects durations per stage. It is safe for concurrent use.
type Tracker struct {
	timings map[string][]time.Duration
	mu      sync.RWMutex
}

func NewTracker() *Tracker {
	return &Tracker{timings: make(map[string][]time.Duration)}
}

// Start begins timing stage; calling the returned function records it.
func (t *Tracker) Start(stage string) func() {
	start := time.Now()
	return func() { t.Record(stage, time.Since(start)) }
}

func (t *Tracker) Record(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timings[stage] = append(t.timings[stage], d)
}

func (t *Tracker) Timings(stage string) []time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	timings := t.timings[stage]
	if timings == nil {
		return nil
	}
	result := make([]time.Duration, len(timings))
	copy(result, timings)
	return result
}

// Stat summarizes the durations of one stage.
type Stat struct {
	Stage string
	Count int
	Mean  time.Duration
	Std   time.Duration
	Max   time.Duration
}

// Stats returns one summary per stage, sorted by stage name.
func (t *Tracker) Stats() []Stat {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Stat, 0, len(t.timings))
	for stage, timings := range t.timings {
		values := make([]float64, len(timings))
		var longest time.Duration
		for i, d := range timings {
			values[i] = float64(d)
			longest = max(longest, d)
		}
		mean, std := stat.MeanStdDev(values, nil)
		if len(values) < 2 {
			std = 0
		}
		out = append(out, Stat{
			Stage: stage,
			Count: len(timings),
			Mean:  time.Duration(mean),
			Std:   time.Duration(std),
			Max:   longest,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Stage < out[j].Stage })
	return out
}

// Reset drops the durations of stage, or of every stage when stage is
// empty.
func (t *Tracker) Reset(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if stage == "" {
		t.timings = make(map[string][]time.Duration)
	} else {
		delete(t.timings, stage)
	}
}
