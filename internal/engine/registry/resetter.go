package registry

import (
	"BehaviorSpectra/internal/metrics"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// TaskState is the lifecycle state of a single reset task.
type TaskState int32

const (
	Idle TaskState = iota
	Running
	Stopping
	Stopped
)

func (s TaskState) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Resetter runs one goroutine per sketch with a nonzero reset interval. Each goroutine
// periodically calls reset with its sketch index until StopAll is called.
type Resetter struct {
	intervals []time.Duration
	reset     func(index int)
	states    []atomic.Int32

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewResetter creates a resetter for the given per-sketch intervals. A zero interval disables
// resets for that sketch.
func NewResetter(intervals []time.Duration, reset func(index int)) *Resetter {
	return &Resetter{
		intervals: intervals,
		reset:     reset,
		states:    make([]atomic.Int32, len(intervals)),
		done:      make(chan struct{}),
	}
}

// Start launches the reset tasks.
func (r *Resetter) Start() {
	for i, interval := range r.intervals {
		if interval <= 0 {
			continue
		}
		r.states[i].Store(int32(Running))
		r.wg.Add(1)
		go r.run(i, interval)
		log.Printf("Started resetter for sketch %d with interval %s", i, interval)
	}
}

// StopAll signals every task to stop and blocks until all of them have exited. A reset that is
// already in progress completes first. StopAll is idempotent.
func (r *Resetter) StopAll() {
	r.stopOnce.Do(func() { close(r.done) })
	r.wg.Wait()
}

// States returns a snapshot of every task's state, indexed by sketch.
func (r *Resetter) States() []TaskState {
	out := make([]TaskState, len(r.states))
	for i := range r.states {
		out[i] = TaskState(r.states[i].Load())
	}
	return out
}

func (r *Resetter) run(index int, interval time.Duration) {
	defer r.wg.Done()
	defer r.states[index].Store(int32(Stopped))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Cancellation is checked once per wake; a pending stop wins over the reset.
			select {
			case <-r.done:
				r.states[index].Store(int32(Stopping))
				return
			default:
			}
			r.cycle(index)
		case <-r.done:
			r.states[index].Store(int32(Stopping))
			return
		}
	}
}

// cycle performs one reset. A panic is logged and counted; the schedule carries on.
func (r *Resetter) cycle(index int) {
	profile := strconv.Itoa(index)
	defer func() {
		if p := recover(); p != nil {
			log.Printf("Warning: reset of sketch %d failed: %v", index, p)
			metrics.SketchResetFailuresTotal.WithLabelValues(profile).Inc()
		}
	}()
	r.reset(index)
	metrics.SketchResetsTotal.WithLabelValues(profile).Inc()
}
