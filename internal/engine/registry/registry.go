// Package registry owns the count-min sketches of every behavior profile and the background
// tasks that periodically reset them.
//
// All sketches are guarded by one mutex. Updates and estimates are O(rows) and resets are rare,
// so a single lock keeps rebuilds free of lock-ordering hazards. Sharding it per index would not
// change the exported API.
package registry

import (
	"BehaviorSpectra/internal/metrics"
	"BehaviorSpectra/pkg/cms"
	"fmt"
	"log"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SketchSpec sizes one sketch. Nonzero Rows and Cols take precedence over Gamma and Eps.
type SketchSpec struct {
	Rows  uint64
	Cols  uint64
	Gamma float64
	Eps   float64

	// ResetInterval is the period after which the sketch's counts are zeroed. Zero disables it.
	ResetInterval time.Duration

	// Seeds optionally fixes the per-row hash seeds.
	Seeds []uint64
}

// SketchInfo describes a built sketch.
type SketchInfo struct {
	Index         int           `json:"index"`
	Rows          uint64        `json:"rows"`
	Cols          uint64        `json:"cols"`
	Gamma         float64       `json:"gamma"`
	Eps           float64       `json:"eps"`
	SizeBytes     uint64        `json:"size_bytes"`
	ResetInterval time.Duration `json:"reset_interval"`
}

// Registry is an ordered collection of sketches indexed by behavior profile ordinal.
type Registry struct {
	mu        sync.Mutex
	sketches  []*cms.Sketch
	intervals []time.Duration
	updates   []prometheus.Counter
	estimates []prometheus.Counter

	resetter *Resetter

	// ctl serializes Rebuild and Close.
	ctl sync.Mutex
}

// New returns an empty registry. Use Rebuild to populate it.
func New() *Registry {
	return &Registry{}
}

// Size returns the number of sketches.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sketches)
}

// Update adds delta to key's count in the sketch at index.
func (r *Registry) Update(index int, key string, delta uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.sketches) {
		return indexError(index, len(r.sketches))
	}
	r.sketches[index].Update(key, delta)
	r.updates[index].Inc()
	return nil
}

// Estimate returns key's estimated count in the sketch at index.
func (r *Registry) Estimate(index int, key string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.sketches) {
		return 0, indexError(index, len(r.sketches))
	}
	r.estimates[index].Inc()
	return r.sketches[index].Estimate(key), nil
}

// Clear zeroes the sketch at index immediately, outside of its reset schedule.
func (r *Registry) Clear(index int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index < 0 || index >= len(r.sketches) {
		return indexError(index, len(r.sketches))
	}
	r.sketches[index].Clear()
	return nil
}

// Info describes every sketch in index order.
func (r *Registry) Info() []SketchInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SketchInfo, len(r.sketches))
	for i, s := range r.sketches {
		out[i] = SketchInfo{
			Index:         i,
			Rows:          s.Rows(),
			Cols:          s.Cols(),
			Gamma:         s.Gamma(),
			Eps:           s.Eps(),
			SizeBytes:     s.SizeBytes(),
			ResetInterval: r.intervals[i],
		}
	}
	return out
}

// ResetStates returns the state of every sketch's reset task.
func (r *Registry) ResetStates() []TaskState {
	r.mu.Lock()
	res, n := r.resetter, len(r.sketches)
	r.mu.Unlock()
	if res == nil {
		return make([]TaskState, n)
	}
	return res.States()
}

// Rebuild replaces every sketch with a fresh set built from specs.
//
// The new set is constructed before anything is torn down: on error a *ConfigError is returned
// and the registry keeps serving its previous sketches. On success all reset tasks are stopped
// and joined, the sketches are swapped under the lock and reset tasks are restarted.
// Concurrent calls to Rebuild and Close are serialized.
func (r *Registry) Rebuild(specs []SketchSpec) error {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	sketches, err := build(specs)
	if err != nil {
		metrics.RebuildsTotal.WithLabelValues("failure").Inc()
		return err
	}

	// The lock must not be held while joining: a task may be waiting on it to finish a reset.
	r.mu.Lock()
	old := r.resetter
	r.mu.Unlock()
	if old != nil {
		old.StopAll()
	}

	intervals := make([]time.Duration, len(specs))
	updates := make([]prometheus.Counter, len(specs))
	estimates := make([]prometheus.Counter, len(specs))
	for i, spec := range specs {
		intervals[i] = spec.ResetInterval
		profile := strconv.Itoa(i)
		updates[i] = metrics.SketchUpdatesTotal.WithLabelValues(profile)
		estimates[i] = metrics.SketchEstimatesTotal.WithLabelValues(profile)
		metrics.SketchMemoryBytes.WithLabelValues(profile).Set(float64(sketches[i].SizeBytes()))
	}

	r.mu.Lock()
	for i := len(sketches); i < len(r.sketches); i++ {
		metrics.SketchMemoryBytes.DeleteLabelValues(strconv.Itoa(i))
	}
	r.sketches = sketches
	r.intervals = intervals
	r.updates = updates
	r.estimates = estimates
	r.resetter = nil
	if slices.ContainsFunc(intervals, func(d time.Duration) bool { return d > 0 }) {
		r.resetter = NewResetter(intervals, r.reset)
	}
	res := r.resetter
	r.mu.Unlock()

	metrics.SketchesConfigured.Set(float64(len(sketches)))
	metrics.RebuildsTotal.WithLabelValues("success").Inc()
	for i, s := range sketches {
		log.Printf("Sketch %d ready: %d rows x %d cols (gamma %.6g, eps %.6g, %d bytes)",
			i, s.Rows(), s.Cols(), s.Gamma(), s.Eps(), s.SizeBytes())
	}

	if res != nil {
		res.Start()
	}
	return nil
}

// Close stops and joins every reset task. The sketches remain usable.
func (r *Registry) Close() {
	r.ctl.Lock()
	defer r.ctl.Unlock()

	r.mu.Lock()
	res := r.resetter
	r.mu.Unlock()
	if res != nil {
		res.StopAll()
	}
}

func (r *Registry) reset(index int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if index >= len(r.sketches) {
		return
	}
	r.sketches[index].Clear()
	log.Printf("Sketch %d counts reset at %s", index, time.Now().Format("2006-01-02_15-04-05"))
}

func build(specs []SketchSpec) ([]*cms.Sketch, error) {
	if len(specs) == 0 {
		return nil, configErrorf("n_sketches", "at least one sketch is required")
	}
	sketches := make([]*cms.Sketch, len(specs))
	for i, spec := range specs {
		field := fmt.Sprintf("sketch[%d]", i)
		if spec.ResetInterval < 0 {
			return nil, configErrorf(field, "negative reset interval %s", spec.ResetInterval)
		}

		var (
			s   *cms.Sketch
			err error
		)
		opts := []cms.Option{}
		if len(spec.Seeds) > 0 {
			opts = append(opts, cms.WithSeeds(spec.Seeds...))
		}
		switch {
		case spec.Rows != 0 || spec.Cols != 0:
			s, err = cms.New(spec.Rows, spec.Cols, opts...)
		case spec.Gamma != 0 || spec.Eps != 0:
			s, err = cms.NewWithEstimates(spec.Gamma, spec.Eps, opts...)
		default:
			return nil, configErrorf(field, "neither rows/cols nor gamma/eps given")
		}
		if err != nil {
			return nil, configErrorf(field, "%v", err)
		}
		sketches[i] = s
	}
	return sketches, nil
}
