// Package detector dispatches events to the behavior profiles that apply to them and counts the
// resulting keys in the profiles' sketches.
package detector

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/registry"
	"BehaviorSpectra/internal/metrics"
	"BehaviorSpectra/internal/model"
	"BehaviorSpectra/internal/profile"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"
)

// ErrDisabled is returned by lookups while count_min_sketch.enabled is false.
var ErrDisabled = errors.New("count min sketch is disabled")

// ProfileInfo pairs a profile with the sketch that counts it.
type ProfileInfo struct {
	registry.SketchInfo
	Fields     string   `json:"fields"`
	EventCodes []string `json:"event_codes"`
}

// Detector owns the sketch registry and the profiles that feed it.
type Detector struct {
	reg *registry.Registry

	now     func() time.Time
	started time.Time

	mu        sync.RWMutex
	enabled   bool
	threshold uint64
	warmup    time.Duration
	rebuilt   time.Time
	profiles  []*profile.Profile
}

// New builds a detector from cfg. A disabled configuration yields a detector whose Process is a
// no-op.
func New(cfg config.CountMinSketchConfig) (*Detector, error) {
	return newDetector(cfg, time.Now)
}

func newDetector(cfg config.CountMinSketchConfig, now func() time.Time) (*Detector, error) {
	d := &Detector{reg: registry.New(), now: now, started: now()}
	if err := d.Reload(cfg); err != nil {
		return nil, err
	}
	return d, nil
}

// Uptime returns the time elapsed since the detector was created.
func (d *Detector) Uptime() time.Duration {
	return d.now().Sub(d.started)
}

// Reload replaces the profiles and rebuilds every sketch. On error the detector keeps its
// previous state.
func (d *Detector) Reload(cfg config.CountMinSketchConfig) error {
	specs, err := cfg.SketchSpecs()
	if err != nil {
		return err
	}
	if !cfg.Enabled {
		log.Println("Count min sketch is disabled, behavior profiles will not be evaluated")
		d.mu.Lock()
		d.enabled = false
		d.profiles = nil
		d.mu.Unlock()
		d.reg.Close()
		return nil
	}
	profiles, err := cfg.Profiles()
	if err != nil {
		return err
	}

	// Hold the write lock across the rebuild so that no event is counted with a profile whose
	// sketch is being replaced.
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.reg.Rebuild(specs); err != nil {
		return err
	}
	d.enabled = true
	d.threshold = cfg.AnomalyThreshold
	d.warmup = cfg.Warmup()
	d.rebuilt = d.now()
	d.profiles = profiles
	for _, p := range profiles {
		log.Printf("Behavior profile (%d) loaded: fields '%s' on events %v", p.Index, p.FieldString(), p.EventCodes)
	}
	return nil
}

// Close stops the sketch reset tasks.
func (d *Detector) Close() {
	d.reg.Close()
}

// Enabled reports whether profiles are being evaluated.
func (d *Detector) Enabled() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// Process counts evt in every profile that applies to it and returns the occurrences whose
// estimate is at most the anomaly threshold. Events without a thread id are skipped. No records
// are returned until the sketches have been counting for the configured warmup.
func (d *Detector) Process(evt *model.Event) ([]model.AnomalyRecord, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled || evt == nil {
		return nil, nil
	}
	if evt.Tid <= 0 {
		metrics.EventsDroppedTotal.WithLabelValues("no_tid").Inc()
		return nil, nil
	}
	metrics.EventsProcessedTotal.Inc()

	now := d.now()
	warm := now.Sub(d.rebuilt) >= d.warmup
	var anomalies []model.AnomalyRecord
	for _, p := range d.profiles {
		if !p.Applies(evt.Type) {
			continue
		}
		key := p.Key(evt)
		if key == "" {
			continue
		}
		if err := d.reg.Update(p.Index, key, 1); err != nil {
			return anomalies, fmt.Errorf("failed to update profile %d: %w", p.Index, err)
		}
		est, err := d.reg.Estimate(p.Index, key)
		if err != nil {
			return anomalies, fmt.Errorf("failed to estimate profile %d: %w", p.Index, err)
		}
		if warm && est <= d.threshold {
			metrics.AnomaliesTotal.WithLabelValues(strconv.Itoa(p.Index)).Inc()
			anomalies = append(anomalies, model.AnomalyRecord{
				Timestamp:    evt.Timestamp,
				ProfileIndex: p.Index,
				EventType:    evt.Type,
				Tid:          evt.Tid,
				Key:          key,
				Estimate:     est,
				DurationNs:   now.Sub(d.started).Nanoseconds(),
			})
		}
	}
	return anomalies, nil
}

// ProfileKey returns the key profile index builds for evt, or "" if the profile does not apply to
// the event.
func (d *Detector) ProfileKey(index int, evt *model.Event) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, err := d.profile(index)
	if err != nil {
		return "", err
	}
	if !p.Applies(evt.Type) {
		return "", nil
	}
	return p.Key(evt), nil
}

// Estimate returns the current count of evt's key in profile index without counting it. It is
// zero when the profile does not apply to the event.
func (d *Detector) Estimate(index int, evt *model.Event) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, err := d.profile(index)
	if err != nil {
		return 0, err
	}
	if !p.Applies(evt.Type) {
		return 0, nil
	}
	key := p.Key(evt)
	if key == "" {
		return 0, nil
	}
	return d.reg.Estimate(index, key)
}

// EstimateKey returns key's count in the sketch at index.
func (d *Detector) EstimateKey(index int, key string) (uint64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return 0, ErrDisabled
	}
	return d.reg.Estimate(index, key)
}

// UpdateKey adds delta to key's count in the sketch at index.
func (d *Detector) UpdateKey(index int, key string, delta uint64) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return ErrDisabled
	}
	return d.reg.Update(index, key, delta)
}

// Profiles describes every profile together with its sketch.
func (d *Detector) Profiles() []ProfileInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.enabled {
		return nil
	}
	infos := d.reg.Info()
	out := make([]ProfileInfo, len(d.profiles))
	for i, p := range d.profiles {
		out[i] = ProfileInfo{SketchInfo: infos[i], Fields: p.FieldString(), EventCodes: p.EventCodes}
	}
	return out
}

func (d *Detector) profile(index int) (*profile.Profile, error) {
	if !d.enabled {
		return nil, ErrDisabled
	}
	if index < 0 || index >= len(d.profiles) {
		return nil, fmt.Errorf("%w: index %d, %d sketches", registry.ErrIndexOutOfRange, index, len(d.profiles))
	}
	return d.profiles[index], nil
}
