package manager

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/detector"
	"BehaviorSpectra/internal/engine/registry"
	"BehaviorSpectra/internal/model"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type recordingWriter struct {
	interval time.Duration

	mu      sync.Mutex
	records []model.AnomalyRecord
	closed  bool
}

func (w *recordingWriter) Write(records []model.AnomalyRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.records = append(w.records, records...)
	return nil
}

func (w *recordingWriter) GetInterval() time.Duration { return w.interval }

func (w *recordingWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *recordingWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.records)
}

func testConfig() *config.Config {
	return &config.Config{
		CountMinSketch: config.CountMinSketchConfig{
			Enabled:          true,
			NSketches:        1,
			RowsCols:         [][]uint64{{4, 2048}},
			AnomalyThreshold: 1,
			BehaviorProfiles: []config.BehaviorProfileDef{
				{Fields: "%proc.name %proc.cmdline", EventCodes: []string{"execve"}},
			},
		},
		Engine: config.EngineConfig{NumWorkers: 1, SizeOfEventChannel: 16},
	}
}

func newManager(t *testing.T, writers ...model.Writer) *Manager {
	t.Helper()
	cfg := testConfig()
	det, err := detector.New(cfg.CountMinSketch)
	if err != nil {
		t.Fatal(err)
	}
	return NewManager(cfg, det, writers)
}

func event(tid int64, cmd string) *model.Event {
	return &model.Event{
		Type:       "execve",
		Tid:        tid,
		Attributes: map[string]string{"proc.name": "sh", "proc.cmdline": cmd},
	}
}

func TestManager_FlushesOnStop(t *testing.T) {
	slow := &recordingWriter{interval: time.Hour}
	m := newManager(t, slow)
	m.Start()

	for i := 0; i < 10; i++ {
		m.Submit(event(int64(i+1), fmt.Sprintf("sh -c job%d", i)))
	}
	// a repeated command is only rare the first time
	m.Submit(event(100, "sh -c job0"))
	m.Stop()

	if got := slow.count(); got != 10 {
		t.Errorf("final flush wrote %d anomalies, want 10", got)
	}
	if !slow.closed {
		t.Error("writer not closed on stop")
	}
	// idempotent
	m.Stop()
}

func TestManager_PeriodicFlush(t *testing.T) {
	fast := &recordingWriter{interval: 5 * time.Millisecond}
	m := newManager(t, fast)
	m.Start()
	defer m.Stop()

	m.InputChannel() <- event(1, "id")
	deadline := time.Now().Add(2 * time.Second)
	for fast.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("anomaly was not flushed before stop")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestManager_ProcessIsSynchronous(t *testing.T) {
	w := &recordingWriter{interval: time.Hour}
	m := newManager(t, w)
	m.Start()

	anomalies, err := m.Process(event(1, "uname -a"))
	if err != nil {
		t.Fatal(err)
	}
	if len(anomalies) != 1 || anomalies[0].Key != "shuname -a" {
		t.Fatalf("anomalies = %v", anomalies)
	}
	m.Stop()
	if w.count() != 1 {
		t.Errorf("writer received %d anomalies, want 1", w.count())
	}
}

func TestManager_Reload(t *testing.T) {
	m := newManager(t)
	m.Start()
	defer m.Stop()

	bad := testConfig()
	bad.CountMinSketch.RowsCols = [][]uint64{{0, 10}}
	var cerr *registry.ConfigError
	if err := m.Reload(bad); !errors.As(err, &cerr) {
		t.Fatalf("Reload(bad) = %v, want *registry.ConfigError", err)
	}

	next := testConfig()
	next.CountMinSketch.Enabled = false
	if err := m.Reload(next); err != nil {
		t.Fatal(err)
	}
	if m.Detector().Enabled() {
		t.Error("detector still enabled after reload")
	}
}
