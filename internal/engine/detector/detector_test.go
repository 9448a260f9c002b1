package detector

import (
	"BehaviorSpectra/internal/config"
	"BehaviorSpectra/internal/engine/registry"
	"BehaviorSpectra/internal/model"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func testConfig() config.CountMinSketchConfig {
	return config.CountMinSketchConfig{
		Enabled:          true,
		NSketches:        2,
		RowsCols:         [][]uint64{{4, 4096}, {4, 4096}},
		AnomalyThreshold: 1,
		BehaviorProfiles: []config.BehaviorProfileDef{
			{Fields: "%container.id %proc.name %proc.aname[1]", EventCodes: []string{"execve"}},
			{Fields: "%proc.name %fd.name", EventCodes: []string{"openat", "connect"}},
		},
	}
}

func execEvent(name string) *model.Event {
	return &model.Event{
		Type:       "execve",
		Tid:        100,
		Timestamp:  time.Unix(1700000000, 0).UTC(),
		Attributes: map[string]string{"container.id": "host", "proc.name": name},
		Lineage:    []string{"bash"},
	}
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func (c *testClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestProcess_FlagsRareProfiles(t *testing.T) {
	clock := &testClock{t: time.Unix(1700000000, 0)}
	d, err := newDetector(testConfig(), clock.now)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	clock.advance(1500 * time.Millisecond)
	anomalies, err := d.Process(execEvent("curl"))
	if err != nil {
		t.Fatal(err)
	}
	expected := []model.AnomalyRecord{{
		Timestamp:    time.Unix(1700000000, 0).UTC(),
		ProfileIndex: 0,
		EventType:    "execve",
		Tid:          100,
		Key:          "hostcurlbash",
		Estimate:     1,
		DurationNs:   int64(1500 * time.Millisecond),
	}}
	if diff := cmp.Diff(expected, anomalies); diff != "" {
		t.Error(diff)
	}

	// the second occurrence is above the threshold
	anomalies, err = d.Process(execEvent("curl"))
	if err != nil {
		t.Fatal(err)
	}
	if len(anomalies) != 0 {
		t.Errorf("repeated profile flagged: %v", anomalies)
	}

	est, err := d.Estimate(0, execEvent("curl"))
	if err != nil || est < 2 {
		t.Errorf("Estimate = %d, %v, want >= 2", est, err)
	}
	// profile 1 does not apply to execve
	if est, err := d.Estimate(1, execEvent("curl")); err != nil || est != 0 {
		t.Errorf("Estimate on non applicable profile = %d, %v", est, err)
	}
}

func TestProcess_Warmup(t *testing.T) {
	cfg := testConfig()
	cfg.WarmupMs = 60000
	clock := &testClock{t: time.Unix(1700000000, 0)}
	d, err := newDetector(cfg, clock.now)
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	// rare occurrences are counted but not reported while the sketches fill up
	if anomalies, err := d.Process(execEvent("curl")); err != nil || anomalies != nil {
		t.Errorf("Process during warmup = %v, %v", anomalies, err)
	}
	if est, _ := d.EstimateKey(0, "hostcurlbash"); est != 1 {
		t.Errorf("event during warmup not counted (%d)", est)
	}

	clock.advance(time.Minute)
	if d.Uptime() != time.Minute {
		t.Errorf("Uptime = %v, want 1m", d.Uptime())
	}
	anomalies, err := d.Process(execEvent("wget"))
	if err != nil {
		t.Fatal(err)
	}
	if len(anomalies) != 1 || anomalies[0].DurationNs != int64(time.Minute) {
		t.Errorf("Process after warmup = %+v", anomalies)
	}

	// a rebuild starts a new warmup, uptime keeps running
	clock.advance(time.Second)
	if err := d.Reload(cfg); err != nil {
		t.Fatal(err)
	}
	if anomalies, _ := d.Process(execEvent("nc")); anomalies != nil {
		t.Errorf("Process right after reload = %v", anomalies)
	}
	if d.Uptime() != time.Minute+time.Second {
		t.Errorf("Uptime after reload = %v", d.Uptime())
	}
}

func TestProcess_SkipsEventsWithoutTid(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	evt := execEvent("curl")
	evt.Tid = 0
	if anomalies, err := d.Process(evt); err != nil || anomalies != nil {
		t.Errorf("Process = %v, %v", anomalies, err)
	}
	if est, _ := d.EstimateKey(0, "hostcurlbash"); est != 0 {
		t.Errorf("event without tid was counted (%d)", est)
	}
}

func TestProfileKey(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	evt := &model.Event{Type: "openat", Tid: 1, Attributes: map[string]string{"proc.name": "cat", "fd.name": "/etc/passwd"}}
	key, err := d.ProfileKey(1, evt)
	if err != nil || key != "cat/etc/passwd" {
		t.Errorf("ProfileKey = %q, %v", key, err)
	}
	if key, _ := d.ProfileKey(0, evt); key != "" {
		t.Errorf("ProfileKey for non applicable profile = %q", key)
	}
	if _, err := d.ProfileKey(2, evt); !errors.Is(err, registry.ErrIndexOutOfRange) {
		t.Errorf("ProfileKey(2) error = %v", err)
	}
}

func TestRawAccess(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if err := d.UpdateKey(1, "k", 5); err != nil {
		t.Fatal(err)
	}
	if est, err := d.EstimateKey(1, "k"); err != nil || est < 5 {
		t.Errorf("EstimateKey = %d, %v", est, err)
	}
	if err := d.UpdateKey(-1, "k", 1); !errors.Is(err, registry.ErrIndexOutOfRange) {
		t.Errorf("UpdateKey(-1) error = %v", err)
	}
}

func TestDisabled(t *testing.T) {
	d, err := New(config.CountMinSketchConfig{})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()

	if d.Enabled() {
		t.Error("detector enabled")
	}
	if anomalies, err := d.Process(execEvent("curl")); err != nil || anomalies != nil {
		t.Errorf("Process = %v, %v", anomalies, err)
	}
	if _, err := d.EstimateKey(0, "k"); !errors.Is(err, ErrDisabled) {
		t.Errorf("EstimateKey error = %v", err)
	}
	if _, err := d.Estimate(0, execEvent("curl")); !errors.Is(err, ErrDisabled) {
		t.Errorf("Estimate error = %v", err)
	}
	if d.Profiles() != nil {
		t.Error("disabled detector lists profiles")
	}
}

func TestReload(t *testing.T) {
	d, err := New(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer d.Close()
	if err := d.UpdateKey(0, "k", 3); err != nil {
		t.Fatal(err)
	}

	bad := testConfig()
	bad.NSketches = 3
	var cerr *registry.ConfigError
	if err := d.Reload(bad); !errors.As(err, &cerr) {
		t.Fatalf("Reload(bad) = %v, want *registry.ConfigError", err)
	}
	if est, _ := d.EstimateKey(0, "k"); est < 3 {
		t.Errorf("failed reload lost counts (%d)", est)
	}

	next := testConfig()
	next.NSketches = 1
	next.RowsCols = [][]uint64{{2, 64}}
	next.BehaviorProfiles = next.BehaviorProfiles[:1]
	next.BehaviorProfiles[0].ResetTimerMs = 60000
	if err := d.Reload(next); err != nil {
		t.Fatal(err)
	}
	expected := []ProfileInfo{{
		SketchInfo: registry.SketchInfo{Index: 0, Rows: 2, Cols: 64, SizeBytes: 2 * 64 * 8, ResetInterval: time.Minute},
		Fields:     "%container.id %proc.name %proc.aname[1]",
		EventCodes: []string{"execve"},
	}}
	if diff := cmp.Diff(expected, d.Profiles(), cmpopts.IgnoreFields(registry.SketchInfo{}, "Gamma", "Eps")); diff != "" {
		t.Error(diff)
	}
	if est, _ := d.EstimateKey(0, "k"); est != 0 {
		t.Errorf("rebuilt sketch not empty (%d)", est)
	}
}
