package probe

import (
	"BehaviorSpectra/internal/model"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeDecodeEvent(t *testing.T) {
	evt := &model.Event{
		Type:       "execve",
		Tid:        4242,
		Timestamp:  time.Date(2026, 7, 1, 8, 30, 0, 123456789, time.UTC),
		Attributes: map[string]string{"proc.name": "curl", "container.id": "host"},
		Lineage:    []string{"bash", "sshd", "systemd"},
	}
	data, err := EncodeEvent(evt)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(evt, got); diff != "" {
		t.Error(diff)
	}
}

func TestDecodeEventJSON(t *testing.T) {
	body := `{
		"type": "connect",
		"tid": "17",
		"timestamp": "2026-07-01T08:30:00Z",
		"attributes": {"fd.sport": 443, "fd.sip": "10.0.0.2", "proc.is_exe_writable": true},
		"lineage": ["nginx"]
	}`
	got, err := DecodeEventJSON([]byte(body))
	if err != nil {
		t.Fatal(err)
	}
	expected := &model.Event{
		Type:       "connect",
		Tid:        17,
		Timestamp:  time.Date(2026, 7, 1, 8, 30, 0, 0, time.UTC),
		Attributes: map[string]string{"fd.sport": "443", "fd.sip": "10.0.0.2", "proc.is_exe_writable": "true"},
		Lineage:    []string{"nginx"},
	}
	if diff := cmp.Diff(expected, got); diff != "" {
		t.Error(diff)
	}
}

func TestDecodeEvent_Errors(t *testing.T) {
	for name, body := range map[string]string{
		"no type":       `{"tid": 1}`,
		"bad tid":       `{"type": "execve", "tid": "x"}`,
		"bad timestamp": `{"type": "execve", "timestamp": "yesterday"}`,
		"not json":      `type=execve`,
	} {
		if _, err := DecodeEventJSON([]byte(body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
	if _, err := DecodeEvent([]byte{0xff, 0xff}); err == nil {
		t.Error("expected an error for corrupt protobuf")
	}
}
