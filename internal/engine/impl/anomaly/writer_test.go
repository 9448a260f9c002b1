package anomaly

import (
	"BehaviorSpectra/internal/model"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func sampleRecords() []model.AnomalyRecord {
	day1 := time.Date(2026, 3, 14, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 15, 0, 1, 0, 0, time.UTC)
	return []model.AnomalyRecord{
		{Timestamp: day1, ProfileIndex: 0, EventType: "execve", Tid: 7, Key: "hostcurlbash", Estimate: 1, DurationNs: 90e9},
		{Timestamp: day2, ProfileIndex: 1, EventType: "connect", Tid: 8, Key: "nc10.0.0.1", Estimate: 1, DurationNs: 2e9},
	}
}

func TestTextWriter(t *testing.T) {
	root := filepath.Join(t.TempDir(), "anomalies")
	w := NewTextWriter(root, time.Second)
	if w.GetInterval() != time.Second {
		t.Errorf("interval = %s", w.GetInterval())
	}

	if err := w.Write(nil); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("empty batch created the output directory")
	}

	records := sampleRecords()
	if err := w.Write(records); err != nil {
		t.Fatal(err)
	}
	// appends
	if err := w.Write(records[:1]); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(root, "anomalies-2026-03-14.txt"))
	if err != nil {
		t.Fatal(err)
	}
	line := "2026-03-14T23:59:00Z 0 1 90000000000 hostcurlbash\n"
	if diff := cmp.Diff(line+line, string(data)); diff != "" {
		t.Error(diff)
	}

	data, err = os.ReadFile(filepath.Join(root, "anomalies-2026-03-15.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff("2026-03-15T00:01:00Z 1 1 2000000000 nc10.0.0.1\n", string(data)); diff != "" {
		t.Error(diff)
	}
	if err := w.Close(); err != nil {
		t.Error(err)
	}
}

type fakeNotifier struct {
	subjects []string
	bodies   []string
}

func (n *fakeNotifier) Send(subject, body string) error {
	n.subjects = append(n.subjects, subject)
	n.bodies = append(n.bodies, body)
	return nil
}

func TestEmailWriter(t *testing.T) {
	n := &fakeNotifier{}
	w := NewEmailWriter(n, time.Minute)

	if err := w.Write(nil); err != nil {
		t.Fatal(err)
	}
	if len(n.subjects) != 0 {
		t.Fatal("empty batch was mailed")
	}

	if err := w.Write(sampleRecords()); err != nil {
		t.Fatal(err)
	}
	if len(n.subjects) != 1 || n.subjects[0] != "[BehaviorSpectra] 2 rare behaviors detected" {
		t.Fatalf("subjects = %v", n.subjects)
	}
	if !strings.Contains(n.bodies[0], `profile=1 event=connect tid=8 estimate=1 uptime=2s key="nc10.0.0.1"`) {
		t.Errorf("unexpected digest:\n%s", n.bodies[0])
	}
}

func TestDigestTruncates(t *testing.T) {
	records := make([]model.AnomalyRecord, maxDigestLines+5)
	body := digest(records)
	if got := strings.Count(body, "\n"); got != maxDigestLines+1 {
		t.Errorf("digest has %d lines, want %d", got, maxDigestLines+1)
	}
	if !strings.HasSuffix(body, "... and 5 more\n") {
		t.Errorf("digest does not end with the overflow line: %q", body[len(body)-30:])
	}
}
