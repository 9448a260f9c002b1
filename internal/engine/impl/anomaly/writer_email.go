package anomaly

import (
	"BehaviorSpectra/internal/model"
	"fmt"
	"strings"
	"time"
)

// maxDigestLines bounds the number of records listed in one email.
const maxDigestLines = 50

// EmailWriter sends each flushed batch as a plain text digest.
type EmailWriter struct {
	notifier model.Notifier
	interval time.Duration
}

// NewEmailWriter creates a writer that delivers digests through notifier.
func NewEmailWriter(notifier model.Notifier, interval time.Duration) model.Writer {
	return &EmailWriter{notifier: notifier, interval: interval}
}

func (w *EmailWriter) GetInterval() time.Duration {
	return w.interval
}

func (w *EmailWriter) Write(records []model.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}
	subject := fmt.Sprintf("[BehaviorSpectra] %d rare behaviors detected", len(records))
	return w.notifier.Send(subject, digest(records))
}

func (w *EmailWriter) Close() error {
	return nil
}

func digest(records []model.AnomalyRecord) string {
	var b strings.Builder
	for i, r := range records {
		if i == maxDigestLines {
			fmt.Fprintf(&b, "... and %d more\n", len(records)-maxDigestLines)
			break
		}
		fmt.Fprintf(&b, "%s profile=%d event=%s tid=%d estimate=%d uptime=%s key=%q\n",
			recordTime(r).Format(time.RFC3339), r.ProfileIndex, r.EventType, r.Tid, r.Estimate, time.Duration(r.DurationNs), r.Key)
	}
	return b.String()
}
