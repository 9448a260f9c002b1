package anomaly

import (
	"BehaviorSpectra/internal/model"
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// TextWriter appends anomaly records to one text file per day.
type TextWriter struct {
	rootPath string
	interval time.Duration
}

// NewTextWriter creates a new text writer rooted at rootPath.
func NewTextWriter(rootPath string, interval time.Duration) model.Writer {
	return &TextWriter{rootPath: rootPath, interval: interval}
}

func (w *TextWriter) GetInterval() time.Duration {
	return w.interval
}

// Write appends one "timestamp profile_index estimate duration_ns key" line per record to
// root_path/anomalies-YYYY-MM-DD.txt, dated by the record's timestamp.
func (w *TextWriter) Write(records []model.AnomalyRecord) error {
	if len(records) == 0 {
		return nil
	}
	if err := os.MkdirAll(w.rootPath, 0755); err != nil {
		return fmt.Errorf("failed to create anomaly directory: %w", err)
	}

	byDay := make(map[string][]model.AnomalyRecord)
	var days []string
	for _, r := range records {
		day := recordTime(r).Format("2006-01-02")
		if _, ok := byDay[day]; !ok {
			days = append(days, day)
		}
		byDay[day] = append(byDay[day], r)
	}

	for _, day := range days {
		if err := w.appendFile(filepath.Join(w.rootPath, "anomalies-"+day+".txt"), byDay[day]); err != nil {
			return err
		}
	}
	log.Printf("Successfully wrote %d anomalies to %s\n", len(records), w.rootPath)
	return nil
}

func (w *TextWriter) appendFile(path string, records []model.AnomalyRecord) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open anomaly file '%s': %w", path, err)
	}
	defer file.Close()

	buf := bufio.NewWriter(file)
	for _, r := range records {
		line := fmt.Sprintf("%s %d %d %d %s\n", recordTime(r).Format(time.RFC3339Nano), r.ProfileIndex, r.Estimate, r.DurationNs, r.Key)
		if _, err := buf.WriteString(line); err != nil {
			return fmt.Errorf("failed to write anomaly to file: %w", err)
		}
	}
	if err := buf.Flush(); err != nil {
		return fmt.Errorf("failed to flush anomaly file '%s': %w", path, err)
	}
	return nil
}

func (w *TextWriter) Close() error {
	return nil
}

func recordTime(r model.AnomalyRecord) time.Time {
	if r.Timestamp.IsZero() {
		return time.Now().UTC()
	}
	return r.Timestamp.UTC()
}
