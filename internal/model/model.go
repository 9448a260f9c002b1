package model

import (
	"time"
)

// Event is a single system event as delivered by the capture layer. Attributes holds the
// already-extracted fields keyed by field name without the leading '%' (e.g. "proc.name",
// "fd.name"). A field that is not present is treated as the empty string.
type Event struct {
	// Type is the symbolic event code, e.g. "execve" or "connect".
	Type      string
	Tid       int64
	Timestamp time.Time

	Attributes map[string]string
	// Lineage lists the names of the process ancestors, parent first.
	Lineage []string
}

// Attr returns the named attribute or "" if it is not set.
func (e *Event) Attr(name string) string {
	return e.Attributes[name]
}

// Ancestor returns the name of the n-th ancestor (1 = parent) or "" if unknown.
func (e *Event) Ancestor(n int) string {
	if n < 1 || n > len(e.Lineage) {
		return ""
	}
	return e.Lineage[n-1]
}

// AnomalyRecord is emitted when a behavior profile occurrence is rarer than the configured
// threshold.
type AnomalyRecord struct {
	Timestamp    time.Time `json:"timestamp"`
	ProfileIndex int       `json:"profile_index"`
	EventType    string    `json:"event_type"`
	Tid          int64     `json:"tid"`
	Key          string    `json:"key"`
	Estimate     uint64    `json:"estimate"`
	// DurationNs is the engine uptime when the occurrence was counted.
	DurationNs int64 `json:"duration_ns"`
}
