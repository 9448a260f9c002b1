// Package profile turns events into behavior profile keys.
//
// A behavior profile names a set of event codes and an ordered list of fields. For every event
// whose code is in the set, the profile's key is the plain concatenation of the event's field
// values; each profile owns one count-min sketch in which its keys are counted.
package profile

import (
	"BehaviorSpectra/internal/model"
	"fmt"
	"slices"
	"strings"
	"time"
)

var (
	// fdEventCodes are the events that carry a file descriptor.
	fdEventCodes = []string{"open", "openat", "openat2", "creat", "accept", "accept4", "connect", "open_by_handle_at"}
	// procEventCodes are the process lifecycle events.
	procEventCodes = []string{"execve", "execveat", "clone", "clone3"}
)

// IsFdEvent reports whether events with this code carry a file descriptor.
func IsFdEvent(code string) bool {
	return slices.Contains(fdEventCodes, code)
}

// SupportedEvent reports whether behavior profiles may be applied to this event code.
func SupportedEvent(code string) bool {
	return IsFdEvent(code) || slices.Contains(procEventCodes, code)
}

// Profile is one configured behavior profile.
type Profile struct {
	Index         int
	Fields        []Field
	EventCodes    []string
	ResetInterval time.Duration

	codes map[string]struct{}
}

// New builds the profile at index from its field string and event codes.
// Profiles using %fd fields may only be applied to fd events.
func New(index int, fields string, eventCodes []string, resetInterval time.Duration) (*Profile, error) {
	parsed, err := ParseFields(fields)
	if err != nil {
		return nil, err
	}
	if len(eventCodes) == 0 {
		return nil, fmt.Errorf("no event codes")
	}

	usesFd := slices.ContainsFunc(parsed, Field.IsFd)
	codes := make(map[string]struct{}, len(eventCodes))
	for _, code := range eventCodes {
		if !SupportedEvent(code) {
			return nil, fmt.Errorf("event code %q is not supported for behavior profiles", code)
		}
		if usesFd && !IsFdEvent(code) {
			return nil, fmt.Errorf("profile uses %%fd fields but includes non fd event code %q", code)
		}
		codes[code] = struct{}{}
	}

	return &Profile{
		Index:         index,
		Fields:        parsed,
		EventCodes:    slices.Clone(eventCodes),
		ResetInterval: resetInterval,
		codes:         codes,
	}, nil
}

// Applies reports whether the profile counts events with this code.
func (p *Profile) Applies(code string) bool {
	_, ok := p.codes[code]
	return ok
}

// FieldString returns the profile's fields in configuration syntax.
func (p *Profile) FieldString() string {
	parts := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		parts[i] = f.String()
	}
	return strings.Join(parts, " ")
}

// Key builds the profile's key for evt. Missing attributes contribute nothing. An %fd field
// evaluated on an event without a file descriptor discards what was built so far.
func (p *Profile) Key(evt *model.Event) string {
	var b strings.Builder
	fdEvent := IsFdEvent(evt.Type)
	for _, f := range p.Fields {
		if f.IsFd() && !fdEvent {
			b.Reset()
			continue
		}
		b.WriteString(value(evt, f))
	}
	return b.String()
}

func value(evt *model.Event, f Field) string {
	switch f.Name {
	case "evt.type":
		return evt.Type
	case "proc.aname":
		return evt.Ancestor(f.Arg)
	case "proc.pname":
		if v := evt.Attr(f.Name); v != "" {
			return v
		}
		return evt.Ancestor(1)
	case "fd.directory", "fd.filename":
		if v := evt.Attr(f.Name); v != "" {
			return v
		}
		return splitPath(evt.Attr("fd.name"), f.Name == "fd.directory")
	default:
		return evt.Attr(f.Name)
	}
}

// splitPath derives fd.directory or fd.filename from an absolute fd.name.
func splitPath(name string, dir bool) string {
	if !strings.HasPrefix(name, "/") {
		return ""
	}
	i := strings.LastIndexByte(name, '/')
	if dir {
		if i == 0 {
			return "/"
		}
		return name[:i]
	}
	return name[i+1:]
}
