package profile

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// Field is one attribute referenced by a behavior profile, e.g. %proc.aname[2].
type Field struct {
	Name string
	// Arg is the optional bracketed argument, 0 when absent.
	Arg int
}

func (f Field) String() string {
	if f.Arg > 0 {
		return fmt.Sprintf("%%%s[%d]", f.Name, f.Arg)
	}
	return "%" + f.Name
}

// IsFd reports whether the field is only defined on file descriptor events.
func (f Field) IsFd() bool {
	return strings.HasPrefix(f.Name, "fd.")
}

// knownFields maps every supported field name to whether it requires an argument.
var knownFields = map[string]bool{
	"container.id":            false,
	"evt.type":                false,
	"proc.name":               false,
	"proc.pname":              false,
	"proc.aname":              true,
	"proc.exe":                false,
	"proc.exepath":            false,
	"proc.cmdline":            false,
	"proc.args":               false,
	"proc.cwd":                false,
	"proc.tty":                false,
	"proc.pid":                false,
	"proc.ppid":               false,
	"proc.sid":                false,
	"proc.vpgid":              false,
	"proc.is_exe_writable":    false,
	"proc.is_exe_upper_layer": false,
	"proc.is_exe_from_memfd":  false,
	"user.uid":                false,
	"user.loginuid":           false,
	"fd.name":                 false,
	"fd.nameraw":              false,
	"fd.directory":            false,
	"fd.filename":             false,
	"fd.type":                 false,
	"fd.l4proto":              false,
	"fd.sip":                  false,
	"fd.cip":                  false,
	"fd.sport":                false,
	"fd.cport":                false,
	"fd.dip":                  false,
	"fd.dport":                false,
}

// KnownFields returns the sorted names of all supported fields.
func KnownFields() []string {
	out := make([]string, 0, len(knownFields))
	for name := range knownFields {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ParseFields parses a whitespace separated list of %-prefixed field references such as
// "%container.id %proc.name %proc.aname[2] %fd.name".
func ParseFields(s string) ([]Field, error) {
	tokens := strings.Fields(s)
	if len(tokens) == 0 {
		return nil, fmt.Errorf("no fields in %q", s)
	}

	fields := make([]Field, 0, len(tokens))
	for _, tok := range tokens {
		f, err := parseField(tok)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

func parseField(tok string) (Field, error) {
	name, ok := strings.CutPrefix(tok, "%")
	if !ok || name == "" {
		return Field{}, fmt.Errorf("field %q must start with '%%'", tok)
	}

	var f Field
	if open := strings.IndexByte(name, '['); open >= 0 {
		if !strings.HasSuffix(name, "]") {
			return Field{}, fmt.Errorf("field %q: unterminated argument", tok)
		}
		arg, err := strconv.Atoi(name[open+1 : len(name)-1])
		if err != nil || arg < 1 {
			return Field{}, fmt.Errorf("field %q: argument must be a positive integer", tok)
		}
		f.Arg = arg
		name = name[:open]
	}
	f.Name = name

	needsArg, ok := knownFields[name]
	if !ok {
		return Field{}, fmt.Errorf("unknown field %q", tok)
	}
	if needsArg && f.Arg == 0 {
		return Field{}, fmt.Errorf("field %q requires an argument, e.g. %%%s[1]", tok, name)
	}
	if !needsArg && f.Arg != 0 {
		return Field{}, fmt.Errorf("field %q does not take an argument", tok)
	}
	return f, nil
}
