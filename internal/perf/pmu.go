// Package perf reads Linux perf_event PMU descriptions from sysfs and opens
// grouped hardware counters through perf_event_open(2).
//
// A PMU registered with the kernel appears as /sys/devices/<name> with:
//
//	type            numeric PMU type passed in perf_event_attr.type
//	cpumask         CPUs on which system-wide events must be opened
//	events/<e>      event encoding, e.g. "config=0x100002" or "event=0x04,umask=0x03"
//	events/<e>.scale multiplier that converts raw counts to <e>.unit
//	events/<e>.unit  unit of the scaled value
//	format/<term>   bit layout of a term, e.g. "config:0-7"
package perf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrNoPMU is returned when a PMU directory or its type file is missing.
var ErrNoPMU = errors.New("perf: pmu not found")

// Event identifies one counter to open.
type Event struct {
	Type   uint32
	Config uint64
}

// PMU describes a performance monitoring unit exposed in sysfs.
type PMU struct {
	Name string
	Dir  string
	Type uint32
}

// OpenPMU reads the PMU called name under sysRoot (normally "/sys").
func OpenPMU(sysRoot, name string) (*PMU, error) {
	dir := filepath.Join(sysRoot, "devices", name)
	raw, err := readString(filepath.Join(dir, "type"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoPMU, name)
		}
		return nil, err
	}
	typ, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("perf: parse %s type %q: %w", name, raw, err)
	}
	if typ == 0 {
		return nil, fmt.Errorf("%w: %s has type 0", ErrNoPMU, name)
	}
	return &PMU{Name: name, Dir: dir, Type: uint32(typ)}, nil
}

// EventsDir returns the directory holding the PMU's named events.
func (p *PMU) EventsDir() string {
	return filepath.Join(p.Dir, "events")
}

// Event resolves a named event into an Event ready to open.
func (p *PMU) Event(name string) (Event, error) {
	config, err := p.EventConfig(name)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: p.Type, Config: config}, nil
}

// EventConfig parses events/<name> into a perf_event_attr.config value.
func (p *PMU) EventConfig(name string) (uint64, error) {
	raw, err := readString(filepath.Join(p.EventsDir(), name))
	if err != nil {
		return 0, err
	}
	return p.ParseConfig(raw)
}

// ParseConfig encodes an event description such as "event=0x04,umask=0x03"
// using the PMU's format/ bit layouts. A bare "config=" term is taken as is.
func (p *PMU) ParseConfig(desc string) (uint64, error) {
	var config uint64
	for _, term := range strings.Split(strings.TrimSpace(desc), ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		key, val, hasVal := strings.Cut(term, "=")
		value := uint64(1)
		if hasVal {
			v, err := strconv.ParseUint(strings.TrimSpace(val), 0, 64)
			if err != nil {
				return 0, fmt.Errorf("perf: term %q of %s: %w", term, p.Name, err)
			}
			value = v
		}
		if key == "config" {
			config |= value
			continue
		}
		layout, err := readString(filepath.Join(p.Dir, "format", key))
		if err != nil {
			return 0, fmt.Errorf("perf: no format for term %q of %s: %w", key, p.Name, err)
		}
		bits, err := placeBits(layout, value)
		if err != nil {
			return 0, fmt.Errorf("perf: format %q of %s: %w", key, p.Name, err)
		}
		config |= bits
	}
	return config, nil
}

// Scale reads events/<name>.scale. Missing scale files mean 1.
func (p *PMU) Scale(name string) (float64, error) {
	raw, err := readString(filepath.Join(p.EventsDir(), name+".scale"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 1, nil
		}
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// Unit reads events/<name>.unit.
func (p *PMU) Unit(name string) (string, error) {
	return readString(filepath.Join(p.EventsDir(), name+".unit"))
}

// CPU returns the first CPU listed in the PMU cpumask, or 0 when the PMU has
// no cpumask (per-task PMUs such as i915 accept any CPU).
func (p *PMU) CPU() int {
	raw, err := readString(filepath.Join(p.Dir, "cpumask"))
	if err != nil || raw == "" {
		return 0
	}
	first := raw
	if i := strings.IndexAny(first, ",-"); i >= 0 {
		first = first[:i]
	}
	cpu, err := strconv.Atoi(first)
	if err != nil {
		return 0
	}
	return cpu
}

// placeBits deposits value into the bit ranges of layout ("config:0-7" or
// "config:0-7,32-35"). Only the config field is supported.
func placeBits(layout string, value uint64) (uint64, error) {
	field, ranges, ok := strings.Cut(layout, ":")
	if !ok || field != "config" {
		return 0, fmt.Errorf("unsupported layout %q", layout)
	}
	var out uint64
	for _, r := range strings.Split(ranges, ",") {
		loStr, hiStr, isRange := strings.Cut(r, "-")
		lo, err := strconv.Atoi(loStr)
		if err != nil {
			return 0, err
		}
		hi := lo
		if isRange {
			if hi, err = strconv.Atoi(hiStr); err != nil {
				return 0, err
			}
		}
		if lo < 0 || hi > 63 || hi < lo {
			return 0, fmt.Errorf("bad bit range %q", r)
		}
		width := hi - lo + 1
		mask := uint64(1)<<width - 1
		if width == 64 {
			mask = ^uint64(0)
		}
		out |= (value & mask) << lo
		value >>= width
	}
	return out, nil
}

func readString(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
