package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Guliveer/sysmon/internal/clock"
)

// Unavailable is the text rendering of a value that has no data.
const Unavailable = "-"

// Field is one named scalar of a snapshot. Value is a float64, a uint64, or
// nil when the metric is unavailable.
type Field struct {
	Name  string
	Value any
}

// Fields flattens the snapshot into its ordered list of named scalars. The
// names are the keys downstream consumers match on.
func (s *Snapshot) Fields() []Field {
	fields := make([]Field, 0, 32+3*s.CPU.Cores)
	add := func(name string, v any) {
		fields = append(fields, Field{Name: name, Value: v})
	}

	add("start-time", clock.Millis(s.StartedAt))

	var total float64
	for i, load := range s.CPU.Load {
		add(fmt.Sprintf("cpu-core-%d", i), load)
		total += load
	}
	if n := len(s.CPU.Load); n > 0 {
		add("cpu-cores-avg", total/float64(n))
	} else {
		add("cpu-cores-avg", nil)
	}

	if s.CPU.Frequency != nil {
		total = 0
		for i, freq := range s.CPU.Frequency {
			add(fmt.Sprintf("cpu-freq-%d-MHz", i), freq)
			total += freq
		}
		if n := len(s.CPU.Frequency); n > 0 {
			add("cpu-freq-avg-MHz", total/float64(n))
		} else {
			add("cpu-freq-avg-MHz", nil)
		}
	} else {
		// Frequency sampling off still reports a zero average.
		add("cpu-freq-avg-MHz", 0.0)
	}

	for _, p := range s.CPU.Power {
		add(p.Name, p.Watts)
	}

	add("cpu-memory-total-kB", s.CPU.Memory.TotalKB)
	add("cpu-memory-used-kB", s.CPU.Memory.UsedKB)
	add("cpu-memory-free-kB", s.CPU.Memory.FreeKB)

	add("gpu-freq", optional(s.GPU.RequestedFreq))
	add("gpu-freq-act", optional(s.GPU.ActualFreq))
	add("gpu-rc6", optional(s.GPU.RC6))
	add("gpu-irq", optional(s.GPU.Interrupts))
	add("gpu-imc-reads", optional(s.GPU.IMCReads))
	add("gpu-imc-writes", optional(s.GPU.IMCWrites))
	for _, e := range s.GPU.Engines {
		if e.Name == "" {
			continue
		}
		add("gpu-"+e.Name+"-busy", optional(e.Busy))
		add("gpu-"+e.Name+"-sema", optional(e.Sema))
		add("gpu-"+e.Name+"-wait", optional(e.Wait))
	}

	if p := s.Process; p != nil {
		add("minflt", p.MinorFaults)
		add("majflt", p.MajorFaults)
		add("voluntary_ctxt_switches", p.VoluntarySwitches)
		add("nonvoluntary_ctxt_switches", p.NonvoluntarySwitches)
		add("threads", p.Threads)
		add("resident_set_size", p.ResidentKB)
	}

	add("stop-time", clock.Millis(s.EndedAt))
	return fields
}

// FieldMap returns the fields keyed by name.
func (s *Snapshot) FieldMap() map[string]any {
	fields := s.Fields()
	out := make(map[string]any, len(fields))
	for _, f := range fields {
		out[f.Name] = f.Value
	}
	return out
}

func optional(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

// FormatValue renders a field value as text. Floats always carry a decimal
// point so that ParseValue recovers the same type.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return Unavailable
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return strconv.FormatFloat(val, 'f', -1, 64)
		}
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		return s
	case uint64:
		return strconv.FormatUint(val, 10)
	case int:
		return strconv.Itoa(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ParseValue is the inverse of FormatValue.
func ParseValue(s string) (any, error) {
	switch {
	case s == Unavailable || s == "":
		return nil, nil
	case strings.ContainsAny(s, ".IN"):
		return strconv.ParseFloat(s, 64)
	default:
		return strconv.ParseUint(s, 10, 64)
	}
}
