// Package models defines the snapshot produced on every sampling tick and
// its flattening into named scalar fields consumed by the output sinks and
// the publisher.
package models

import "time"

// MaxEngineBlocks is the number of GPU engine blocks carried by a snapshot.
const MaxEngineBlocks = 5

// Snapshot is a single sampling tick of every collector.
type Snapshot struct {
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	PID       int           `json:"pid"`
	CPU       CPUState      `json:"cpu"`
	GPU       GPUState      `json:"gpu"`
	Process   *ProcessState `json:"process,omitempty"`
}

// CPUState holds per-core utilization, frequency, memory and power.
type CPUState struct {
	Cores int       `json:"cores"`
	Load  []float64 `json:"load"`
	// Frequency is nil when the frequency source is disabled.
	Frequency []float64      `json:"frequency_mhz"`
	Memory    MemoryInfo     `json:"memory"`
	Power     []PowerReading `json:"power"`
}

// MemoryInfo holds system memory totals in kB.
type MemoryInfo struct {
	TotalKB uint64 `json:"total_kb"`
	FreeKB  uint64 `json:"free_kb"`
	UsedKB  uint64 `json:"used_kb"`
}

// PowerReading is the average power of one energy domain over the last tick.
type PowerReading struct {
	Name  string  `json:"name"`
	Watts float64 `json:"watts"`
}

// GPUState holds GPU PMU rates. A nil rate means the counter is unavailable,
// which is distinct from an idle reading of 0.
type GPUState struct {
	Available     bool          `json:"available"`
	RequestedFreq *float64      `json:"freq_req"`
	ActualFreq    *float64      `json:"freq_act"`
	Interrupts    *float64      `json:"irq"`
	RC6           *float64      `json:"rc6"`
	IMCReads      *float64      `json:"imc_reads"`
	IMCWrites     *float64      `json:"imc_writes"`
	Engines       []EngineBlock `json:"engines"`
}

// EngineBlock holds the busy/wait/semaphore percentages of one GPU engine.
type EngineBlock struct {
	Name string   `json:"name"`
	Busy *float64 `json:"busy"`
	Wait *float64 `json:"wait"`
	Sema *float64 `json:"sema"`
}

// ProcessState holds the tracked process counters. Faults and context
// switches are deltas since the previous successful read.
type ProcessState struct {
	MinorFaults          uint64 `json:"minflt"`
	MajorFaults          uint64 `json:"majflt"`
	VoluntarySwitches    uint64 `json:"voluntary_ctxt_switches"`
	NonvoluntarySwitches uint64 `json:"nonvoluntary_ctxt_switches"`
	Threads              uint64 `json:"threads"`
	ResidentKB           uint64 `json:"resident_set_size"`
}

// Float returns a pointer to v, for populating optional rates.
func Float(v float64) *float64 { return &v }
