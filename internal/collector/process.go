// Tracked process collector: page faults and context switches as deltas
// between reads, thread count and resident set size, read with gopsutil.
package collector

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"syscall"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
)

// procCounters are the cumulative counters read from one process.
type procCounters struct {
	minflt    uint64
	majflt    uint64
	voluntary uint64
	involunt  uint64
}

// ProcessCollector reads one process's counters on demand. Each delta
// counter keeps two history slots selected by a toggle that only advances
// after a fully successful read.
type ProcessCollector struct {
	procRoot string
	logger   *zap.Logger

	history [2]procCounters
	toggle  int
	state   models.ProcessState
}

// NewProcessCollector creates a collector reading procfs at procRoot
// ("/proc" when empty).
func NewProcessCollector(procRoot string, logger *zap.Logger) *ProcessCollector {
	if procRoot == "" {
		procRoot = "/proc"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProcessCollector{procRoot: procRoot, logger: logger}
}

// Read samples pid. On success the returned state holds the counter deltas
// since the previous successful read; the first read after Reset reports
// the cumulative counters. A failed read leaves all state untouched.
func (p *ProcessCollector) Read(ctx context.Context, pid int) (models.ProcessState, error) {
	if p == nil {
		return models.ProcessState{}, fmt.Errorf("nil process collector: %w", ErrInvalidArguments)
	}
	if pid <= 0 {
		return models.ProcessState{}, fmt.Errorf("pid %d: %w", pid, ErrInvalidArguments)
	}

	cur, st, err := p.readCounters(withProcRoot(ctx, p.procRoot), int32(pid))
	if err != nil {
		return models.ProcessState{}, err
	}

	prev := p.history[p.toggle^1]
	p.history[p.toggle] = cur
	p.toggle ^= 1

	st.MinorFaults = delta(cur.minflt, prev.minflt)
	st.MajorFaults = delta(cur.majflt, prev.majflt)
	st.VoluntarySwitches = delta(cur.voluntary, prev.voluntary)
	st.NonvoluntarySwitches = delta(cur.involunt, prev.involunt)
	p.state = st
	return st, nil
}

// State returns the result of the last successful read.
func (p *ProcessCollector) State() models.ProcessState { return p.state }

// Reset drops the counter history, for use when the tracked pid changes.
func (p *ProcessCollector) Reset() {
	p.history = [2]procCounters{}
	p.toggle = 0
	p.state = models.ProcessState{}
}

func delta(cur, prev uint64) uint64 {
	if cur < prev {
		return 0
	}
	return cur - prev
}

// readCounters queries stat, status and statm of pid through gopsutil.
// The Process value is built directly so no liveness probe touches the
// real pid.
func (p *ProcessCollector) readCounters(ctx context.Context, pid int32) (cur procCounters, st models.ProcessState, err error) {
	// gopsutil indexes stat and statm fields without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pid %d: malformed procfs record: %w: %v", pid, ErrUnexpected, r)
		}
	}()

	proc := &process.Process{Pid: pid}

	faults, err := proc.PageFaultsWithContext(ctx)
	if err != nil {
		return cur, st, classifyProcErr(pid, err)
	}
	switches, err := proc.NumCtxSwitchesWithContext(ctx)
	if err != nil {
		return cur, st, classifyProcErr(pid, err)
	}
	threads, err := proc.NumThreadsWithContext(ctx)
	if err != nil {
		return cur, st, classifyProcErr(pid, err)
	}
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return cur, st, classifyProcErr(pid, err)
	}

	cur = procCounters{
		minflt:    faults.MinorFaults,
		majflt:    faults.MajorFaults,
		voluntary: uint64(max(switches.Voluntary, 0)),
		involunt:  uint64(max(switches.Involuntary, 0)),
	}
	st.Threads = uint64(max(threads, 0))
	st.ResidentKB = mem.RSS / 1024
	return cur, st, nil
}

func classifyProcErr(pid int32, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("pid %d: %w", pid, ErrProcessNotFound)
	}
	return fmt.Errorf("pid %d: %w: %v", pid, ErrUnexpected, err)
}
