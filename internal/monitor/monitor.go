// Package monitor ties the samplers together. A Monitor owns one collector
// of each kind and produces one snapshot per Compute call, optionally bound
// to a tracked process.
package monitor

import (
	"context"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/clock"
	"github.com/Guliveer/sysmon/internal/collector"
	"github.com/Guliveer/sysmon/internal/models"
)

// NoPID is the pid of an unbound monitor.
const NoPID = -1

// Options configure a Monitor. Zero values select the host defaults.
type Options struct {
	// ProcRoot is the procfs mount point, "/proc" by default.
	ProcRoot string
	// SysRoot is the sysfs mount point, "/sys" by default.
	SysRoot string
	Clock   clock.Clock
	Logger  *zap.Logger
	// CPUSource overrides the host CPU and memory counters.
	CPUSource collector.CPUSource
}

// Monitor runs the machine-wide collectors and, when bound to a pid, the
// process collector. It is not safe for concurrent use.
type Monitor struct {
	clock    clock.Clock
	logger   *zap.Logger
	registry *collector.Registry
	cpu      *collector.CPUCollector
	power    *collector.PowerCollector
	gpu      *collector.GPUCollector
	proc     *collector.ProcessCollector

	pid     int
	snap    models.Snapshot
	process models.ProcessState
}

// New builds the collectors and registers them in the order they run:
// CPU, power, GPU. The monitor starts unbound.
func New(ctx context.Context, opts Options) *Monitor {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.CPUSource == nil {
		opts.CPUSource = collector.NewHostSource(opts.ProcRoot)
	}

	m := &Monitor{
		clock:    opts.Clock,
		logger:   opts.Logger,
		registry: collector.NewRegistry(opts.Logger),
		pid:      NoPID,
	}
	m.cpu = collector.NewCPUCollector(ctx, opts.CPUSource, opts.Logger.Named("cpu"))
	m.power = collector.NewPowerCollector(opts.SysRoot, opts.Clock, opts.Logger.Named("power"))
	m.gpu = collector.NewGPUCollector(opts.SysRoot, opts.Logger.Named("gpu"))
	m.proc = collector.NewProcessCollector(opts.ProcRoot, opts.Logger.Named("process"))

	m.registry.Register(m.cpu)
	m.registry.Register(m.power)
	m.registry.Register(m.gpu)
	m.snap.PID = NoPID

	if info, err := collector.ReadHostInfo(ctx); err == nil {
		opts.Logger.Info("Sampling host", info.Fields()...)
	} else {
		opts.Logger.Debug("Host info unavailable", zap.Error(err))
	}
	return m
}

// SetPID binds the monitor to pid, or unbinds it when pid is NoPID. The
// process counter history is reset on every call.
func (m *Monitor) SetPID(pid int) {
	m.pid = pid
	m.proc.Reset()
	m.process = models.ProcessState{}
	m.logger.Info("Tracked process changed", zap.Int("pid", pid))
}

// PID returns the tracked pid, or NoPID.
func (m *Monitor) PID() int { return m.pid }

// Bound reports whether a process is tracked.
func (m *Monitor) Bound() bool { return m.pid != NoPID }

// Cores returns the number of cores sampled by the CPU collector.
func (m *Monitor) Cores() int { return m.cpu.Cores() }

// Compute runs one sampling tick. Machine collectors always run, even on a
// cancelled ctx, and their failures are only logged. The returned error is the process collector's,
// and only when the monitor is bound. The snapshot is reused by the next
// call; callers must copy what they keep.
func (m *Monitor) Compute(ctx context.Context) (*models.Snapshot, error) {
	snap := &m.snap
	snap.StartedAt = m.clock.Now()
	snap.PID = m.pid

	m.registry.CollectAll(ctx, snap)

	var err error
	if m.Bound() {
		var st models.ProcessState
		st, err = m.proc.Read(ctx, m.pid)
		if err == nil {
			m.process = st
		} else {
			m.logger.Debug("Process read failed",
				zap.Int("pid", m.pid),
				zap.String("kind", collector.KindOf(err).String()),
				zap.Error(err))
		}
		snap.Process = &m.process
	} else {
		snap.Process = nil
	}

	snap.EndedAt = m.clock.Now()
	return snap, err
}

// Close releases every collector.
func (m *Monitor) Close() error {
	return m.registry.Close()
}
