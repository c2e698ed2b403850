// CPU usage collector: per-core load from double-buffered tick counters,
// optional per-core frequency and host memory totals.
package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
)

// CoreTicks holds the cumulative jiffies of one core as reported by
// /proc/stat.
type CoreTicks struct {
	Core   int
	User   uint64
	Nice   uint64
	System uint64
	Idle   uint64
}

func (t CoreTicks) busy() uint64 { return t.User + t.Nice + t.System }

// CPUSource supplies the raw per-core counters the CPU collector turns into
// rates. The host implementation reads procfs and gopsutil.
type CPUSource interface {
	// CoreCount returns the number of configured cores.
	CoreCount(ctx context.Context) (int, error)
	// Ticks returns the cumulative ticks of every online core.
	Ticks(ctx context.Context) ([]CoreTicks, error)
	// Frequencies returns the current frequency of every core in MHz, one
	// entry per core listed by the CPU information source.
	Frequencies(ctx context.Context) ([]float64, error)
	// Memory returns system memory totals.
	Memory(ctx context.Context) (models.MemoryInfo, error)
}

// CPUCollector computes per-core load from consecutive tick readings and
// reports core frequency and memory totals.
type CPUCollector struct {
	src    CPUSource
	logger *zap.Logger

	cores  int
	ticks  [2][]CoreTicks
	gen    int
	load   []float64
	freq   []float64
	freqOK bool
	memory models.MemoryInfo
}

// NewCPUCollector sizes the collector for the machine's core count and
// probes the frequency source. Frequency reporting is disabled for the
// collector's lifetime when the probe disagrees with the core count.
func NewCPUCollector(ctx context.Context, src CPUSource, logger *zap.Logger) *CPUCollector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &CPUCollector{src: src, logger: logger}

	cores, err := src.CoreCount(ctx)
	if err != nil || cores < 1 {
		logger.Warn("Failed to read core count, assuming one core", zap.Error(err))
		cores = 1
	}
	c.cores = cores
	c.ticks[0] = make([]CoreTicks, cores)
	c.ticks[1] = make([]CoreTicks, cores)
	c.load = make([]float64, cores)

	freq, err := src.Frequencies(ctx)
	switch {
	case err != nil:
		logger.Info("CPU frequency not available", zap.Error(err))
	case len(freq) != cores:
		logger.Info("CPU frequency disabled, core count mismatch",
			zap.Int("cores", cores),
			zap.Int("info_cores", len(freq)))
	default:
		c.freqOK = true
		c.freq = freq
	}
	return c
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return "cpu" }

// IsAvailable reports whether the collector has been sized for any core.
func (c *CPUCollector) IsAvailable() bool { return c.cores > 0 }

// Cores returns the core count fixed at construction.
func (c *CPUCollector) Cores() int { return c.cores }

// FrequencyEnabled reports whether per-core frequency is still reported.
func (c *CPUCollector) FrequencyEnabled() bool { return c.freqOK }

// Collect reads the current ticks into the active generation, derives the
// load of every core against the other generation and flips generations.
func (c *CPUCollector) Collect(ctx context.Context, snap *models.Snapshot) error {
	if c.cores == 0 {
		return fmt.Errorf("cpu collector closed: %w", ErrInvalidArguments)
	}

	var errs []error
	if err := c.sampleLoad(ctx); err != nil {
		errs = append(errs, err)
	}
	if c.freqOK {
		c.sampleFrequency(ctx)
	}
	mem, err := c.src.Memory(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("read memory: %w", err))
	} else {
		c.memory = mem
	}

	snap.CPU.Cores = c.cores
	snap.CPU.Load = append(snap.CPU.Load[:0], c.load...)
	if c.freqOK {
		snap.CPU.Frequency = append(snap.CPU.Frequency[:0], c.freq...)
	} else {
		snap.CPU.Frequency = nil
	}
	snap.CPU.Memory = c.memory

	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrUnexpected, errs)
	}
	return nil
}

func (c *CPUCollector) sampleLoad(ctx context.Context) error {
	readings, err := c.src.Ticks(ctx)
	if err != nil {
		return fmt.Errorf("read ticks: %w", err)
	}

	cur, prev := c.ticks[c.gen], c.ticks[c.gen^1]
	// Offline cores are absent from the reading and keep their old ticks.
	copy(cur, prev)
	for _, r := range readings {
		if r.Core < 0 || r.Core >= c.cores {
			continue
		}
		cur[r.Core] = r
	}

	for i := range cur {
		c.load[i] = coreLoad(prev[i], cur[i])
		if c.load[i] == 0 && cur[i] == prev[i] {
			c.logger.Debug("No ticks elapsed on core", zap.Int("core", i))
		}
	}
	c.gen ^= 1
	return nil
}

// coreLoad is the busy share of the ticks elapsed between prev and cur, in
// percent. No elapsed ticks, or a counter that went backwards, reads as 0.
func coreLoad(prev, cur CoreTicks) float64 {
	if cur.busy() < prev.busy() || cur.Idle < prev.Idle {
		return 0
	}
	busy := cur.busy() - prev.busy()
	total := busy + cur.Idle - prev.Idle
	if total == 0 {
		return 0
	}
	return 100 * float64(busy) / float64(total)
}

func (c *CPUCollector) sampleFrequency(ctx context.Context) {
	freq, err := c.src.Frequencies(ctx)
	if err == nil && len(freq) == c.cores {
		copy(c.freq, freq)
		return
	}
	c.logger.Warn("CPU frequency source changed, disabling frequency reporting",
		zap.Int("cores", c.cores),
		zap.Int("info_cores", len(freq)),
		zap.Error(err))
	c.freqOK = false
	c.freq = nil
}

// Close releases per-core state. Later Collect calls fail.
func (c *CPUCollector) Close() error {
	c.cores = 0
	c.ticks = [2][]CoreTicks{}
	c.load = nil
	c.freq = nil
	c.freqOK = false
	return nil
}
