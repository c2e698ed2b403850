// Intel GPU collector: engine busy/wait/semaphore ratios, frequencies, RC6
// residency and interrupts from the i915 PMU, plus memory controller
// bandwidth from the uncore_imc PMU.
package collector

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
	"github.com/Guliveer/sysmon/internal/perf"
)

// i915 PMU config layout (include/uapi/drm/i915_drm.h).
const (
	i915SampleBits         = 4
	i915SampleInstanceBits = 8
	i915ClassShift         = i915SampleBits + i915SampleInstanceBits
	i915Other0             = 0x100000

	i915SampleBusy = 0
	i915SampleWait = 1
	i915SampleSema = 2

	i915ActualFrequency    = i915Other0 + 0
	i915RequestedFrequency = i915Other0 + 1
	i915Interrupts         = i915Other0 + 2
	i915RC6Residency       = i915Other0 + 3
)

// i915 engine classes.
const (
	engineClassRender       = 0
	engineClassCopy         = 1
	engineClassVideo        = 2
	engineClassVideoEnhance = 3
)

const (
	i915PMU = "i915"
	imcPMU  = "uncore_imc"
)

// counterGroup is a set of perf counters read together. perf.Group is the
// production implementation.
type counterGroup interface {
	Add(ev perf.Event) (int, error)
	Len() int
	Read() (perf.Sample, error)
	Reset() error
	Close() error
}

// groupOpener creates an empty counter group bound to cpu.
type groupOpener func(cpu int) counterGroup

func openPerfGroup(cpu int) counterGroup { return perf.NewGroup(cpu) }

// pmuCounter tracks one counter of a group. A counter that failed to open is
// not present and owns no slot in the group.
type pmuCounter struct {
	present bool
	config  uint64
	idx     int
	cur     uint64
	prev    uint64
}

func (c *pmuCounter) open(g counterGroup, typ uint32) error {
	idx, err := g.Add(perf.Event{Type: typ, Config: c.config})
	if err != nil {
		return err
	}
	c.present = true
	c.idx = idx
	return nil
}

func (c *pmuCounter) update(values []uint64) {
	if !c.present || c.idx >= len(values) {
		return
	}
	c.prev = c.cur
	c.cur = values[c.idx]
}

// rate converts the last delta into (delta / divisor / elapsed) * scale.
// Percentage rates (scale 100) are clamped to [0, 100]. Absent counters
// yield nil.
func (c *pmuCounter) rate(divisor, elapsed, scale float64) *float64 {
	if !c.present {
		return nil
	}
	return models.Float(pmuRate(c.prev, c.cur, divisor, elapsed, scale))
}

func pmuRate(prev, cur uint64, divisor, elapsed, scale float64) float64 {
	if cur < prev || elapsed <= 0 || divisor == 0 {
		return 0
	}
	v := float64(cur-prev) / divisor / elapsed * scale
	switch {
	case math.IsNaN(v):
		return 0
	case scale == 100:
		return math.Max(0, math.Min(100, v))
	case math.IsInf(v, 0):
		return 0
	}
	return v
}

type gpuEngine struct {
	name        string
	displayName string
	class       uint64
	instance    uint64
	counters    int

	busy pmuCounter
	wait pmuCounter
	sema pmuCounter
}

func engineClassName(class uint64) string {
	switch class {
	case engineClassRender:
		return "Render/3D"
	case engineClassCopy:
		return "Blitter"
	case engineClassVideo:
		return "Video"
	case engineClassVideoEnhance:
		return "VideoEnhance"
	default:
		return "[unknown]"
	}
}

// GPUCollector samples the i915 PMU. It is unavailable when the PMU is
// missing or its interrupt counter, the group leader, cannot be opened.
type GPUCollector struct {
	logger *zap.Logger
	open   groupOpener

	available bool
	primed    bool
	group     counterGroup
	tsCur     uint64
	tsPrev    uint64

	freqReq pmuCounter
	freqAct pmuCounter
	irq     pmuCounter
	rc6     pmuCounter
	engines []*gpuEngine

	imc         counterGroup
	imcTsCur    uint64
	imcTsPrev   uint64
	imcReads    pmuCounter
	imcWrites   pmuCounter
	imcReadsSc  float64
	imcWritesSc float64
}

// NewGPUCollector discovers i915 engines under sysRoot ("/sys" when empty)
// and opens their counters. Failures are logged and leave the collector
// unavailable.
func NewGPUCollector(sysRoot string, logger *zap.Logger) *GPUCollector {
	return newGPUCollector(sysRoot, openPerfGroup, logger)
}

func newGPUCollector(sysRoot string, open groupOpener, logger *zap.Logger) *GPUCollector {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GPUCollector{logger: logger, open: open}

	pmu, err := perf.OpenPMU(sysRoot, i915PMU)
	if err != nil {
		logger.Warn("GPU PMU not available (i915 PMU needs kernel 4.16 or newer)", zap.Error(err))
		return g
	}
	engines, err := discoverEngines(pmu)
	if err != nil {
		logger.Warn("Failed to detect GPU engines", zap.Error(err))
		return g
	}
	g.engines = engines
	if err := g.openMain(pmu); err != nil {
		logger.Warn("Failed to initialize GPU PMU", zap.Error(err))
		g.engines = nil
		return g
	}
	g.available = true
	g.openIMC(sysRoot)

	logger.Info("GPU PMU initialized",
		zap.Int("engines", len(g.engines)),
		zap.Int("counters", g.group.Len()),
		zap.Bool("imc", g.imc != nil))
	return g
}

// discoverEngines lists "<name>-busy" events, decodes class and instance
// from their config and returns at most MaxEngineBlocks engines sorted by
// class then instance.
func discoverEngines(pmu *perf.PMU) ([]*gpuEngine, error) {
	entries, err := os.ReadDir(pmu.EventsDir())
	if err != nil {
		return nil, err
	}
	const suffix = "-busy"
	var engines []*gpuEngine
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		// xxxN-busy
		if len(e.Name()) < len(suffix)+4 || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), suffix)
		config, err := pmu.EventConfig(e.Name())
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", name, err)
		}
		eng := &gpuEngine{
			name:     name,
			class:    (config & (i915Other0 - 1)) >> i915ClassShift,
			instance: (config >> i915SampleBits) & (1<<i915SampleInstanceBits - 1),
		}
		eng.displayName = fmt.Sprintf("%s-%d", engineClassName(eng.class), eng.instance)
		eng.busy.config = config
		engines = append(engines, eng)
	}
	sort.Slice(engines, func(i, j int) bool {
		if engines[i].class != engines[j].class {
			return engines[i].class < engines[j].class
		}
		return engines[i].instance < engines[j].instance
	})
	if len(engines) > models.MaxEngineBlocks {
		engines = engines[:models.MaxEngineBlocks]
	}
	return engines, nil
}

func (g *GPUCollector) openMain(pmu *perf.PMU) error {
	group := g.open(pmu.CPU())

	g.irq.config = i915Interrupts
	if err := g.irq.open(group, pmu.Type); err != nil {
		group.Close()
		return fmt.Errorf("open interrupts counter: %w", err)
	}

	optional := []struct {
		cnt  *pmuCounter
		name string
	}{
		{&g.freqReq, "requested-frequency"},
		{&g.freqAct, "actual-frequency"},
		{&g.rc6, "rc6-residency"},
	}
	g.freqReq.config = i915RequestedFrequency
	g.freqAct.config = i915ActualFrequency
	g.rc6.config = i915RC6Residency
	for _, o := range optional {
		if err := o.cnt.open(group, pmu.Type); err != nil {
			g.logger.Debug("GPU counter not available", zap.String("counter", o.name), zap.Error(err))
		}
	}

	for _, eng := range g.engines {
		samplers := []struct {
			cnt    *pmuCounter
			name   string
			sample uint64
		}{
			{&eng.busy, "busy", i915SampleBusy},
			{&eng.wait, "wait", i915SampleWait},
			{&eng.sema, "sema", i915SampleSema},
		}
		for _, s := range samplers {
			if s.cnt.config == 0 {
				config, err := pmu.EventConfig(eng.name + "-" + s.name)
				if err != nil {
					config = eng.busy.config&^(1<<i915SampleBits-1) | s.sample
				}
				s.cnt.config = config
			}
			if err := s.cnt.open(group, pmu.Type); err != nil {
				g.logger.Debug("GPU engine counter not available",
					zap.String("engine", eng.displayName),
					zap.String("counter", s.name),
					zap.Error(err))
				continue
			}
			eng.counters++
		}
	}
	g.group = group
	return nil
}

// openIMC opens the memory controller read/write counters as a second
// group. Any failure leaves IMC bandwidth unavailable.
func (g *GPUCollector) openIMC(sysRoot string) {
	pmu, err := perf.OpenPMU(sysRoot, imcPMU)
	if err != nil {
		g.logger.Debug("IMC PMU not available", zap.Error(err))
		return
	}
	reads, err := pmu.Event("data_reads")
	if err != nil {
		g.logger.Warn("IMC data_reads event not available", zap.Error(err))
		return
	}
	writes, err := pmu.Event("data_writes")
	if err != nil {
		g.logger.Warn("IMC data_writes event not available", zap.Error(err))
		return
	}
	readsScale, err := pmu.Scale("data_reads")
	if err != nil {
		g.logger.Warn("Failed to read IMC scale", zap.Error(err))
		return
	}
	writesScale, err := pmu.Scale("data_writes")
	if err != nil {
		g.logger.Warn("Failed to read IMC scale", zap.Error(err))
		return
	}
	unit, _ := pmu.Unit("data_reads")

	group := g.open(pmu.CPU())
	g.imcReads.config = reads.Config
	g.imcWrites.config = writes.Config
	if err := g.imcReads.open(group, pmu.Type); err != nil {
		g.logger.Warn("Failed to open IMC counters", zap.Error(err))
		group.Close()
		g.imcReads = pmuCounter{}
		return
	}
	if err := g.imcWrites.open(group, pmu.Type); err != nil {
		g.logger.Warn("Failed to open IMC counters", zap.Error(err))
		group.Close()
		g.imcReads, g.imcWrites = pmuCounter{}, pmuCounter{}
		return
	}
	g.imc = group
	g.imcReadsSc = readsScale
	g.imcWritesSc = writesScale
	g.logger.Debug("IMC bandwidth counters opened", zap.String("unit", unit))
}

// Name returns the collector identifier.
func (g *GPUCollector) Name() string { return "gpu" }

// IsAvailable reports whether the i915 PMU could be opened.
func (g *GPUCollector) IsAvailable() bool { return g.available }

func (g *GPUCollector) sample() error {
	if g.imc != nil {
		if s, err := g.imc.Read(); err != nil {
			// Zero elapsed time reports no bandwidth for this tick; the
			// next good read spans both intervals.
			g.logger.Warn("Failed to read IMC counters", zap.Error(err))
			g.imcTsPrev = g.imcTsCur
		} else {
			g.imcTsPrev, g.imcTsCur = g.imcTsCur, s.Time
			g.imcReads.update(s.Values)
			g.imcWrites.update(s.Values)
		}
	}

	s, err := g.group.Read()
	if err != nil {
		return fmt.Errorf("read GPU group: %w: %v", ErrUnexpected, err)
	}
	g.tsPrev, g.tsCur = g.tsCur, s.Time
	for _, c := range []*pmuCounter{&g.freqReq, &g.freqAct, &g.irq, &g.rc6} {
		c.update(s.Values)
	}
	for _, eng := range g.engines {
		eng.busy.update(s.Values)
		eng.sema.update(s.Values)
		eng.wait.update(s.Values)
	}
	return nil
}

func elapsedSeconds(prev, cur uint64) float64 {
	if cur <= prev {
		return 0
	}
	return float64(cur-prev) / 1e9
}

// Collect samples the counter groups and writes rates into snap.GPU. The
// first call takes an extra priming sample so that it already reports rates.
func (g *GPUCollector) Collect(ctx context.Context, snap *models.Snapshot) error {
	if !g.available {
		snap.GPU = models.GPUState{}
		return nil
	}
	if !g.primed {
		if err := g.sample(); err != nil {
			return err
		}
		g.primed = true
	}
	if err := g.sample(); err != nil {
		return err
	}

	t := elapsedSeconds(g.tsPrev, g.tsCur)
	gpu := &snap.GPU
	gpu.Available = true
	gpu.RequestedFreq = g.freqReq.rate(1, t, 1)
	gpu.ActualFreq = g.freqAct.rate(1, t, 1)
	gpu.Interrupts = g.irq.rate(1, t, 1)
	gpu.RC6 = g.rc6.rate(1e9, t, 100)

	imcT := elapsedSeconds(g.imcTsPrev, g.imcTsCur)
	gpu.IMCReads = g.imcReads.rate(1, imcT, g.imcReadsSc)
	gpu.IMCWrites = g.imcWrites.rate(1, imcT, g.imcWritesSc)

	if cap(gpu.Engines) < len(g.engines) {
		gpu.Engines = make([]models.EngineBlock, len(g.engines))
	}
	gpu.Engines = gpu.Engines[:len(g.engines)]
	for i, eng := range g.engines {
		if eng.counters == 0 {
			gpu.Engines[i] = models.EngineBlock{}
			continue
		}
		gpu.Engines[i] = models.EngineBlock{
			Name: eng.displayName,
			Busy: eng.busy.rate(1e9, t, 100),
			Wait: eng.wait.rate(1e9, t, 100),
			Sema: eng.sema.rate(1e9, t, 100),
		}
	}
	return nil
}

// Close closes both counter groups.
func (g *GPUCollector) Close() error {
	var err error
	if g.imc != nil {
		err = g.imc.Close()
		g.imc = nil
	}
	if g.group != nil {
		if cerr := g.group.Close(); cerr != nil && err == nil {
			err = cerr
		}
		g.group = nil
	}
	g.available = false
	return err
}
