// RAPL power collector: average watts per energy domain from the perf
// "power" PMU, read and reset on every tick.
package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/clock"
	"github.com/Guliveer/sysmon/internal/models"
	"github.com/Guliveer/sysmon/internal/perf"
)

const powerPMU = "power"

// energyUnit is the size of one raw RAPL count in joules (2^-32 J).
const energyUnit = 1.0 / (1 << 32)

var raplDomains = []struct {
	event string
	name  string
}{
	{"energy-cores", "power-cpu-watts"},
	{"energy-pkg", "power-pkg-watts"},
	{"energy-gpu", "power-gpu-watts"},
	{"energy-psys", "power-psys-watts"},
}

// PowerCollector reports the average power of every RAPL domain the
// machine exposes over the interval since the previous tick.
type PowerCollector struct {
	clock  clock.Clock
	logger *zap.Logger

	group    counterGroup
	idx      []int
	readings []models.PowerReading
	lastNs   int64
}

// NewPowerCollector resolves and opens the RAPL energy counters under
// sysRoot ("/sys" when empty). With no usable domain the collector is
// unavailable and reports no readings.
func NewPowerCollector(sysRoot string, clk clock.Clock, logger *zap.Logger) *PowerCollector {
	return newPowerCollector(sysRoot, clk, openPerfGroup, logger)
}

func newPowerCollector(sysRoot string, clk clock.Clock, open groupOpener, logger *zap.Logger) *PowerCollector {
	if sysRoot == "" {
		sysRoot = "/sys"
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &PowerCollector{clock: clk, logger: logger}

	pmu, err := perf.OpenPMU(sysRoot, powerPMU)
	if err != nil {
		logger.Warn("Power: RAPL PMU not available", zap.Error(err))
		return p
	}

	group := open(pmu.CPU())
	for _, d := range raplDomains {
		ev, err := pmu.Event(d.event)
		if err != nil {
			logger.Info("Power: RAPL event is unavailable",
				zap.String("event", d.event), zap.Error(err))
			continue
		}
		idx, err := group.Add(ev)
		if err != nil {
			logger.Info("Power: failed to open RAPL event",
				zap.String("event", d.event), zap.Error(err))
			continue
		}
		p.idx = append(p.idx, idx)
		p.readings = append(p.readings, models.PowerReading{Name: d.name})
	}
	if len(p.readings) == 0 {
		group.Close()
		logger.Warn("Power: no RAPL counters are available, check permissions")
		return p
	}

	p.group = group
	p.lastNs = clk.Nanotime()
	logger.Info("Power: RAPL counters opened", zap.Int("domains", len(p.readings)))
	return p
}

// Name returns the collector identifier.
func (p *PowerCollector) Name() string { return "power" }

// IsAvailable reports whether at least one energy domain was opened.
func (p *PowerCollector) IsAvailable() bool { return len(p.readings) > 0 }

// Domains returns the output names of the opened domains.
func (p *PowerCollector) Domains() []string {
	names := make([]string, len(p.readings))
	for i, r := range p.readings {
		names[i] = r.Name
	}
	return names
}

// Collect reads and resets the energy counters and converts the energy
// accumulated since the previous call into watts.
func (p *PowerCollector) Collect(ctx context.Context, snap *models.Snapshot) error {
	snap.CPU.Power = snap.CPU.Power[:0]
	if len(p.readings) == 0 {
		return nil
	}

	raw, err := p.readAndReset()
	if err != nil {
		snap.CPU.Power = append(snap.CPU.Power, p.readings...)
		return err
	}
	now := p.clock.Nanotime()
	elapsed := float64(now-p.lastNs) / 1e9
	p.lastNs = now
	if elapsed > 0 {
		for i, idx := range p.idx {
			p.readings[i].Watts = float64(raw[idx]) * energyUnit / elapsed
		}
	}
	snap.CPU.Power = append(snap.CPU.Power, p.readings...)
	return nil
}

func (p *PowerCollector) readAndReset() ([]uint64, error) {
	s, err := p.group.Read()
	if err != nil {
		return nil, fmt.Errorf("power: read counters: %w: %v", ErrUnexpected, err)
	}
	if err := p.group.Reset(); err != nil {
		return nil, fmt.Errorf("power: reset counters: %w: %v", ErrUnexpected, err)
	}
	return s.Values, nil
}

// Close takes a final reading and closes the counters.
func (p *PowerCollector) Close() error {
	if p.group == nil {
		return nil
	}
	if _, err := p.group.Read(); err != nil {
		p.logger.Debug("Power: final read failed", zap.Error(err))
	}
	err := p.group.Close()
	p.group = nil
	p.idx = nil
	p.readings = nil
	return err
}
