package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/sysmon/internal/models"
)

type fakeCPUSource struct {
	cores   int
	ticks   [][]CoreTicks
	freq    [][]float64
	freqErr error
	memory  models.MemoryInfo
	calls   int
	fcalls  int
}

func (f *fakeCPUSource) CoreCount(context.Context) (int, error) { return f.cores, nil }

func (f *fakeCPUSource) Ticks(context.Context) ([]CoreTicks, error) {
	if f.calls >= len(f.ticks) {
		return nil, errors.New("no more ticks")
	}
	t := f.ticks[f.calls]
	f.calls++
	return t, nil
}

func (f *fakeCPUSource) Frequencies(context.Context) ([]float64, error) {
	if f.freqErr != nil {
		return nil, f.freqErr
	}
	if len(f.freq) == 0 {
		return nil, errors.New("no frequency")
	}
	i := f.fcalls
	if i >= len(f.freq) {
		i = len(f.freq) - 1
	}
	f.fcalls++
	return append([]float64(nil), f.freq[i]...), nil
}

func (f *fakeCPUSource) Memory(context.Context) (models.MemoryInfo, error) { return f.memory, nil }

func ticks(core int, user, nice, system, idle uint64) CoreTicks {
	return CoreTicks{Core: core, User: user, Nice: nice, System: system, Idle: idle}
}

func TestCPULoadFromTwoReadings(t *testing.T) {
	src := &fakeCPUSource{
		cores: 2,
		ticks: [][]CoreTicks{
			{ticks(0, 100, 0, 100, 800), ticks(1, 0, 0, 0, 1000)},
			{ticks(0, 150, 10, 140, 900), ticks(1, 0, 0, 0, 1000)},
		},
		freqErr: errors.New("disabled"),
	}
	c := NewCPUCollector(context.Background(), src, nil)
	snap := &models.Snapshot{}

	require.NoError(t, c.Collect(context.Background(), snap))
	assert.InDelta(t, 20.0, snap.CPU.Load[0], 1e-9)
	assert.Equal(t, 0, c.gen^1)

	require.NoError(t, c.Collect(context.Background(), snap))
	// busy delta 100, idle delta 100
	assert.InDelta(t, 50.0, snap.CPU.Load[0], 1e-9)
	// no ticks elapsed
	assert.Equal(t, 0.0, snap.CPU.Load[1])
	assert.Equal(t, 0, c.gen)
	assert.Nil(t, snap.CPU.Frequency)
}

func TestCPUGenerationToggles(t *testing.T) {
	src := &fakeCPUSource{
		cores: 1,
		ticks: [][]CoreTicks{
			{ticks(0, 10, 0, 0, 10)},
			{ticks(0, 20, 0, 0, 10)},
			{ticks(0, 20, 0, 0, 30)},
		},
	}
	c := NewCPUCollector(context.Background(), src, nil)
	snap := &models.Snapshot{}

	gens := []int{}
	loads := []float64{}
	for i := 0; i < 3; i++ {
		gens = append(gens, c.gen)
		require.NoError(t, c.Collect(context.Background(), snap))
		loads = append(loads, snap.CPU.Load[0])
	}
	assert.Equal(t, []int{0, 1, 0}, gens)
	assert.InDeltaSlice(t, []float64{50, 100, 0}, loads, 1e-9)
}

func TestCPUOfflineCoreKeepsPreviousTicks(t *testing.T) {
	src := &fakeCPUSource{
		cores: 2,
		ticks: [][]CoreTicks{
			{ticks(0, 10, 0, 0, 10), ticks(1, 10, 0, 0, 10)},
			{ticks(0, 20, 0, 0, 20)},
			{ticks(0, 30, 0, 0, 30), ticks(1, 30, 0, 0, 10)},
		},
	}
	c := NewCPUCollector(context.Background(), src, nil)
	snap := &models.Snapshot{}

	require.NoError(t, c.Collect(context.Background(), snap))
	require.NoError(t, c.Collect(context.Background(), snap))
	assert.Equal(t, 0.0, snap.CPU.Load[1])

	require.NoError(t, c.Collect(context.Background(), snap))
	assert.InDelta(t, 100.0, snap.CPU.Load[1], 1e-9)
}

func TestCPUCounterRegressionReadsZero(t *testing.T) {
	assert.Equal(t, 0.0, coreLoad(ticks(0, 100, 0, 0, 100), ticks(0, 50, 0, 0, 200)))
	assert.Equal(t, 0.0, coreLoad(ticks(0, 10, 0, 0, 10), ticks(0, 10, 0, 0, 10)))
	assert.InDelta(t, 25.0, coreLoad(ticks(0, 0, 0, 0, 0), ticks(0, 1, 1, 1, 9)), 1e-9)
}

func TestCPUFrequencyEnabledOnlyWhenCountsMatch(t *testing.T) {
	tests := []struct {
		name    string
		freq    [][]float64
		enabled bool
	}{
		{"match", [][]float64{{1200, 3400}}, true},
		{"mismatch", [][]float64{{1200}}, false},
		{"missing", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeCPUSource{
				cores: 2,
				ticks: [][]CoreTicks{{ticks(0, 1, 0, 0, 1), ticks(1, 1, 0, 0, 1)}},
				freq:  tt.freq,
			}
			c := NewCPUCollector(context.Background(), src, nil)
			assert.Equal(t, tt.enabled, c.FrequencyEnabled())

			snap := &models.Snapshot{}
			require.NoError(t, c.Collect(context.Background(), snap))
			if tt.enabled {
				assert.Equal(t, []float64{1200, 3400}, snap.CPU.Frequency)
			} else {
				assert.Nil(t, snap.CPU.Frequency)
			}
		})
	}
}

func TestCPUFrequencyDisabledWhenSourceShrinks(t *testing.T) {
	src := &fakeCPUSource{
		cores: 2,
		ticks: [][]CoreTicks{
			{ticks(0, 1, 0, 0, 1), ticks(1, 1, 0, 0, 1)},
			{ticks(0, 2, 0, 0, 2), ticks(1, 2, 0, 0, 2)},
		},
		freq: [][]float64{{1000, 1000}, {1000, 1000}, {1000}},
	}
	c := NewCPUCollector(context.Background(), src, nil)
	snap := &models.Snapshot{}

	require.NoError(t, c.Collect(context.Background(), snap))
	assert.Len(t, snap.CPU.Frequency, 2)

	require.NoError(t, c.Collect(context.Background(), snap))
	assert.False(t, c.FrequencyEnabled())
	assert.Nil(t, snap.CPU.Frequency)
}

func TestCPUMemoryCopied(t *testing.T) {
	src := &fakeCPUSource{
		cores:  1,
		ticks:  [][]CoreTicks{{ticks(0, 1, 0, 0, 1)}},
		memory: models.MemoryInfo{TotalKB: 100, FreeKB: 30, UsedKB: 70},
	}
	c := NewCPUCollector(context.Background(), src, nil)
	snap := &models.Snapshot{}

	require.NoError(t, c.Collect(context.Background(), snap))
	assert.Equal(t, src.memory, snap.CPU.Memory)
	assert.Equal(t, 1, snap.CPU.Cores)
}

func TestCPUCloseResetsCores(t *testing.T) {
	c := NewCPUCollector(context.Background(), &fakeCPUSource{cores: 4}, nil)
	require.NoError(t, c.Close())
	assert.Equal(t, 0, c.Cores())

	err := c.Collect(context.Background(), &models.Snapshot{})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestHostSourceTicks(t *testing.T) {
	root := t.TempDir()
	stat := strings.Join([]string{
		"cpu  10 20 30 40 50 0 0 0 0 0",
		"cpu0 1 2 3 4 5 0 0 0 0 0",
		"cpu2 600 7 8 90000 10 0 0 0 0 0",
		"intr 12345",
		"ctxt 999",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "stat"), []byte(stat), 0o644))

	got, err := NewHostSource(root).Ticks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []CoreTicks{ticks(0, 1, 2, 3, 4), ticks(2, 600, 7, 8, 90000)}, got)

	_, err = NewHostSource(t.TempDir()).Ticks(context.Background())
	assert.Error(t, err, "missing stat file")
}

func TestCoreTicksRejectsUnknownLabel(t *testing.T) {
	_, err := coreTicks([]cpu.TimesStat{{CPU: "cpu-total"}})
	assert.Error(t, err)
}

func TestHostSourceFrequencies(t *testing.T) {
	root := t.TempDir()
	cpuinfo := "processor\t: 0\ncpu MHz\t\t: 1200.000\n\nprocessor\t: 1\ncpu MHz\t\t: 3400.125\n"
	require.NoError(t, os.WriteFile(filepath.Join(root, "cpuinfo"), []byte(cpuinfo), 0o644))

	freq, err := NewHostSource(root).Frequencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{1200, 3400.125}, freq)

	_, err = NewHostSource(t.TempDir()).Frequencies(context.Background())
	assert.Error(t, err)
}

func TestReadHostInfo(t *testing.T) {
	info, err := ReadHostInfo(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, info.Hostname)
	assert.NotEmpty(t, info.Kernel)
	assert.Len(t, info.Fields(), 5)
}
