package monitor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Guliveer/sysmon/internal/clock"
	"github.com/Guliveer/sysmon/internal/collector"
	"github.com/Guliveer/sysmon/internal/models"
)

// steadySource reports two cores whose ticks grow by a fixed step.
type steadySource struct {
	n uint64
}

func (s *steadySource) CoreCount(context.Context) (int, error) { return 2, nil }

func (s *steadySource) Ticks(context.Context) ([]collector.CoreTicks, error) {
	s.n++
	return []collector.CoreTicks{
		{Core: 0, User: 30 * s.n, Idle: 70 * s.n},
		{Core: 1, System: 10 * s.n, Idle: 90 * s.n},
	}, nil
}

func (s *steadySource) Frequencies(context.Context) ([]float64, error) {
	return []float64{2000, 2400}, nil
}

func (s *steadySource) Memory(context.Context) (models.MemoryInfo, error) {
	return models.MemoryInfo{TotalKB: 8000, FreeKB: 2000, UsedKB: 6000}, nil
}

func newTestMonitor(t *testing.T, procRoot string) (*Monitor, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.UnixMilli(1_700_000_000_000))
	m := New(context.Background(), Options{
		ProcRoot:  procRoot,
		SysRoot:   t.TempDir(),
		Clock:     clk,
		CPUSource: &steadySource{},
	})
	t.Cleanup(func() { m.Close() })
	return m, clk
}

func writeProcess(t *testing.T, root string, pid int, minflt, rss uint64) {
	t.Helper()
	dir := filepath.Join(root, fmt.Sprint(pid))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	stat := fmt.Sprintf("%d (app) R 1 1 1 0 -1 0 %d 0 2 0 5 5 0 0 20 0 3 0 1 1 1\n", pid, minflt)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stat"), []byte(stat), 0o644))
	status := fmt.Sprintf("Name:\tapp\nVmRSS:\t%d kB\nThreads:\t3\nvoluntary_ctxt_switches:\t8\nnonvoluntary_ctxt_switches:\t1\n", rss)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "status"), []byte(status), 0o644))
	statm := fmt.Sprintf("%d %d 0 0 0 0 0\n", 2*rss*1024/uint64(os.Getpagesize()), rss*1024/uint64(os.Getpagesize()))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "statm"), []byte(statm), 0o644))
}

func TestComputeUnbound(t *testing.T) {
	m, _ := newTestMonitor(t, t.TempDir())
	assert.Equal(t, NoPID, m.PID())
	assert.False(t, m.Bound())

	snap, err := m.Compute(context.Background())
	require.NoError(t, err)
	snap, err = m.Compute(context.Background())
	require.NoError(t, err)

	fields := snap.FieldMap()
	assert.InDelta(t, 30.0, fields["cpu-core-0"], 1e-9)
	assert.InDelta(t, 10.0, fields["cpu-core-1"], 1e-9)
	assert.InDelta(t, 20.0, fields["cpu-cores-avg"], 1e-9)
	assert.Equal(t, 2200.0, fields["cpu-freq-avg-MHz"])
	assert.Equal(t, uint64(6000), fields["cpu-memory-used-kB"])
	assert.Equal(t, uint64(1_700_000_000_000), fields["start-time"])

	// no GPU or RAPL in an empty sysfs
	assert.False(t, snap.GPU.Available)
	assert.Nil(t, fields["gpu-rc6"])
	assert.Empty(t, snap.CPU.Power)

	for _, name := range []string{"minflt", "majflt", "threads", "resident_set_size"} {
		_, ok := fields[name]
		assert.False(t, ok, name)
	}
	assert.Nil(t, snap.Process)
}

func TestComputeBoundMissingProcess(t *testing.T) {
	m, _ := newTestMonitor(t, t.TempDir())
	m.SetPID(4242)

	snap, err := m.Compute(context.Background())
	require.ErrorIs(t, err, collector.ErrProcessNotFound)
	assert.Equal(t, collector.ProcessNotFound, collector.KindOf(err))

	fields := snap.FieldMap()
	assert.Contains(t, fields, "cpu-core-0")
	assert.Equal(t, uint64(8000), fields["cpu-memory-total-kB"])
	assert.Equal(t, uint64(0), fields["minflt"])
	assert.Equal(t, 4242, snap.PID)
}

func TestComputeBoundProcessAndRebind(t *testing.T) {
	procRoot := t.TempDir()
	writeProcess(t, procRoot, 100, 500, 1024)
	writeProcess(t, procRoot, 200, 900, 4096)
	m, clk := newTestMonitor(t, procRoot)

	m.SetPID(100)
	snap, err := m.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(500), snap.Process.MinorFaults)

	writeProcess(t, procRoot, 100, 520, 1024)
	clk.Advance(time.Second)
	snap, err = m.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(20), snap.Process.MinorFaults)
	assert.Equal(t, uint64(3), snap.Process.Threads)

	m.SetPID(200)
	snap, err = m.Compute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(900), snap.Process.MinorFaults, "history reset on rebind")
	assert.Equal(t, uint64(4096), snap.Process.ResidentKB)

	m.SetPID(NoPID)
	snap, err = m.Compute(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Process)
}

func TestComputeBoundInvalidPID(t *testing.T) {
	m, _ := newTestMonitor(t, t.TempDir())
	m.SetPID(0)

	_, err := m.Compute(context.Background())
	assert.ErrorIs(t, err, collector.ErrInvalidArguments)
}

func TestCloseReleasesCollectors(t *testing.T) {
	m, _ := newTestMonitor(t, t.TempDir())
	assert.Equal(t, 2, m.Cores())
	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Cores())
}
