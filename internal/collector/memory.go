// Host CPU source: per-core ticks, core count and memory totals from
// gopsutil, current frequency from procfs.
package collector

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v3/common"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/Guliveer/sysmon/internal/models"
)

// HostSource reads CPU and memory counters of the running machine.
type HostSource struct {
	procRoot string
}

// NewHostSource creates a source reading procfs at procRoot ("/proc" when
// empty).
func NewHostSource(procRoot string) *HostSource {
	if procRoot == "" {
		procRoot = "/proc"
	}
	return &HostSource{procRoot: procRoot}
}

// context points gopsutil at the configured procfs root.
func (h *HostSource) context(ctx context.Context) context.Context {
	return withProcRoot(ctx, h.procRoot)
}

func withProcRoot(ctx context.Context, procRoot string) context.Context {
	return context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: procRoot})
}

// CoreCount returns the number of logical cores known to the OS.
func (h *HostSource) CoreCount(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(h.context(ctx), true)
}

// Ticks returns the per-core jiffies of <procfs>/stat through gopsutil,
// keyed by the core number in the "cpuN" label.
func (h *HostSource) Ticks(ctx context.Context) ([]CoreTicks, error) {
	times, err := cpu.TimesWithContext(h.context(ctx), true)
	if err != nil {
		return nil, err
	}
	return coreTicks(times)
}

func coreTicks(times []cpu.TimesStat) ([]CoreTicks, error) {
	out := make([]CoreTicks, 0, len(times))
	for _, t := range times {
		core, err := strconv.Atoi(strings.TrimPrefix(t.CPU, "cpu"))
		if err != nil {
			return nil, fmt.Errorf("unexpected cpu label %q", t.CPU)
		}
		out = append(out, CoreTicks{
			Core:   core,
			User:   jiffies(t.User),
			Nice:   jiffies(t.Nice),
			System: jiffies(t.System),
			Idle:   jiffies(t.Idle),
		})
	}
	// gopsutil reports an unreadable stat file as an empty list.
	if len(out) == 0 {
		return nil, errors.New("no per-core lines in stat")
	}
	return out, nil
}

// jiffies undoes gopsutil's conversion of tick counts to seconds.
func jiffies(seconds float64) uint64 {
	return uint64(math.Round(seconds * cpu.ClocksPerSec))
}

// Frequencies returns the "cpu MHz" entries of <procfs>/cpuinfo. The sysfs
// maximum that gopsutil's cpu.Info substitutes is not a current frequency.
func (h *HostSource) Frequencies(ctx context.Context) ([]float64, error) {
	f, err := os.Open(filepath.Join(h.procRoot, "cpuinfo"))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "cpu MHz") {
			continue
		}
		_, val, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("malformed cpuinfo line %q", line)
		}
		mhz, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed cpuinfo line %q: %w", line, err)
		}
		out = append(out, mhz)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, errors.New("cpuinfo has no frequency entries")
	}
	return out, nil
}

// Memory returns total, free and used memory in kB. Used is total minus
// free, page cache included.
func (h *HostSource) Memory(ctx context.Context) (models.MemoryInfo, error) {
	v, err := mem.VirtualMemoryWithContext(h.context(ctx))
	if err != nil {
		return models.MemoryInfo{}, err
	}
	total, free := v.Total/1024, v.Free/1024
	used := uint64(0)
	if total > free {
		used = total - free
	}
	return models.MemoryInfo{TotalKB: total, FreeKB: free, UsedKB: used}, nil
}
