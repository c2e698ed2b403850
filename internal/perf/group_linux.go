//go:build linux

package perf

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// iocFlagGroup applies an ioctl to every counter of a group (PERF_IOC_FLAG_GROUP).
const iocFlagGroup = 1

// Sample is one group read: the group's enabled time in nanoseconds and the
// counter values in the order they were added.
type Sample struct {
	Time   uint64
	Values []uint64
}

// Group is a set of counters opened on one CPU and read with a single
// read(2) on the group leader.
type Group struct {
	cpu int
	fds []int
	buf []byte
}

// NewGroup returns an empty group for system-wide counters on cpu.
func NewGroup(cpu int) *Group {
	return &Group{cpu: cpu}
}

// Add opens ev as a member of the group and returns its index in Sample.Values.
// The first counter added becomes the leader. A failed open leaves the group
// unchanged.
func (g *Group) Add(ev Event) (int, error) {
	attr := unix.PerfEventAttr{
		Type:        ev.Type,
		Config:      ev.Config,
		Read_format: unix.PERF_FORMAT_TOTAL_TIME_ENABLED | unix.PERF_FORMAT_GROUP,
	}
	attr.Size = uint32(unsafe.Sizeof(attr))

	leader := -1
	if len(g.fds) > 0 {
		leader = g.fds[0]
	}
	fd, err := unix.PerfEventOpen(&attr, -1, g.cpu, leader, unix.PERF_FLAG_FD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("perf_event_open type=%d config=%#x: %w", ev.Type, ev.Config, err)
	}
	g.fds = append(g.fds, fd)
	return len(g.fds) - 1, nil
}

// Len returns the number of open counters.
func (g *Group) Len() int { return len(g.fds) }

// Read reads every counter of the group at once.
func (g *Group) Read() (Sample, error) {
	if len(g.fds) == 0 {
		return Sample{}, errors.New("perf: read of empty group")
	}
	size := (2 + len(g.fds)) * 8
	if cap(g.buf) < size {
		g.buf = make([]byte, size)
	}
	buf := g.buf[:size]
	n, err := unix.Read(g.fds[0], buf)
	if err != nil {
		return Sample{}, fmt.Errorf("perf: group read: %w", err)
	}
	if n != size {
		return Sample{}, fmt.Errorf("perf: short group read: %d of %d bytes", n, size)
	}
	nr := binary.NativeEndian.Uint64(buf[0:8])
	if nr != uint64(len(g.fds)) {
		return Sample{}, fmt.Errorf("perf: group reports %d counters, expected %d", nr, len(g.fds))
	}
	s := Sample{
		Time:   binary.NativeEndian.Uint64(buf[8:16]),
		Values: make([]uint64, len(g.fds)),
	}
	for i := range s.Values {
		off := 16 + i*8
		s.Values[i] = binary.NativeEndian.Uint64(buf[off : off+8])
	}
	return s, nil
}

// Reset zeroes every counter of the group.
func (g *Group) Reset() error {
	if len(g.fds) == 0 {
		return nil
	}
	if err := unix.IoctlSetInt(g.fds[0], unix.PERF_EVENT_IOC_RESET, iocFlagGroup); err != nil {
		return fmt.Errorf("perf: group reset: %w", err)
	}
	return nil
}

// Close closes members before the leader.
func (g *Group) Close() error {
	var errs []error
	for i := len(g.fds) - 1; i >= 0; i-- {
		if err := unix.Close(g.fds[i]); err != nil {
			errs = append(errs, err)
		}
	}
	g.fds = nil
	return errors.Join(errs...)
}
