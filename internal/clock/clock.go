// Package clock provides the time sources used by the samplers: a wall clock
// for snapshot timestamps and a monotonic nanosecond counter for measuring
// the elapsed time between two reads of an accumulating counter.
package clock

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// Clock is the time source injected into the orchestrator and samplers.
type Clock interface {
	// Now returns the current wall-clock time.
	Now() time.Time

	// Nanotime returns a monotonic timestamp in nanoseconds. Only
	// differences between two values are meaningful.
	Nanotime() int64
}

// System reads the host clocks.
type System struct{}

// New returns the host clock.
func New() Clock { return System{} }

// Now returns time.Now().
func (System) Now() time.Time { return time.Now() }

// Nanotime reads CLOCK_MONOTONIC. If the syscall fails it falls back to the
// monotonic reading carried by time.Now.
func (System) Nanotime() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return time.Since(processStart).Nanoseconds()
	}
	return ts.Nano()
}

var processStart = time.Now()

// Millis converts t to Unix milliseconds, the unit used for snapshot
// timestamps.
func Millis(t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return uint64(t.UnixMilli())
}

// Fake is a manually advanced clock for tests.
type Fake struct {
	mu   sync.Mutex
	wall time.Time
	mono int64
}

// NewFake returns a fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{wall: start}
}

// Now returns the fake wall time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.wall
}

// Nanotime returns the fake monotonic time.
func (f *Fake) Nanotime() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mono
}

// Advance moves both clocks forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wall = f.wall.Add(d)
	f.mono += d.Nanoseconds()
}
