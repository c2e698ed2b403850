//go:build !linux

package perf

import "errors"

var errUnsupported = errors.New("perf: perf_event_open is only available on linux")

// Sample is one group read.
type Sample struct {
	Time   uint64
	Values []uint64
}

// Group is unavailable outside Linux; every open fails.
type Group struct{}

// NewGroup returns a group whose opens always fail.
func NewGroup(cpu int) *Group { return &Group{} }

func (g *Group) Add(ev Event) (int, error) { return -1, errUnsupported }
func (g *Group) Len() int                  { return 0 }
func (g *Group) Read() (Sample, error)     { return Sample{}, errUnsupported }
func (g *Group) Reset() error              { return nil }
func (g *Group) Close() error              { return nil }
