// Package collector defines the Collector interface and the samplers that
// turn raw kernel and PMU counters into per-interval rates.
package collector

import (
	"context"

	"github.com/Guliveer/sysmon/internal/models"
)

// Collector is the interface that all machine-wide samplers implement.
// Each collector fills its own part of a snapshot.
type Collector interface {
	// Name returns the unique identifier for this collector.
	Name() string

	// Collect samples the collector's counters and writes the resulting
	// rates into snap. Sampling is not abandoned on a cancelled context.
	Collect(ctx context.Context, snap *models.Snapshot) error

	// IsAvailable reports whether the underlying counters could be opened.
	// Unavailable collectors still run and report unavailable values.
	IsAvailable() bool

	// Close releases counters and descriptors held by the collector.
	Close() error
}
