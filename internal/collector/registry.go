package collector

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/models"
)

// Registry holds the machine-wide collectors and runs them sequentially in
// registration order on every tick.
type Registry struct {
	collectors []Collector
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		collectors: make([]Collector, 0, 3),
		logger:     logger,
	}
}

// Register appends a collector. Unavailable collectors are kept so that
// their fields keep reporting the unavailable sentinel.
func (r *Registry) Register(c Collector) {
	r.collectors = append(r.collectors, c)
	if c.IsAvailable() {
		r.logger.Info("Registered collector", zap.String("name", c.Name()))
	} else {
		r.logger.Warn("Collector not available, reporting empty values", zap.String("name", c.Name()))
	}
}

// CollectAll runs every collector in order against snap. A failed collector
// is logged and does not prevent the following ones from running. A started
// tick always completes, even when ctx is cancelled part way through, so
// that snap never mixes fresh and stale sections.
func (r *Registry) CollectAll(ctx context.Context, snap *models.Snapshot) {
	for _, c := range r.collectors {
		if err := c.Collect(ctx, snap); err != nil {
			r.logger.Error("Collection failed",
				zap.String("collector", c.Name()),
				zap.Error(err))
		}
	}
}

// Collectors returns a copy of all registered collectors.
func (r *Registry) Collectors() []Collector {
	result := make([]Collector, len(r.collectors))
	copy(result, r.collectors)
	return result
}

// Close closes every collector in reverse registration order.
func (r *Registry) Close() error {
	var errs []error
	for i := len(r.collectors) - 1; i >= 0; i-- {
		if err := r.collectors[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.collectors = nil
	return errors.Join(errs...)
}
