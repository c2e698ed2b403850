// Package scheduler implements the tick-based sampling loop. It calls the
// monitor at a fixed interval and hands every snapshot to the registered
// consumers on the same goroutine. The scheduler does NOT write or publish
// snapshots itself.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Guliveer/sysmon/internal/collector"
	"github.com/Guliveer/sysmon/internal/models"
)

// Computer produces one snapshot per call. *monitor.Monitor implements it.
type Computer interface {
	Compute(ctx context.Context) (*models.Snapshot, error)
}

// Scheduler manages periodic sampling.
type Scheduler struct {
	mon      Computer
	interval time.Duration
	logger   *zap.Logger

	handlers []func(*models.Snapshot)
	lastKind collector.ErrorKind
	ticks    uint64
}

// New creates a new Scheduler sampling mon every interval.
func New(mon Computer, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		mon:      mon,
		interval: interval,
		logger:   logger,
	}
}

// OnSnapshot registers a consumer. Consumers run in registration order and
// must copy whatever they keep beyond the call.
func (s *Scheduler) OnSnapshot(fn func(*models.Snapshot)) {
	s.handlers = append(s.handlers, fn)
}

// Ticks returns the number of snapshots taken so far.
func (s *Scheduler) Ticks() uint64 { return s.ticks }

// Start samples immediately and then on every tick. It blocks until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sampling stopped", zap.Uint64("ticks", s.ticks))
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	snap, err := s.mon.Compute(ctx)
	s.ticks++
	s.reportProcessError(err)
	if snap == nil {
		return
	}

	for _, fn := range s.handlers {
		fn(snap)
	}

	s.logger.Debug("Collected metrics",
		zap.Time("started_at", snap.StartedAt),
		zap.Duration("took", snap.EndedAt.Sub(snap.StartedAt)))
}

// reportProcessError logs process read failures when their kind changes, so
// a vanished process does not flood the log on every tick.
func (s *Scheduler) reportProcessError(err error) {
	kind := collector.KindOf(err)
	if kind == s.lastKind {
		return
	}
	s.lastKind = kind
	if err == nil {
		s.logger.Info("Process stats available again")
		return
	}
	s.logger.Warn("ProcStat: "+kind.String(), zap.Error(err))
}
