package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Archiver moves long-completed requests to the archived status.
type Archiver interface {
	ArchiveCompleted(ctx context.Context, olderThan time.Duration) ([]int64, error)
}

// ArchiveSweeper periodically runs the archival pass.
type ArchiveSweeper struct {
	archiver  Archiver
	interval  time.Duration
	olderThan time.Duration
	logger    *zap.Logger
}

// NewArchiveSweeper builds the sweeper.
func NewArchiveSweeper(archiver Archiver, interval, olderThan time.Duration, logger *zap.Logger) *ArchiveSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveSweeper{archiver: archiver, interval: interval, olderThan: olderThan, logger: logger}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *ArchiveSweeper) Run(ctx context.Context) {
	s.logger.Info("archive sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("older_than", s.olderThan))
	s.Sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("archive sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one archival pass and returns the number of archived requests.
func (s *ArchiveSweeper) Sweep(ctx context.Context) int {
	ids, err := s.archiver.ArchiveCompleted(ctx, s.olderThan)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("archive sweep failed", zap.Error(err))
		}
		return 0
	}
	if len(ids) > 0 {
		s.logger.Info("requests archived", zap.Int("count", len(ids)), zap.Int64s("request_ids", ids))
	}
	return len(ids)
}
