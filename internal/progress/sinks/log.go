// Package sinks contains progress.Sink implementations.
package sinks

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/progress"
)

// LogSink narrates the run through the structured logger. High-risk scans
// are logged the moment their batch arrives; routine process completions are
// sampled so a multi-thousand-process run stays readable.
type LogSink struct {
	logger    *zap.Logger
	minRisk   int
	sampleN   int64
	processes atomic.Int64
}

// NewLogSink wires a zap logger to the sink interface. minRisk is the score
// at which a scan is logged as a warning; every sampleN-th completed process
// is logged as routine progress.
func NewLogSink(logger *zap.Logger, minRisk, sampleN int) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sampleN <= 0 {
		sampleN = 10
	}
	return &LogSink{logger: logger, minRisk: minRisk, sampleN: int64(sampleN)}
}

// Consume logs the noteworthy events of one batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			s.logger.Info("audit run started", zap.String("run_id", evt.RunUUID().String()))
		case progress.StageRunDone:
			s.logger.Info("audit run finished",
				zap.String("run_id", evt.RunUUID().String()),
				zap.Duration("dur", evt.Dur),
			)
		case progress.StageProcessDone:
			if n := s.processes.Add(1); n%s.sampleN == 0 {
				s.logger.Info("processes audited",
					zap.Int64("count", n),
					zap.Int("term", evt.Term),
					zap.String("tree_id", evt.TreeID),
				)
			}
		case progress.StageProcessError:
			s.logger.Error("process failed",
				zap.Int("term", evt.Term),
				zap.String("tree_id", evt.TreeID),
				zap.String("error", evt.Note),
			)
		case progress.StageScan:
			if evt.Risk >= s.minRisk {
				s.logger.Warn("high-risk attachment",
					zap.String("tree_id", evt.TreeID),
					zap.String("file", evt.Filename),
					zap.Int("risk", evt.Risk),
				)
			}
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
