package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/admissions-crawler/internal/progress"
)

// LogSink writes one structured log line per event.
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink logs events at level. Region failures are always logged at warn or above.
func NewLogSink(logger *zap.Logger, level zapcore.Level) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger, level: level}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.Int("year", evt.Year),
			zap.String("stage", string(evt.Stage)),
			zap.Time("ts", evt.TS),
		}
		if evt.Region != "" {
			fields = append(fields, zap.String("region", evt.Region))
		}
		if evt.Stage == progress.StageRegionDone || evt.Stage == progress.StageRunDone {
			fields = append(fields,
				zap.Int("offers", evt.Offers),
				zap.Int("offers_skipped", evt.Skipped),
				zap.Int("candidates", evt.Candidates),
				zap.Duration("dur", evt.Dur),
			)
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		level := s.level
		if evt.Stage == progress.StageRegionError && level < zapcore.WarnLevel {
			level = zapcore.WarnLevel
		}
		if ce := s.logger.Check(level, "ingest progress"); ce != nil {
			ce.Write(fields...)
		}
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close(context.Context) error {
	return nil
}
