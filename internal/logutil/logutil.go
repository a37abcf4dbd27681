// Package logutil provides a thin task-scoped wrapper around *zap.Logger,
// in the spirit of tidb-lightning's lightning/log package: callers attach
// fields with With and bracket long operations with Begin/End so that
// success/failure and duration are always logged together.
package logutil

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.Logger with task-span helpers.
type Logger struct {
	*zap.Logger
}

// New builds a production JSON logger at the given level.
func New(level zapcore.Level) Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		// Fall back to a no-op logger rather than panicking the whole
		// service over a logging misconfiguration.
		l = zap.NewNop()
	}
	return Logger{Logger: l}
}

// With returns a logger with additional structured fields attached.
func (l Logger) With(fields ...zap.Field) Logger {
	return Logger{Logger: l.Logger.With(fields...)}
}

// Task is an in-flight logged operation started by Begin.
type Task struct {
	logger Logger
	msg    string
	start  time.Time
}

// Begin logs msg at the given level and returns a Task; call End on it
// when the operation finishes to log its outcome and duration.
func (l Logger) Begin(level zapcore.Level, msg string) Task {
	l.Logger.Check(level, msg).Write()
	return Task{logger: l, msg: msg, start: time.Now()}
}

// End logs the task's completion. errLevel is used if err is non-nil,
// zap.InfoLevel otherwise.
func (t Task) End(errLevel zapcore.Level, err error) {
	elapsed := time.Since(t.start)
	if err != nil {
		t.logger.Check(errLevel, t.msg+" failed").Write(
			zap.Duration("took", elapsed),
			zap.Error(err),
		)
		return
	}
	t.logger.Check(zapcore.InfoLevel, t.msg+" finished").Write(
		zap.Duration("took", elapsed),
	)
}

// ShortError renders err for a log line without the full pkg/errors
// stack trace, matching log.ShortError from tidb-lightning's log package.
func ShortError(err error) zap.Field {
	if err == nil {
		return zap.Skip()
	}
	return zap.String("error", err.Error())
}
