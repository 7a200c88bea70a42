package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	cronSkipMessageConstant    = "skip"
	skippedTickMessageConstant = "skipping tick, previous run still active"
	cronErrorKeyConstant       = "error"
)

type zapCronLogger struct {
	sugared *zap.SugaredLogger
}

// NewCronLogger adapts a zap logger to cron's logging interface. Routine engine chatter is
// logged at debug level; skipped ticks and failures stay visible.
func NewCronLogger(logger *zap.Logger) cron.Logger {
	return zapCronLogger{sugared: logger.Sugar()}
}

func (adapter zapCronLogger) Info(message string, keysAndValues ...interface{}) {
	if message == cronSkipMessageConstant {
		adapter.sugared.Warnw(skippedTickMessageConstant, keysAndValues...)
		return
	}
	adapter.sugared.Debugw(message, keysAndValues...)
}

func (adapter zapCronLogger) Error(err error, message string, keysAndValues ...interface{}) {
	fields := append([]interface{}{cronErrorKeyConstant, err}, keysAndValues...)
	adapter.sugared.Errorw(message, fields...)
}
