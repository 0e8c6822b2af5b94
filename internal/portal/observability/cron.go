package observability

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type cronLogger struct {
	zl *zap.Logger
}

// NewCronLogger adapts a zap logger to the cron.Logger interface.
func NewCronLogger(zl *zap.Logger) cron.Logger {
	if zl == nil {
		zl = noopLogger
	}
	return &cronLogger{zl: zl}
}

// Info logs routine scheduler messages at debug level; cron is chatty.
func (l *cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.zl.Debug(msg, fields(keysAndValues)...)
}

// Error logs scheduler failures.
func (l *cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.zl.Error(msg, append(fields(keysAndValues), zap.Error(err))...)
}

func fields(keysAndValues []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprintf("%v", keysAndValues[i])
		if i+1 < len(keysAndValues) {
			out = append(out, zap.Any(key, keysAndValues[i+1]))
		} else {
			out = append(out, zap.Any(key, "MISSING_VALUE"))
		}
	}
	return out
}
