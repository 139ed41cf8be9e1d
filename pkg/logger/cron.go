package logger

import (
	"fmt"
	"strings"
)

// CronLogger adapts a Logger to the key/value logger interface used by robfig/cron.
type CronLogger struct {
	L *Logger
}

// Info logs routine cron messages (job start/skip) at debug level.
func (c CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.L.Debug("%s%s", msg, formatKVs(keysAndValues))
}

// Error logs cron failures such as recovered job panics.
func (c CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.L.Error("%s: %v%s", msg, err, formatKVs(keysAndValues))
}

func formatKVs(kv []interface{}) string {
	var b strings.Builder
	// odd trailing value is dropped
	for i := 0; i+1 < len(kv); i += 2 {
		fmt.Fprintf(&b, " %v=%v", kv[i], kv[i+1])
	}
	return b.String()
}
