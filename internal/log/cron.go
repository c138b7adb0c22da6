package log

import "github.com/robfig/cron/v3"

// cronLogger routes robfig/cron's internal logging through this package so
// scheduler output shares the same line format as the rest of the daemon.
type cronLogger struct{}

// CronLogger returns a cron.Logger backed by the package-level logger.
// cron's Info messages are noisy (one per tick) and are emitted at DEBUG.
func CronLogger() cron.Logger {
	return cronLogger{}
}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	Error("cron: "+msg, err, keysAndValues...)
}
