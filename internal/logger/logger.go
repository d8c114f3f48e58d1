package logger

import (
	"sync"
)

// Log levels accepted in log_level.
const (
	DebugLevel = "debug"
	InfoLevel  = "info"
	WarnLevel  = "warn"
	ErrorLevel = "error"
)

// Encodings accepted in log_format.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	globalLogger *Logger
	once         sync.Once
)

// Get returns the process logger. The first call fixes level and format;
// later calls return the same instance.
//
// Entries go to stderr so that command output on stdout (round reports,
// stored state) stays machine-readable.
func Get(level, format string) *Logger {
	once.Do(func() {
		globalLogger = newZapLogger(level, format)
	})
	return globalLogger
}

// Flush writes out buffered entries of the process logger, if any.
func Flush() {
	if globalLogger != nil {
		_ = globalLogger.Sync()
	}
}
