package logger

import (
	"os"

	corelogger "github.com/kilianp07/predictivemovement/core/logger"
)

// Logger is the logging contract of the simulation, see core/logger.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger = corelogger.NopLogger

// New returns a Logger for the given component. The output format is
// selected through the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// Scoped returns a Logger for component whose lines also carry fields,
// such as the kommun or fleet they concern.
func Scoped(component string, fields map[string]string) Logger {
	return newZerolog(os.Stdout, component).with(fields)
}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger { return corelogger.OrNop(l) }
