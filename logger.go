package bmicro

import (
	"log"
	"sync/atomic"
	"testing"
)

// Logger can be implemented to get informed about important states.
type Logger interface {
	// LogHandlerError is called for every error that is mapped onto an error response.
	LogHandlerError(status int, err error)
	// LogThrownValue is called when a handler panics with a value that is not an error.
	LogThrownValue(status int, v any)
	// LogImplicitFlushError is called when the buffered response could not be written to the transport.
	LogImplicitFlushError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogHandlerError(status int, err error) {
	l.Logger.Printf("bmicro: handler error (%d): %+v", status, err)
}

func (l stdLogger) LogThrownValue(status int, v any) {
	l.Logger.Printf("bmicro: thrown value must be an error (%d): %v", status, v)
}

func (l stdLogger) LogImplicitFlushError(err error) {
	l.Logger.Printf("bmicro: error while flushing implicitly: %s", err)
}

// NewStdLogger returns a Logger that prints to l, or to the default logger when l is nil.
func NewStdLogger(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}

	return stdLogger{l}
}

type TestLogger struct {
	tb testing.TB

	NumLogHandlerError       int64
	NumLogThrownValue        int64
	NumLogImplicitFlushError int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogHandlerError(status int, err error) {
	atomic.AddInt64(&l.NumLogHandlerError, 1)
	l.tb.Logf("bmicro: handler error (%d): %+v", status, err)
}

func (l *TestLogger) LogThrownValue(status int, v any) {
	atomic.AddInt64(&l.NumLogThrownValue, 1)
	l.tb.Logf("bmicro: thrown value must be an error (%d): %v", status, v)
}

func (l *TestLogger) LogImplicitFlushError(err error) {
	atomic.AddInt64(&l.NumLogImplicitFlushError, 1)
	l.tb.Logf("bmicro: error while flushing implicitly: %s", err)
}

var _ Logger = &TestLogger{}
