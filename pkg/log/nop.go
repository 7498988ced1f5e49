package log

import "context"

// nopLogger discards all log output. Useful as a default in tests and as a
// fallback when no logger has been injected.
type nopLogger struct{}

// Nop returns a Logger that discards everything written to it.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(msg string, fields ...Field) {}
func (nopLogger) Info(msg string, fields ...Field)  {}
func (nopLogger) Warn(msg string, fields ...Field)  {}
func (nopLogger) Error(msg string, fields ...Field) {}
func (nopLogger) Fatal(msg string, fields ...Field) {}

func (n nopLogger) With(fields ...Field) Logger              { return n }
func (n nopLogger) WithContext(ctx context.Context) Logger   { return n }
