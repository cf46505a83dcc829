package logger

// Logger is the minimal structured logging interface the access control
// engine and its stores write to. Implementations take alternating
// key/value pairs as variadic arguments, which keeps call sites terse and
// the interface easy to fake in tests.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation ID attached to audit records.
// It must be cheap and safe for concurrent calls.
type TraceIDFunc func() string
