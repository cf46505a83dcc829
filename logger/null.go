package logger

// NullLogger discards every record. The file stores fall back to it when
// built without a logger, and tests use it to keep output quiet.
type NullLogger struct{}

// NewNullLogger returns a logger that drops everything.
func NewNullLogger() NullLogger { return NullLogger{} }

func (NullLogger) Error(msg string, keyvals ...any) {}
func (NullLogger) Info(msg string, keyvals ...any)  {}
func (NullLogger) Debug(msg string, keyvals ...any) {}
