package rbac

import "github.com/maestro-platform/rbac/logger"

// Logger is re-exported so engine consumers do not need to import the
// logger subpackage for the common case.
type Logger = logger.Logger

// WithLogger installs a Logger on the Engine. The default is the
// phuslu-backed structured logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) error {
		if l != nil {
			e.logger = l
		}
		return nil
	}
}

// WithTraceIDFunc installs a custom correlation ID generator for audit
// records. The default generates UUIDs.
func WithTraceIDFunc(f logger.TraceIDFunc) Option {
	return func(e *Engine) error {
		if f != nil {
			e.traceIDFunc = f
		}
		return nil
	}
}
