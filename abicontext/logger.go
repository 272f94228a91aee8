package abicontext

import (
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-bridge/task"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
)

// Logger returns the context bridge's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		if logger == nil {
			logger = zap.NewNop()
		}
	})
	return logger
}

// SetLogger configures the context bridge's logger.
// This must be called before any task enters context.
func SetLogger(l *zap.Logger) {
	logger = l
}

func taskField(t task.Identifier) zap.Field {
	return zap.Uint32("task", uint32(t))
}
