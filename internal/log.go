// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package internal holds helpers shared by the simduino packages.
package internal

import (
	"sync"

	"go.uber.org/zap"
)

var (
	logger     *zap.Logger
	loggerOnce sync.Once
	loggerLock sync.RWMutex
)

// Logger returns the host's logger instance.
// It uses a no-op logger by default.
func Logger() *zap.Logger {
	loggerOnce.Do(func() {
		loggerLock.Lock()
		if logger == nil {
			logger = zap.NewNop()
		}
		loggerLock.Unlock()
	})

	loggerLock.RLock()
	defer loggerLock.RUnlock()
	return logger
}

// SetLogger configures the logger used by every simduino package.
// A nil logger restores the no-op logger.
func SetLogger(l *zap.Logger) {
	Logger()

	if l == nil {
		l = zap.NewNop()
	}

	loggerLock.Lock()
	logger = l
	loggerLock.Unlock()
}
